package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	// 失効確認と欠席処理のバックグラウンドジョブも同じプロセスで動かす。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandImport はイベントカタログを取り込むことを示す。
	CommandImport Command = "import"
	// CommandToken はログイントークンを発行して標準出力に書き出すことを示す。
	// 引数: token <userID> [roles...]
	CommandToken Command = "token"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "import":
		return CommandImport
	case "token":
		return CommandToken
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// CommandArg はサブコマンドに続く最初の引数を返す。ない場合は空文字。
func CommandArg(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return args[1]
}
