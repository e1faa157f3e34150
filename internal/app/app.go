package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/eventease/internal/auth"
	"github.com/hitoshi/eventease/internal/config"
	"github.com/hitoshi/eventease/internal/database"
	"github.com/hitoshi/eventease/internal/logger"
	"github.com/hitoshi/eventease/internal/middleware"
	"github.com/hitoshi/eventease/internal/session"
	"github.com/hitoshi/eventease/internal/worker/absence"
	"github.com/hitoshi/eventease/internal/worker/expiry"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込んだうえで環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envの読み込み（既に設定済みの環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".envの読み込みに失敗しました", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("LOG_LEVELが不正なためinfoで出力します", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("storage", string(cfg.StorageDriver)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	// SIGINTまたはSIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandImport:
		return runImport(ctx, cfg, CommandArg(args))
	case CommandToken:
		return runToken(w, cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開いて全依存関係をワイヤリングし、HTTPサーバーと
// セッション失効確認、欠席処理の各ジョブを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.CatalogSource != "" {
		if n, err := c.newImporter().Import(ctx, cfg.CatalogSource); err != nil {
			slog.Warn("起動時のカタログ取り込みに失敗しました。保存済みカタログを使用します",
				slog.String("source", cfg.CatalogSource),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Info("起動時にカタログを取り込みました", slog.Int("event_count", n))
		}
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSubmission),
	)
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      c.newRouter(cfg, rateLimiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	go expiry.NewScheduler(c.sessions, slog.Default()).Start(jobCtx, session.ExpiryCheckInterval)

	if cfg.AbsenceSweepInterval > 0 {
		sweep := absence.NewSweepJob(c.tracker, c.metrics, slog.Default(), cfg.AbsenceGracePeriod)
		go sweep.Start(jobCtx, cfg.AbsenceSweepInterval)
	} else {
		slog.Info("ABSENCE_SWEEP_INTERVALが0のため欠席処理ジョブを無効にしました")
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}

	slog.Info("shutting down API server...")
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQL以外のストレージはkv_entriesを開く時に作成するため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageDriver != config.StoragePostgres {
		slog.Info("マイグレーションはPostgreSQLストレージでのみ必要です",
			slog.String("storage", string(cfg.StorageDriver)),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(result.Version)),
		slog.Bool("applied", result.Applied),
	)
	return nil
}

// runImport はsource（未指定時はCATALOG_SOURCE）からイベントカタログを取り込む。
func runImport(ctx context.Context, cfg *config.Config, source string) error {
	if source == "" {
		source = cfg.CatalogSource
	}
	if source == "" {
		return fmt.Errorf("import requires a source argument or CATALOG_SOURCE")
	}

	c, _, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.newImporter().Import(ctx, source)
	if err != nil {
		return fmt.Errorf("catalog import failed: %w", err)
	}

	slog.Info("カタログを取り込みました",
		slog.String("source", source),
		slog.Int("event_count", n),
	)
	return nil
}

// runToken はLOGIN_TOKEN_SECRETで署名したログイントークンを発行し、wに1行で書き出す。
// argsは<userID> [roles...]。ユーザー名にはuserIDを使う。
func runToken(w io.Writer, cfg *config.Config, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("token requires a user id: token <userID> [roles...]")
	}
	userID := strings.TrimSpace(args[0])
	roles := append([]string{}, args[1:]...)

	tokens, err := auth.NewTokenService(cfg.LoginTokenSecret, auth.DefaultTokenConfig())
	if err != nil {
		return err
	}
	token, err := tokens.Issue(userID, userID, "", roles)
	if err != nil {
		return fmt.Errorf("failed to issue login token: %w", err)
	}

	slog.Info("ログイントークンを発行しました",
		slog.String("user_id", userID),
		slog.Any("roles", roles),
	)
	_, err = fmt.Fprintln(w, token)
	return err
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
