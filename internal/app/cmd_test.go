package app

import (
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{[]string{"serve"}, CommandServe},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"import", "events.json"}, CommandImport},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"token", "alice", "admin"}, CommandToken},
		{[]string{"unknown"}, CommandServe},
		{[]string{"migrate", "--flag", "value"}, CommandMigrate},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestCommandArg(t *testing.T) {
	if got := CommandArg([]string{"import", "events.json"}); got != "events.json" {
		t.Errorf("CommandArg = %q, want events.json", got)
	}
	if got := CommandArg([]string{"import"}); got != "" {
		t.Errorf("引数がない場合は空文字を返すべき: %q", got)
	}
	if got := CommandArg(nil); got != "" {
		t.Errorf("CommandArg(nil) = %q, want empty", got)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandServe, "serve"},
		{CommandMigrate, "migrate"},
		{CommandImport, "import"},
		{CommandHealthcheck, "healthcheck"},
		{CommandToken, "token"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command(%q) string = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
