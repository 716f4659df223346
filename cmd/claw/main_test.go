package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claw", "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "gravity-claw.db") {
		t.Errorf("defaults missing from written config:\n%s", data)
	}

	if _, err := execute(t, "config", "init", "--config", path); err == nil {
		t.Error("second init should refuse to overwrite")
	}
	if _, err := execute(t, "config", "init", "--config", path, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestHistoryRequiresConversation(t *testing.T) {
	_, err := execute(t, "history", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "--conversation") {
		t.Errorf("err = %v", err)
	}
}

func TestHistoryPrintsMessages(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "claw.db")
	t.Setenv("CLAW_DB_PATH", dbPath)

	db, err := openDatabase(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("openDatabase: %v", err)
	}
	_, err = db.Exec(`INSERT INTO messages (conversation_id, role, content, timestamp) VALUES ('42', 'user', 'hello claw', '2026-01-01T00:00:00.000Z')`)
	_ = db.Close()
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := execute(t, "history", "--config", filepath.Join(dir, "none.yaml"), "--conversation", "42")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "user: hello claw") {
		t.Errorf("output = %q", out)
	}
}
