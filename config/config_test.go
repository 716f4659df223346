package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "ALLOWED_USER_IDS", "OPENROUTER_API_KEY", "LLM_MODEL",
	"GROQ_API_KEY", "PINECONE_API_KEY", "OLLAMA_HOST", "CLAW_DB_PATH",
	"CLAW_MEMORY_BACKEND", "CLAW_MEMORY_SCOPE", "CLAW_CHROMEM_PATH",
	"CLAW_OPS_LISTEN", "CLAW_TURN_TIMEOUT", "CLAW_LOG_FILE",
}

// clearEnv blanks every variable Read looks at.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg")
	t.Setenv("OPENROUTER_API_KEY", "or")
	t.Setenv("GROQ_API_KEY", "gq")
	t.Setenv("PINECONE_API_KEY", "pc")
	t.Setenv("ALLOWED_USER_IDS", "111, 222")
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "tg" || cfg.LLM.APIKey != "or" || cfg.Voice.APIKey != "gq" || cfg.Memory.Pinecone.APIKey != "pc" {
		t.Errorf("secrets not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Telegram.AllowedUserIDs, []int64{111, 222}) {
		t.Errorf("allowed ids = %v", cfg.Telegram.AllowedUserIDs)
	}
	if cfg.LLM.Model != "google/gemini-2.0-flash-exp:free" || cfg.LLM.MaxIterations != 10 {
		t.Errorf("defaults lost: %+v", cfg.LLM)
	}
	if cfg.DBPath != "data/gravity-claw.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("LLM_MODEL", "openai/gpt-4o-mini")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
db_path: /var/lib/claw/claw.db
llm:
  model: anthropic/claude-3.5-haiku
  max_iterations: 4
memory:
  backend: chromem
  scope: global
chat:
  turn_timeout: 90
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/lib/claw/claw.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.LLM.Model != "openai/gpt-4o-mini" {
		t.Errorf("environment should win over file, model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxIterations != 4 || cfg.LLM.MaxTokens != 2048 {
		t.Errorf("file merge wrong: %+v", cfg.LLM)
	}
	if cfg.Memory.Backend != BackendChromem || cfg.Memory.Scope != "global" {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if cfg.Memory.Ollama.Model != "mxbai-embed-large" {
		t.Errorf("nested default lost: %+v", cfg.Memory.Ollama)
	}
	if got := cfg.Chat.TurnTimeoutDuration().Seconds(); got != 90 {
		t.Errorf("turn timeout = %vs", got)
	}
}

func TestLoad_MissingSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_USER_IDS", "1")

	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, name := range []string{"TELEGRAM_BOT_TOKEN", "OPENROUTER_API_KEY", "GROQ_API_KEY", "PINECONE_API_KEY"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not mention %s: %v", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Telegram.Token = "tg"
		c.Telegram.AllowedUserIDs = []int64{7}
		c.LLM.APIKey = "or"
		c.Voice.APIKey = "gq"
		c.Memory.Pinecone.APIKey = "pc"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty allow-list", func(c *Config) { c.Telegram.AllowedUserIDs = nil }, "ALLOWED_USER_IDS"},
		{"negative id", func(c *Config) { c.Telegram.AllowedUserIDs = []int64{-3} }, "invalid user ID"},
		{"voice disabled needs no groq key", func(c *Config) { c.Voice.Disabled = true; c.Voice.APIKey = "" }, ""},
		{"chromem needs no pinecone key", func(c *Config) { c.Memory.Backend = BackendChromem; c.Memory.Pinecone.APIKey = "" }, ""},
		{"unknown backend", func(c *Config) { c.Memory.Backend = "redis" }, "unknown memory backend"},
		{"unknown scope", func(c *Config) { c.Memory.Scope = "team" }, "unknown memory scope"},
		{"negative timeout", func(c *Config) { c.Chat.TurnTimeout = -1 }, "turn_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseUserIDs(t *testing.T) {
	ids, err := ParseUserIDs(" 5 ,6,5")
	if err != nil {
		t.Fatalf("ParseUserIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{5, 6}) {
		t.Errorf("ids = %v", ids)
	}
	for _, bad := range []string{"abc", "1,,2", "0", "-4"} {
		if _, err := ParseUserIDs(bad); err == nil {
			t.Errorf("ParseUserIDs(%q) should fail", bad)
		}
	}
}

func TestRead_InvalidTurnTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLAW_TURN_TIMEOUT", "soon")
	if _, err := Read(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for non-numeric timeout")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Memory.Backend = BackendChromem
	cfg.Telegram.AllowedUserIDs = []int64{42}

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Memory.Backend != BackendChromem || !reflect.DeepEqual(got.Telegram.AllowedUserIDs, []int64{42}) {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("CLAW_CONFIG_PATH", "/etc/claw.yaml")
	if got := GetConfigPath(); got != "/etc/claw.yaml" {
		t.Errorf("path = %q", got)
	}
}
