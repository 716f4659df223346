// Package config loads claw's configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Memory backends.
const (
	BackendPinecone = "pinecone"
	BackendChromem  = "chromem"
)

// TelegramConfig configures the bot.
type TelegramConfig struct {
	Token          string  `yaml:"token,omitempty"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids,omitempty"`
	BaseURL        string  `yaml:"base_url,omitempty"`
	PollTimeout    int     `yaml:"poll_timeout,omitempty"` // seconds
}

// LLMConfig configures the chat-completions provider.
type LLMConfig struct {
	APIKey        string `yaml:"api_key,omitempty"`
	BaseURL       string `yaml:"base_url,omitempty"`
	Model         string `yaml:"model,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
	MaxTokens     int64  `yaml:"max_tokens,omitempty"`
	MaxRetries    int    `yaml:"max_retries,omitempty"`
}

// VoiceConfig configures transcription.
type VoiceConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

// PineconeConfig configures the Pinecone backend.
type PineconeConfig struct {
	APIKey        string `yaml:"api_key,omitempty"`
	ControlURL    string `yaml:"control_url,omitempty"`
	IndexName     string `yaml:"index_name,omitempty"`
	EmbedModel    string `yaml:"embed_model,omitempty"`
	Dimension     int    `yaml:"dimension,omitempty"`
	Cloud         string `yaml:"cloud,omitempty"`
	Region        string `yaml:"region,omitempty"`
	ReadyInterval int    `yaml:"ready_interval,omitempty"` // seconds
	ReadyAttempts int    `yaml:"ready_attempts,omitempty"`
}

// ChromemConfig configures the embedded vector store.
type ChromemConfig struct {
	Path       string `yaml:"path,omitempty"` // empty keeps the index in memory
	Compress   bool   `yaml:"compress,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// OllamaConfig configures the embedding model used with chromem.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`
	Model string `yaml:"model,omitempty"`
}

// MemoryConfig configures recall and indexing.
type MemoryConfig struct {
	Backend           string         `yaml:"backend,omitempty"`
	Scope             string         `yaml:"scope,omitempty"`
	RecentLimit       int            `yaml:"recent_limit,omitempty"`
	RecallTopK        int            `yaml:"recall_top_k,omitempty"`
	ReconcileSchedule string         `yaml:"reconcile_schedule,omitempty"`
	ReindexBatch      int            `yaml:"reindex_batch,omitempty"`
	QueryCacheSize    int64          `yaml:"query_cache_size,omitempty"`
	Pinecone          PineconeConfig `yaml:"pinecone,omitempty"`
	Chromem           ChromemConfig  `yaml:"chromem,omitempty"`
	Ollama            OllamaConfig   `yaml:"ollama,omitempty"`
}

// ChatConfig configures turn handling.
type ChatConfig struct {
	TurnTimeout int `yaml:"turn_timeout,omitempty"` // seconds, 0 disables
}

// OpsConfig configures the ops HTTP endpoint.
type OpsConfig struct {
	Listen string `yaml:"listen,omitempty"` // empty disables
}

// LogConfig configures logging.
type LogConfig struct {
	File   string `yaml:"file,omitempty"`
	Pretty bool   `yaml:"pretty,omitempty"`
	Level  string `yaml:"level,omitempty"`
}

// Config is the complete configuration.
type Config struct {
	DBPath   string         `yaml:"db_path,omitempty"`
	Telegram TelegramConfig `yaml:"telegram,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Voice    VoiceConfig    `yaml:"voice,omitempty"`
	Memory   MemoryConfig   `yaml:"memory,omitempty"`
	Chat     ChatConfig     `yaml:"chat,omitempty"`
	Ops      OpsConfig      `yaml:"ops,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// envOverrides are the environment variables that win over the file.
// Secrets keep the names the bot has always used.
type envOverrides struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	AllowedUserIDs   string `envconfig:"ALLOWED_USER_IDS"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`
	LLMModel         string `envconfig:"LLM_MODEL"`
	GroqAPIKey       string `envconfig:"GROQ_API_KEY"`
	PineconeAPIKey   string `envconfig:"PINECONE_API_KEY"`
	OllamaHost       string `envconfig:"OLLAMA_HOST"`

	DBPath        string `envconfig:"CLAW_DB_PATH"`
	MemoryBackend string `envconfig:"CLAW_MEMORY_BACKEND"`
	MemoryScope   string `envconfig:"CLAW_MEMORY_SCOPE"`
	ChromemPath   string `envconfig:"CLAW_CHROMEM_PATH"`
	OpsListen     string `envconfig:"CLAW_OPS_LISTEN"`
	TurnTimeout   string `envconfig:"CLAW_TURN_TIMEOUT"`
	LogFile       string `envconfig:"CLAW_LOG_FILE"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath: "data/gravity-claw.db",
		Telegram: TelegramConfig{
			BaseURL:     "https://api.telegram.org",
			PollTimeout: 30,
		},
		LLM: LLMConfig{
			BaseURL:       "https://openrouter.ai/api/v1",
			Model:         "google/gemini-2.0-flash-exp:free",
			MaxIterations: 10,
			MaxTokens:     2048,
			MaxRetries:    3,
		},
		Voice: VoiceConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "whisper-large-v3",
		},
		Memory: MemoryConfig{
			Backend:           BackendPinecone,
			Scope:             "conversation",
			RecentLimit:       10,
			RecallTopK:        5,
			ReconcileSchedule: "@every 10m",
			ReindexBatch:      200,
			QueryCacheSize:    1000,
			Pinecone: PineconeConfig{
				ControlURL:    "https://api.pinecone.io",
				IndexName:     "gravity-claw",
				EmbedModel:    "multilingual-e5-large",
				Dimension:     1024,
				Cloud:         "aws",
				Region:        "us-east-1",
				ReadyInterval: 2,
				ReadyAttempts: 60,
			},
			Chromem: ChromemConfig{
				Path:       "data/chromem",
				Compress:   false,
				Collection: "gravity-claw",
			},
			Ollama: OllamaConfig{
				Host:  "http://localhost:11434",
				Model: "mxbai-embed-large",
			},
		},
	}
}

// GetConfigPath returns the config file path.
// Can be overridden via CLAW_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("CLAW_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.claw/config.yaml"
	}
	return filepath.Join(homeDir, ".claw", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the configuration with Read and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read merges defaults, the file at path (which may not exist) and the
// environment without validating the result.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec G304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setString(&cfg.Telegram.Token, env.TelegramBotToken)
	setString(&cfg.LLM.APIKey, env.OpenRouterAPIKey)
	setString(&cfg.LLM.Model, env.LLMModel)
	setString(&cfg.Voice.APIKey, env.GroqAPIKey)
	setString(&cfg.Memory.Pinecone.APIKey, env.PineconeAPIKey)
	setString(&cfg.Memory.Ollama.Host, env.OllamaHost)
	setString(&cfg.DBPath, env.DBPath)
	setString(&cfg.Memory.Backend, env.MemoryBackend)
	setString(&cfg.Memory.Scope, env.MemoryScope)
	setString(&cfg.Memory.Chromem.Path, env.ChromemPath)
	setString(&cfg.Ops.Listen, env.OpsListen)
	setString(&cfg.Log.File, env.LogFile)
	if v := strings.TrimSpace(env.TurnTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CLAW_TURN_TIMEOUT %q: %w", v, err)
		}
		cfg.Chat.TurnTimeout = secs
	}

	if strings.TrimSpace(env.AllowedUserIDs) != "" {
		ids, err := ParseUserIDs(env.AllowedUserIDs)
		if err != nil {
			return err
		}
		cfg.Telegram.AllowedUserIDs = ids
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// ParseUserIDs parses a comma-separated list of positive Telegram user ids.
func ParseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user ID: %q", part)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Validate reports missing secrets and out-of-range settings.
func (c *Config) Validate() error {
	var errs []error
	require := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("missing required setting: %s", name))
		}
	}

	require(c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	require(c.LLM.APIKey, "OPENROUTER_API_KEY")
	if !c.Voice.Disabled {
		require(c.Voice.APIKey, "GROQ_API_KEY")
	}
	switch c.Memory.Backend {
	case BackendPinecone:
		require(c.Memory.Pinecone.APIKey, "PINECONE_API_KEY")
	case BackendChromem:
	default:
		errs = append(errs, fmt.Errorf("unknown memory backend %q", c.Memory.Backend))
	}
	switch c.Memory.Scope {
	case "conversation", "global":
	default:
		errs = append(errs, fmt.Errorf("unknown memory scope %q", c.Memory.Scope))
	}

	if len(c.Telegram.AllowedUserIDs) == 0 {
		errs = append(errs, errors.New("ALLOWED_USER_IDS must contain at least one user ID"))
	}
	for _, id := range c.Telegram.AllowedUserIDs {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("invalid user ID: %d", id))
		}
	}
	if c.Chat.TurnTimeout < 0 {
		errs = append(errs, errors.New("chat.turn_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// TurnTimeoutDuration returns the turn deadline, zero when disabled.
func (c ChatConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// PollTimeoutDuration returns the long-poll wait.
func (c TelegramConfig) PollTimeoutDuration() time.Duration {
	return time.Duration(c.PollTimeout) * time.Second
}

// ReadyIntervalDuration returns the readiness poll interval.
func (c PineconeConfig) ReadyIntervalDuration() time.Duration {
	return time.Duration(c.ReadyInterval) * time.Second
}

// Save writes cfg to path as YAML, creating the directory.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
