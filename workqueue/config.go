package workqueue

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config tunes a ShardExecutor. LoadConfig reads it from CLAW_INDEXER_* variables,
// e.g. CLAW_INDEXER_SHARDS=8 CLAW_INDEXER_QUEUE_SIZE=256.
type Config struct {
	Shards         int           `envconfig:"SHARDS"          default:"4"`
	QueueSize      int           `envconfig:"QUEUE_SIZE"      default:"128"`
	EnqueueTimeout time.Duration `envconfig:"ENQUEUE_TIMEOUT" default:"100ms"`

	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"200ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"10s"`

	// Name labels the executor's metrics.
	Name string `envconfig:"NAME" default:"indexer"`

	// ErrorHandler is called after a job fails for good. Nil means log only.
	ErrorHandler func(error) `ignored:"true"`
}

// LoadConfig populates Config from the environment.
func LoadConfig() (Config, error) {
	var c Config
	return c, envconfig.Process("CLAW_INDEXER", &c)
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	if c.Name == "" {
		c.Name = "indexer"
	}
	return c
}
