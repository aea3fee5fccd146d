package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// SchedulerConfig configures the client role: the task scheduler and the
// worker that drains its job queue.
type SchedulerConfig struct {
	App          string        `env:"SCHEDULER_APP, required"`
	KeyPrefix    string        `env:"SCHEDULER_KEY_PREFIX, default=bull"`
	LockPrefix   string        `env:"SCHEDULER_LOCK_PREFIX, default=cronrelay-lock"`
	Concurrency  int           `env:"SCHEDULER_CONCURRENCY, default=1"`
	PollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL, default=1s"`
	LockTTL      time.Duration `env:"SCHEDULER_LOCK_TTL, default=30s"`
	LockWait     time.Duration `env:"SCHEDULER_LOCK_WAIT, default=10s"`
	CleanSpec    string        `env:"SCHEDULER_CLEAN_SPEC, default=@every 10m"`
	CleanGrace   time.Duration `env:"SCHEDULER_CLEAN_GRACE, default=1h"`
	// RecoverActive requeues jobs a crashed worker left active. Enable it
	// only when a single scheduler process drains the app's queue.
	RecoverActive bool `env:"SCHEDULER_RECOVER_ACTIVE, default=false"`
}

func NewSchedulerConfigFromEnv() (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SchedulerConfig) Validate() error {
	if strings.Contains(c.App, ":") || c.App == "" {
		return fmt.Errorf("SCHEDULER_APP must be non-empty and must not contain ':', got %q", c.App)
	}
	if strings.Contains(c.KeyPrefix, ":") || c.KeyPrefix == "" {
		return fmt.Errorf("SCHEDULER_KEY_PREFIX must be non-empty and must not contain ':', got %q", c.KeyPrefix)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("SCHEDULER_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive")
	}
	if c.LockTTL <= 0 || c.LockWait <= 0 {
		return fmt.Errorf("SCHEDULER_LOCK_TTL and SCHEDULER_LOCK_WAIT must be positive")
	}
	return nil
}
