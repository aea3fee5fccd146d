package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// RelayConfig configures the server role.
type RelayConfig struct {
	Channel                 string        `env:"RELAY_CHANNEL, default=cron_task_queue"`
	KeyPrefix               string        `env:"RELAY_KEY_PREFIX, default=cron"`
	MarkerPrefix            string        `env:"RELAY_MARKER_PREFIX, default=app"`
	MarkerTTL               time.Duration `env:"RELAY_MARKER_TTL, default=0"`
	ConfigureKeyspaceEvents bool          `env:"RELAY_CONFIGURE_KEYSPACE_EVENTS, default=false"`
}

func NewRelayConfigFromEnv() (*RelayConfig, error) {
	var cfg RelayConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Channel == "" || cfg.KeyPrefix == "" || cfg.MarkerPrefix == "" {
		return nil, fmt.Errorf("RELAY_CHANNEL, RELAY_KEY_PREFIX and RELAY_MARKER_PREFIX must not be empty")
	}
	if cfg.MarkerTTL < 0 {
		return nil, fmt.Errorf("RELAY_MARKER_TTL must not be negative")
	}
	return &cfg, nil
}
