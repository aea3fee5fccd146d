package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// HistoryConfig toggles the Postgres firing history. Postgres settings are
// only read when it is enabled.
type HistoryConfig struct {
	Enabled bool `env:"HISTORY_ENABLED, default=false"`
}

func NewHistoryConfigFromEnv() (*HistoryConfig, error) {
	var cfg HistoryConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
