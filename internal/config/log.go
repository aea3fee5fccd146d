package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type LogConfig struct {
	Level     string `env:"LOG_LEVEL, default=info"`
	FileLevel string `env:"LOG_FILE_LEVEL, default=debug"`
	File      string `env:"LOG_FILE"`
	NoColor   bool   `env:"LOG_NO_COLOR, default=false"`
}

func NewLogConfigFromEnv() (*LogConfig, error) {
	var cfg LogConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
