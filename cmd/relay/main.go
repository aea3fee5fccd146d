package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/glizzus/cronrelay/internal/config"
	"github.com/glizzus/cronrelay/internal/logging"
	"github.com/glizzus/cronrelay/internal/relay"
)

func runRelayForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	logConfig, err := config.NewLogConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load log config: %w", err)
	}
	logger, closeLog := logging.New(logConfig, "relay")
	defer closeLog()
	slog.SetDefault(logger)

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	relayConfig, err := config.NewRelayConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load relay config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(redisConfig.Options())
	defer rdb.Close()

	opts := relay.OptionsFromConfig(relayConfig)
	opts.Logger = logger
	return relay.New(rdb, opts).Run(ctx)
}

func main() {
	if err := runRelayForever(); err != nil {
		slog.Error("Relay encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
