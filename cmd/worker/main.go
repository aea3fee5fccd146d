package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/glizzus/cronrelay/internal/config"
	"github.com/glizzus/cronrelay/internal/datalayer"
	"github.com/glizzus/cronrelay/internal/logging"
	"github.com/glizzus/cronrelay/internal/repository"
	"github.com/glizzus/cronrelay/internal/scheduler"
)

func registerHandlers(s *scheduler.Scheduler, rdb *redis.Client, logger *slog.Logger) error {
	if err := s.Register("log", func(ctx context.Context, params []json.RawMessage) error {
		logger.InfoContext(ctx, "log task fired", slog.Any("params", params))
		return nil
	}); err != nil {
		return err
	}

	// publish expects [channel, message] and forwards message as JSON.
	return s.Register("publish", func(ctx context.Context, params []json.RawMessage) error {
		if len(params) != 2 {
			return fmt.Errorf("publish expects 2 params, got %d", len(params))
		}
		var channel string
		if err := json.Unmarshal(params[0], &channel); err != nil || channel == "" {
			return fmt.Errorf("publish channel must be a non-empty string")
		}
		return rdb.Publish(ctx, channel, string(params[1])).Err()
	})
}

func runWorkerForever() error {
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
	logger, closeLog := logging.New(logConfig, "worker")
	defer closeLog()
	slog.SetDefault(logger)

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}
	schedulerConfig, err := config.NewSchedulerConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load scheduler config: %w", err)
	}
	historyConfig, err := config.NewHistoryConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load history config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(redisConfig.Options())
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	opts := scheduler.OptionsFromConfig(schedulerConfig)
	opts.Logger = logger

	if historyConfig.Enabled {
		postgresConfig, err := config.NewPostgresConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load postgres config: %w", err)
		}
		pool, err := datalayer.NewPostgresPool(ctx, postgresConfig)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := datalayer.MigratePostgres(pool); err != nil {
			return fmt.Errorf("failed to migrate postgres: %w", err)
		}
		opts.History = repository.NewPostgresFiringRepository(pool)
		logger.Info("Recording firing history in postgres")
	}

	s := scheduler.New(rdb, opts)
	if err := registerHandlers(s, rdb, logger); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	return s.Run(ctx)
}

func main() {
	if err := runWorkerForever(); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
