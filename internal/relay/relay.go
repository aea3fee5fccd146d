package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/glizzus/cronrelay/internal/config"
)

type Options struct {
	Channel      string
	KeyPrefix    string
	MarkerPrefix string
	// MarkerTTL is refreshed on every registration. Zero keeps markers forever.
	MarkerTTL               time.Duration
	ConfigureKeyspaceEvents bool

	// Ready is called once both subscriptions are confirmed.
	Ready  func()
	Logger *slog.Logger
}

func OptionsFromConfig(cfg *config.RelayConfig) Options {
	return Options{
		Channel:                 cfg.Channel,
		KeyPrefix:               cfg.KeyPrefix,
		MarkerPrefix:            cfg.MarkerPrefix,
		MarkerTTL:               cfg.MarkerTTL,
		ConfigureKeyspaceEvents: cfg.ConfigureKeyspaceEvents,
	}
}

type Relay struct {
	client *redis.Client
	opts   Options
	logger *slog.Logger
}

type registration struct {
	App     string `json:"app"`
	Name    string `json:"name"`
	Channel string `json:"channel"`
	TTL     int64  `json:"ttl"`
}

func New(client *redis.Client, opts Options) *Relay {
	if opts.Channel == "" {
		opts.Channel = "cron_task_queue"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "cron"
	}
	if opts.MarkerPrefix == "" {
		opts.MarkerPrefix = "app"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, opts: opts, logger: logger}
}

// ExpiredPattern is the keyevent channel of the client's database.
func (r *Relay) ExpiredPattern() string {
	return fmt.Sprintf("__keyevent@%d__:expired", r.client.Options().DB)
}

// Run serves registrations and expirations until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	if r.opts.ConfigureKeyspaceEvents {
		if err := r.client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
			return fmt.Errorf("failed to enable expired keyevents: %w", err)
		}
	}

	registrations := r.client.Subscribe(ctx, r.opts.Channel)
	defer registrations.Close()
	if _, err := registrations.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.opts.Channel, err)
	}

	expirations := r.client.PSubscribe(ctx, r.ExpiredPattern())
	defer expirations.Close()
	if _, err := expirations.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.ExpiredPattern(), err)
	}

	r.logger.Info(
		"Relay is ready",
		slog.String("channel", r.opts.Channel),
		slog.String("pattern", r.ExpiredPattern()),
	)
	if r.opts.Ready != nil {
		r.opts.Ready()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consume(ctx, registrations.Channel(), func(ctx context.Context, msg *redis.Message) error {
			r.handleRegistration(ctx, msg.Payload)
			return nil
		})
	})
	g.Go(func() error {
		return consume(ctx, expirations.Channel(), func(ctx context.Context, msg *redis.Message) error {
			r.handleExpired(ctx, msg.Payload)
			return nil
		})
	})
	return g.Wait()
}

func (r *Relay) markerKey(app string) string {
	return r.opts.MarkerPrefix + ":" + app
}

func (r *Relay) sentinelKey(app, raw string) string {
	return r.opts.KeyPrefix + ":" + app + ":" + raw
}

func (r *Relay) handleRegistration(ctx context.Context, raw string) {
	var reg registration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		r.logger.Warn("dropping malformed registration", slog.String("message", raw), slog.Any("error", err))
		return
	}
	if reg.App == "" || reg.TTL < 1 || reg.TTL > MaxTTL {
		r.logger.Warn("dropping registration without app or with an out of range ttl", slog.String("message", raw))
		return
	}

	var armed *redis.BoolCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.markerKey(reg.App), reg.App, r.opts.MarkerTTL)
		armed = pipe.SetNX(ctx, r.sentinelKey(reg.App, raw), "", time.Duration(reg.TTL)*time.Second)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to arm registration", slog.String("app", reg.App), slog.Any("error", err))
		return
	}

	if !armed.Val() {
		r.logger.Debug("registration already armed", slog.String("app", reg.App), slog.String("name", reg.Name))
		return
	}
	r.logger.Info(
		"received registration",
		slog.String("app", reg.App),
		slog.String("name", reg.Name),
		slog.Int64("ttl", reg.TTL),
	)
}

func (r *Relay) handleExpired(ctx context.Context, key string) {
	app, raw, ok := parseSentinelKey(r.opts.KeyPrefix, key)
	if !ok {
		return
	}

	err := r.client.Get(ctx, r.markerKey(app)).Err()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("dropping expiration of unregistered app", slog.String("app", app))
		return
	}
	if err != nil {
		r.logger.Error("failed to check app marker", slog.String("app", app), slog.Any("error", err))
		return
	}

	var envelope struct {
		Channel *string `json:"channel"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil || envelope.Channel == nil || *envelope.Channel == "" {
		r.logger.Warn("dropping expiration without a channel", slog.String("app", app), slog.String("message", raw))
		return
	}

	if err := r.client.Publish(ctx, *envelope.Channel, raw).Err(); err != nil {
		r.logger.Error("failed to relay notification", slog.String("app", app), slog.Any("error", err))
		return
	}
	r.logger.Info("relayed notification", slog.String("app", app), slog.String("channel", *envelope.Channel))
}

// parseSentinelKey splits <prefix>:<app>:<raw> at the first ":{".
func parseSentinelKey(prefix, key string) (app, raw string, ok bool) {
	rest, found := strings.CutPrefix(key, prefix+":")
	if !found {
		return "", "", false
	}
	i := strings.Index(rest, ":{")
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
