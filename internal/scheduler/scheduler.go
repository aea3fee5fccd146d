package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/glizzus/cronrelay/internal/config"
	"github.com/glizzus/cronrelay/internal/generator"
	"github.com/glizzus/cronrelay/internal/jobqueue"
	"github.com/glizzus/cronrelay/internal/repository"
	"github.com/glizzus/cronrelay/internal/schedule"
)

// replacedGrace is the retention used for the queue sweep that follows a
// uniqueID replacement.
const replacedGrace = time.Second

var ErrMissingMethod = errors.New("task method is required")

type Options struct {
	App          string
	KeyPrefix    string
	LockPrefix   string
	Concurrency  int
	PollInterval time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
	CleanSpec    string
	CleanGrace   time.Duration
	// RecoverActive requeues jobs left active by a crashed worker on startup.
	RecoverActive bool

	// History receives one record per firing. Nil disables it.
	History repository.FiringPersister
	// LockTokens defaults to UUIDv4 tokens.
	LockTokens generator.Generator[string]
	Logger     *slog.Logger
	Now        func() time.Time
}

// OptionsFromConfig maps the environment configuration onto Options.
func OptionsFromConfig(cfg *config.SchedulerConfig) Options {
	return Options{
		App:          cfg.App,
		KeyPrefix:    cfg.KeyPrefix,
		LockPrefix:   cfg.LockPrefix,
		Concurrency:  cfg.Concurrency,
		PollInterval: cfg.PollInterval,
		LockTTL:      cfg.LockTTL,
		LockWait:     cfg.LockWait,
		CleanSpec:    cfg.CleanSpec,
		CleanGrace:   cfg.CleanGrace,

		RecoverActive: cfg.RecoverActive,
	}
}

type Scheduler struct {
	app      string
	client   *redis.Client
	queue    *jobqueue.Queue
	registry *Registry
	locks    *uniqueLocker
	history  repository.FiringPersister
	logger   *slog.Logger
	now      func() time.Time

	cleanSpec  string
	cleanGrace time.Duration
}

func New(client *redis.Client, opts Options) *Scheduler {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "bull"
	}
	if opts.LockPrefix == "" {
		opts.LockPrefix = "cronrelay-lock"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	if opts.CleanGrace <= 0 {
		opts.CleanGrace = time.Hour
	}
	if opts.LockTokens == nil {
		opts.LockTokens = &generator.UUIDV4Generator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("app", opts.App))

	s := &Scheduler{
		app:        opts.App,
		client:     client,
		registry:   NewRegistry(),
		history:    opts.History,
		logger:     logger,
		now:        opts.Now,
		cleanSpec:  opts.CleanSpec,
		cleanGrace: opts.CleanGrace,
	}
	s.locks = &uniqueLocker{
		client: client,
		prefix: opts.LockPrefix + ":" + opts.App,
		ttl:    opts.LockTTL,
		wait:   opts.LockWait,
		tokens: opts.LockTokens,
		logger: logger,
	}
	s.queue = jobqueue.New(client, opts.App, jobqueue.Options{
		Prefix:       opts.KeyPrefix,
		Concurrency:  opts.Concurrency,
		PollInterval: opts.PollInterval,
		Logger:       logger,
		Now:          opts.Now,

		RecoverActive: opts.RecoverActive,
		Hooks: jobqueue.Hooks{
			Ready: func() {
				logger.Info("Scheduler is ready", slog.Any("methods", s.registry.Names()))
			},
			Failed: func(job *jobqueue.Job, err error) {
				logger.Error("task failed", slog.String("jobID", job.ID), slog.Any("error", err))
			},
		},
	})
	return s
}

// Queue exposes the underlying job queue.
func (s *Scheduler) Queue() *jobqueue.Queue { return s.queue }

// Register makes fn available to tasks whose method is name.
func (s *Scheduler) Register(name string, fn HandlerFunc) error {
	return s.registry.Register(name, fn)
}

// Publish admits task into the queue.
//
// When the task carries a uniqueID, every pending entry with the same
// uniqueID is cancelled first. Entries whose payload cannot be decoded are
// cancelled too. A rule in the past returns schedule.ErrExpired and an
// unparseable rule returns schedule.ErrInvalidRule; neither enqueues anything.
func (s *Scheduler) Publish(ctx context.Context, task Task) (Receipt, error) {
	if task.Method == "" {
		return Receipt{}, ErrMissingMethod
	}
	if task.Params == nil {
		task.Params = []json.RawMessage{}
	}

	if task.UniqueID != "" {
		release, err := s.locks.acquire(ctx, task.UniqueID)
		if err != nil {
			return Receipt{}, err
		}
		defer release()

		if err := s.cancelUnique(ctx, task.UniqueID); err != nil {
			return Receipt{}, err
		}
	}

	return s.admit(ctx, task)
}

func (s *Scheduler) admit(ctx context.Context, task Task) (Receipt, error) {
	var delay time.Duration
	if task.Rule != "" {
		d, err := schedule.ComputeDelay(task.Rule, s.now())
		if err != nil {
			return Receipt{}, fmt.Errorf("failed to schedule %s with rule %q: %w", task.Method, task.Rule, err)
		}
		delay = d
	}

	data, err := json.Marshal(task)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to encode task: %w", err)
	}

	job, err := s.queue.Add(ctx, data, jobqueue.AddOptions{Delay: delay})
	if err != nil {
		return Receipt{}, err
	}

	s.logger.Info(
		"published task",
		slog.String("method", task.Method),
		slog.String("jobID", job.ID),
		slog.Duration("delay", job.Delay),
	)
	return Receipt{JobID: job.ID, Key: job.Key(), Delay: job.Delay}, nil
}

func (s *Scheduler) cancelUnique(ctx context.Context, uniqueID string) error {
	entries, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan pending tasks for uniqueID %q: %w", uniqueID, err)
	}

	cancelled := 0
	for _, entry := range entries {
		task, err := entry.Task()
		if err == nil && task.UniqueID != uniqueID {
			continue
		}
		if err != nil {
			s.logger.Debug("deleting entry without a readable payload", slog.String("key", entry.Key), slog.Any("error", err))
		} else {
			s.logger.Info("deleting task", slog.String("key", entry.Key), slog.String("uniqueID", uniqueID))
		}
		if err := s.Delete(ctx, entry.Key); err != nil {
			s.logger.Error("failed to delete task", slog.String("key", entry.Key), slog.Any("error", err))
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		if _, err := s.queue.Clean(ctx, replacedGrace); err != nil {
			s.logger.Warn("failed to clean queue", slog.Any("error", err))
		}
	}
	return nil
}

// List returns every pending entry of the app. Keys that are not job hashes
// are skipped. Entries that cannot be read are logged and left out; only a
// failure to enumerate keys is returned.
func (s *Scheduler) List(ctx context.Context) ([]PendingEntry, error) {
	keys, err := s.client.Keys(ctx, s.queue.KeyPattern()).Result()
	if err != nil {
		s.logger.Error("failed to list keys", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	entries := make([]PendingEntry, 0, len(keys))
	for _, key := range keys {
		id, ok := jobqueue.JobIDFromKey(key)
		if !ok {
			continue
		}
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			s.logger.Error("failed to read entry", slog.String("key", key), slog.Any("error", err))
			continue
		}
		if len(fields) == 0 {
			continue
		}
		entries = append(entries, PendingEntry{Key: key, JobID: id, Fields: fields})
	}
	return entries, nil
}

// Delete removes the job behind a pending entry key. Keys without a job id,
// keys of another queue and jobs that no longer exist are ignored.
func (s *Scheduler) Delete(ctx context.Context, key string) error {
	id, ok := jobqueue.JobIDFromKey(key)
	if !ok {
		return nil
	}
	if !strings.HasPrefix(s.queue.KeyPattern(), strings.TrimSuffix(key, id)) {
		s.logger.Debug("ignoring key of another queue", slog.String("key", key))
		return nil
	}

	job, err := s.queue.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	return job.Remove(ctx)
}
