package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/glizzus/cronrelay/internal/schedule"
)

const promoteBatch = 1000

// Handler processes a single job. Returning an error marks the job failed.
type Handler func(ctx context.Context, job *Job) error

// Hooks are lifecycle callbacks. Nil hooks are skipped.
type Hooks struct {
	// Ready is called once Process has reached Redis.
	Ready func()
	// Failed is called after a handler error has been recorded.
	Failed func(job *Job, err error)
}

type Options struct {
	Prefix       string
	Concurrency  int
	PollInterval time.Duration
	Hooks        Hooks
	// RecoverActive makes Process move ids left in the active list back to
	// wait before it starts. Only safe with a single process per queue.
	RecoverActive bool
	Logger        *slog.Logger
	Now           func() time.Time
}

// AddOptions controls how a job is admitted.
type AddOptions struct {
	// Delay postpones the job. Zero or negative runs it as soon as possible.
	Delay time.Duration
}

type jobOptions struct {
	Delay int64 `json:"delay"`
}

type Queue struct {
	client *redis.Client
	name   string
	keys   keys
	opts   Options
	logger *slog.Logger
}

func New(client *redis.Client, name string, opts Options) *Queue {
	if opts.Prefix == "" {
		opts.Prefix = "bull"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client: client,
		name:   name,
		keys:   newKeys(opts.Prefix, name),
		opts:   opts,
		logger: logger.With(slog.String("queue", name)),
	}
}

func (q *Queue) Name() string { return q.name }

// KeyPattern returns the KEYS pattern matching every key of the queue.
func (q *Queue) KeyPattern() string { return q.keys.pattern() }

// Add admits data as a new job and returns it with its assigned id.
func (q *Queue) Add(ctx context.Context, data []byte, opts AddOptions) (*Job, error) {
	n, err := q.client.Incr(ctx, q.keys.id()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate job id: %w", err)
	}
	id := strconv.FormatInt(n, 10)

	delay := opts.Delay
	if delay < 0 {
		delay = 0
	}
	delayMs := delay.Milliseconds()
	encodedOpts, err := json.Marshal(jobOptions{Delay: delayMs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job options: %w", err)
	}
	now := q.opts.Now()

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.keys.job(id),
			"data", string(data),
			"opts", string(encodedOpts),
			"timestamp", now.UnixMilli(),
			"delay", delayMs,
			"attemptsMade", 0,
		)
		if delayMs > 0 {
			pipe.ZAdd(ctx, q.keys.delayed(), redis.Z{
				Score:  float64(now.UnixMilli() + delayMs),
				Member: id,
			})
		} else {
			pipe.LPush(ctx, q.keys.wait(), id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add job %s: %w", id, err)
	}

	return &Job{
		ID:        id,
		Data:      data,
		Delay:     time.Duration(delayMs) * time.Millisecond,
		Timestamp: time.UnixMilli(now.UnixMilli()),
		queue:     q,
	}, nil
}

// GetJob loads a job by id. It returns nil without error when the job does
// not exist.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.keys.job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return jobFromHash(q, id, fields), nil
}

func (q *Queue) remove(ctx context.Context, id string) error {
	k := q.keys
	err := removeScript.Run(ctx, q.client,
		[]string{k.job(id), k.wait(), k.active(), k.delayed(), k.completed(), k.failed()},
		id,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}
	return nil
}

// Clean deletes completed and failed jobs that finished more than grace ago.
// It returns how many jobs were deleted.
func (q *Queue) Clean(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := q.opts.Now().Add(-grace).UnixMilli()
	total := 0
	for _, set := range []string{q.keys.completed(), q.keys.failed()} {
		n, err := cleanScript.Run(ctx, q.client, []string{set}, cutoff, q.keys.base).Int()
		if err != nil {
			return total, fmt.Errorf("failed to clean %s: %w", set, err)
		}
		total += n
	}
	return total, nil
}

// Promote moves due delayed jobs to the wait list.
func (q *Queue) Promote(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.keys.delayed(), q.keys.wait()},
		q.opts.Now().UnixMilli(), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return n, nil
}

// RecoverStalled moves every id in the active list back to wait and returns
// how many were moved.
func (q *Queue) RecoverStalled(ctx context.Context) (int, error) {
	n, err := recoverScript.Run(ctx, q.client, []string{q.keys.active(), q.keys.wait()}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to recover stalled jobs: %w", err)
	}
	return n, nil
}

// Process runs handler for every job that becomes due until ctx is done.
// Up to Options.Concurrency jobs run at once.
func (q *Queue) Process(ctx context.Context, handler Handler) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	if q.opts.RecoverActive {
		n, err := q.RecoverStalled(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			q.logger.Warn("recovered stalled jobs", slog.Int("count", n))
		}
	}
	q.logger.Info("Queue is ready", slog.Int("concurrency", q.opts.Concurrency))
	if q.opts.Hooks.Ready != nil {
		q.opts.Hooks.Ready()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			if _, err := q.Promote(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to promote delayed jobs", slog.Any("error", err))
			}
			if !schedule.Sleep(ctx, q.opts.PollInterval) {
				return nil
			}
		}
	})
	for range q.opts.Concurrency {
		g.Go(func() error {
			for ctx.Err() == nil {
				q.next(ctx, handler)
			}
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) next(ctx context.Context, handler Handler) {
	id, err := q.client.BLMove(ctx, q.keys.wait(), q.keys.active(), "RIGHT", "LEFT", q.opts.PollInterval).Result()
	if errors.Is(err, redis.Nil) {
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("failed to take job", slog.Any("error", err))
			schedule.Sleep(ctx, q.opts.PollInterval)
		}
		return
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.logger.Error("failed to load job", slog.String("jobID", id), slog.Any("error", err))
		q.requeue(context.WithoutCancel(ctx), id)
		schedule.Sleep(ctx, q.opts.PollInterval)
		return
	}
	if job == nil {
		q.logger.Debug("skipping removed job", slog.String("jobID", id))
		q.client.LRem(ctx, q.keys.active(), 0, id)
		return
	}

	started := q.opts.Now()
	job.ProcessedOn = started
	if err := q.client.HSet(ctx, job.Key(), "processedOn", started.UnixMilli()).Err(); err != nil {
		q.logger.Warn("failed to mark job processed", slog.String("jobID", id), slog.Any("error", err))
	}

	handlerErr := runHandler(ctx, handler, job)
	if err := q.finish(ctx, job, handlerErr); err != nil {
		q.logger.Error("failed to finish job", slog.String("jobID", id), slog.Any("error", err))
	}
	if handlerErr != nil && q.opts.Hooks.Failed != nil {
		q.opts.Hooks.Failed(job, handlerErr)
	}
}

func (q *Queue) requeue(ctx context.Context, id string) {
	err := requeueScript.Run(ctx, q.client, []string{q.keys.active(), q.keys.wait()}, id).Err()
	if err != nil {
		q.logger.Error("failed to requeue job; it stays active", slog.String("jobID", id), slog.Any("error", err))
	}
}

func runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) finish(ctx context.Context, job *Job, handlerErr error) error {
	target := q.keys.completed()
	reason := ""
	if handlerErr != nil {
		target = q.keys.failed()
		reason = handlerErr.Error()
		job.FailedReason = reason
		job.AttemptsMade++
	}
	finished := q.opts.Now()
	job.FinishedOn = finished

	// The handler may have been cancelled with ctx; bookkeeping must still land.
	ctx = context.WithoutCancel(ctx)
	return finishScript.Run(ctx, q.client,
		[]string{job.Key(), q.keys.active(), target},
		job.ID, finished.UnixMilli(), reason,
	).Err()
}
