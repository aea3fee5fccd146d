package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/glizzus/cronrelay/internal/jobqueue"
	"github.com/glizzus/cronrelay/internal/repository"
	"github.com/glizzus/cronrelay/internal/schedule"
)

var ErrUnknownMethod = errors.New("unknown task method")

// Run processes due tasks until ctx is done. It also sweeps finished jobs
// from the queue on the configured clean schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cleanSpec != "" {
		maintenance := cron.New()
		if _, err := maintenance.AddFunc(s.cleanSpec, func() { s.clean(ctx) }); err != nil {
			return fmt.Errorf("invalid clean schedule %q: %w", s.cleanSpec, err)
		}
		maintenance.Start()
		defer func() { <-maintenance.Stop().Done() }()
	}

	return s.queue.Process(ctx, s.handle)
}

func (s *Scheduler) clean(ctx context.Context) {
	n, err := s.queue.Clean(ctx, s.cleanGrace)
	if err != nil {
		s.logger.Error("failed to clean queue", slog.Any("error", err))
		return
	}
	s.logger.Debug("cleaned queue", slog.Int("removed", n))
}

func (s *Scheduler) handle(ctx context.Context, job *jobqueue.Job) error {
	var task Task
	if err := json.Unmarshal(job.Data, &task); err != nil {
		return fmt.Errorf("failed to decode task: %w", err)
	}
	fn, ok := s.registry.Lookup(task.Method)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, task.Method)
	}

	firedAt := s.now()
	err := invoke(ctx, fn, task.Params)
	if err != nil {
		s.logger.Error(
			"task handler failed",
			slog.String("method", task.Method),
			slog.String("jobID", job.ID),
			slog.Any("error", err),
		)
	}
	// A shutdown may cancel ctx mid-handler; history and the successor must still land.
	ctx = context.WithoutCancel(ctx)
	s.record(ctx, job.ID, task, firedAt, err)

	if schedule.IsRecurring(task.Rule) {
		if _, err := s.Publish(ctx, task); err != nil {
			s.logger.Error(
				"failed to re-arm recurring task; recurrence stops",
				slog.String("method", task.Method),
				slog.String("rule", task.Rule),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func invoke(ctx context.Context, fn HandlerFunc, params []json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn(ctx, params)
}

func (s *Scheduler) record(ctx context.Context, jobID string, task Task, firedAt time.Time, handlerErr error) {
	if s.history == nil {
		return
	}
	firing := repository.Firing{
		App:      s.app,
		JobID:    jobID,
		Method:   task.Method,
		UniqueID: task.UniqueID,
		Rule:     task.Rule,
		FiredAt:  firedAt,
	}
	if handlerErr != nil {
		firing.Error = handlerErr.Error()
	}
	if err := s.history.Save(ctx, firing); err != nil {
		s.logger.Warn("failed to record firing", slog.String("jobID", jobID), slog.Any("error", err))
	}
}
