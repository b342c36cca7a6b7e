// Package scheduler provides the adapter that enqueues periodic scan jobs.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/observability/statsd"
	"github.com/ladlehq/ladle/internal/service"
)

// taskSchedule pairs a scheduled task name with its cadence.
type taskSchedule struct {
	task  string
	every time.Duration
}

// Runner ticks at a fixed interval and enqueues each scheduled task whose
// cadence has elapsed, unless a job for that task is already waiting or
// active. The queue is the coordination point: several scheduler instances
// can tick concurrently and the pending check keeps the task singleton.
type Runner struct {
	jobs     *service.JobService
	interval time.Duration
	tasks    []taskSchedule
	lastRun  map[string]time.Time
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs    *service.JobService
	Config  config.SchedulerConfig
	Logger  *slog.Logger
	Metrics statsd.Sink

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewRunner creates a scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job service is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scheduler")
	}

	return &Runner{
		jobs:     opts.Jobs,
		interval: cfg.Interval,
		tasks: []taskSchedule{
			{task: payload.TaskLowStockScan, every: cfg.LowStockEvery},
			{task: payload.TaskExpiringLotsScan, every: cfg.ExpiringLotsEvery},
			{task: payload.TaskReminders, every: cfg.RemindersEvery},
			{task: payload.TaskCleanup, every: cfg.CleanupEvery},
		},
		lastRun: make(map[string]time.Time),
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run starts the tick loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "starting scheduler", "interval", r.interval)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			start := time.Now()
			enqueued, err := r.Tick(ctx)
			r.emitTickMetrics(enqueued, time.Since(start), err)

			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Keep ticking; a transient queue error should not kill the loop.
				if r.logger != nil {
					r.logger.ErrorContext(ctx, "scheduler tick error", "error", err)
				}
			} else if enqueued > 0 && r.logger != nil {
				r.logger.InfoContext(ctx, "scheduler enqueued tasks", "count", enqueued)
			}
		}
	}
}

// Tick enqueues every due task and returns how many jobs were created.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	now := r.now()
	enqueued := 0
	var firstErr error

	for _, ts := range r.tasks {
		if last, ok := r.lastRun[ts.task]; ok && now.Sub(last) < ts.every {
			continue
		}

		pending, err := r.jobs.ScheduledTaskPending(ctx, ts.task)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if pending {
			// A previous instance of the task is still in flight; try again
			// next time its cadence elapses.
			r.lastRun[ts.task] = now
			continue
		}

		if _, err := r.jobs.EnqueuePayload(ctx, payload.Scheduled{Task: ts.task}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		r.lastRun[ts.task] = now
		enqueued++
	}

	return enqueued, firstErr
}

func (r *Runner) emitTickMetrics(enqueued int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	tags := map[string]string{"result": result}
	r.metrics.Count("scheduler.tick", 1, tags)
	r.metrics.Timing("scheduler.tick_duration", elapsed, tags)
	if enqueued > 0 {
		r.metrics.Count("scheduler.enqueued", int64(enqueued), nil)
	}
}
