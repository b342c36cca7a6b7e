// Package service implements the business logic of the platform core: job
// dispatch, inventory deduction, periodic scans, order event glue and
// retention cleanup. Services depend on the ports in internal/core and are
// wired together at bootstrap.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ladlehq/ladle/internal/core"
	domainjob "github.com/ladlehq/ladle/internal/domain/job"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for reservations
	BackoffBase     time.Duration             // Required unless Backoff is set
	BackoffCap      time.Duration             // Required unless Backoff is set
	Logger          *slog.Logger              // Optional: structured logger
	Backoff         *domainjob.BackoffPolicy  // Optional: override retry backoff policy
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides business logic for the durable job queue.
//
// This service manages:
// - Enqueueing with payload schema validation
// - Job reservation and lease management
// - Retry scheduling with exponential backoff
// - Pub/sub wakeups for idle workers
// - Graceful shutdown of all listeners.
type JobService struct {
	repo        core.JobRepository
	leasePolicy *domainjob.LeasePolicy
	backoff     *domainjob.BackoffPolicy
	notifier    domainjob.Notifier
	logger      *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	backoff := opts.Backoff
	if backoff == nil {
		var err error
		backoff, err = domainjob.NewBackoffPolicy(opts.BackoffBase, opts.BackoffCap)
		if err != nil {
			return nil, fmt.Errorf("create backoff policy: %w", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &JobService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		backoff:     backoff,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Enqueue validates the payload against its category schema and persists the
// job. Malformed payloads never reach the queue.
func (s *JobService) Enqueue(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate job request: %w", err)
	}
	if _, err := payload.Decode(req.Category, req.Payload); err != nil {
		return nil, fmt.Errorf("validate job payload: %w", err)
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"job enqueued",
			"id",
			job.ID,
			"category",
			job.Category,
			"priority",
			job.Priority,
		)
	}

	return job, nil
}

// EnqueuePayload encodes a typed payload and enqueues it under its own
// category with default priority and attempts.
func (s *JobService) EnqueuePayload(ctx context.Context, p payload.Payload) (*model.Job, error) {
	raw, err := payload.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return s.Enqueue(ctx, &model.CreateJobRequest{
		Category: p.Category(),
		Payload:  raw,
	})
}

// ReserveNext reserves the next eligible job of the given category for
// processing. Returns model.ErrNoJobsAvailable when the queue is empty.
func (s *JobService) ReserveNext(
	ctx context.Context,
	category model.JobCategory,
	lease time.Duration,
) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested,
			"category", category)
	}

	job, err := s.repo.ReserveNext(ctx, category, decision.Seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(
			ctx,
			"job reserved",
			"id",
			job.ID,
			"category",
			category,
			"lease_seconds",
			decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for job notifications of the given
// category. Returns an unsubscribe function and a channel that receives
// wakeups.
func (s *JobService) Subscribe(category model.JobCategory) (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(category)
}

// WaitForNotification waits for a notification indicating new jobs are available.
func (s *JobService) WaitForNotification(ctx context.Context, category model.JobCategory) error {
	return s.repo.WaitForNotification(ctx, category)
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// Complete marks a job as completed successfully.
func (s *JobService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if s.logger != nil && completed {
		s.logger.DebugContext(ctx, "job completed", "id", id)
	}

	return completed, nil
}

// Fail records a handler failure for an active job.
//
// Permanent failures (invalid recipient, malformed payload) mark the job
// failed immediately without consuming a retry attempt. Transient failures
// consume an attempt and, while attempts remain, reschedule the job with
// exponential backoff.
func (s *JobService) Fail(ctx context.Context, job *model.Job, jobErr error) (bool, error) {
	if job == nil {
		return false, errors.New("job is required")
	}
	if jobErr == nil {
		return false, errors.New("failure error required")
	}

	if model.IsPermanent(jobErr) {
		failed, err := s.repo.FailPermanent(ctx, job.ID, jobErr.Error())
		if err != nil {
			return false, fmt.Errorf("fail job %s permanently: %w", job.ID, err)
		}
		if s.logger != nil && failed {
			s.logger.WarnContext(ctx, "job failed permanently",
				"id", job.ID,
				"category", job.Category,
				"error", jobErr.Error(),
			)
		}
		return failed, nil
	}

	retryAt := s.backoff.NextRun(time.Now().UTC(), job.Attempt)
	failed, err := s.repo.Fail(ctx, job.ID, jobErr.Error(), retryAt)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	if s.logger != nil && failed {
		s.logger.DebugContext(ctx, "job failure recorded",
			"id", job.ID,
			"category", job.Category,
			"attempt", job.Attempt+1,
			"max_attempts", job.MaxAttempts,
			"retry_at", retryAt,
			"error", jobErr.Error(),
		)
	}

	return failed, nil
}

// RetryAt resolves the time a job should become eligible again after the
// given number of consumed attempts, per the configured backoff policy.
func (s *JobService) RetryAt(now time.Time, attempt int) time.Time {
	return s.backoff.NextRun(now, attempt)
}

// Cancel removes a waiting job before any worker picks it up. Active jobs
// cannot be cancelled mid-flight.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("job id is required")
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "failed to cancel job", "id", id, "error", err)
		}
		return fmt.Errorf("cancel job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "id", id)
	}

	return nil
}

// Stats returns statistics about jobs of the given category in different states.
func (s *JobService) Stats(ctx context.Context, category model.JobCategory) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("get job stats for category %s: %w", category, err)
	}
	return stats, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// ScheduledTaskPending reports whether a waiting or active scheduled job for
// the named task already exists.
func (s *JobService) ScheduledTaskPending(ctx context.Context, task string) (bool, error) {
	pending, err := s.repo.ScheduledTaskPending(ctx, task)
	if err != nil {
		return false, fmt.Errorf("check pending scheduled task %s: %w", task, err)
	}
	return pending, nil
}

// StopAllListeners stops all active job notification listeners. This should
// be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
