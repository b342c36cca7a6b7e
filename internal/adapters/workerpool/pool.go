// Package workerpool runs one bounded-concurrency, rate-limited processing
// pool per job category. Workers pull jobs from the durable queue, dispatch
// them to the matching handler and report the outcome back for retry
// bookkeeping.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/notify"
	"github.com/ladlehq/ladle/internal/observability/metrics"
	"github.com/ladlehq/ladle/internal/observability/statsd"
	"github.com/ladlehq/ladle/internal/service"
)

// Options configures a worker pool for one job category.
type Options struct {
	Category model.JobCategory // Required: which category this pool processes
	Pool     config.PoolConfig // Required: concurrency, rate and lease settings
	Jobs     *service.JobService

	// Handler dependencies; each pool uses the subset its category needs.
	Deduction *service.DeductionService
	Scan      *service.ScanService
	Report    *service.ReportService
	Email     notify.Sender
	SMS       notify.Sender
	WhatsApp  notify.Sender

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Pool processes jobs of a single category with a concurrency ceiling and a
// shared token-bucket rate limit.
type Pool struct {
	category  model.JobCategory
	cfg       config.PoolConfig
	jobs      *service.JobService
	deduction *service.DeductionService
	scan      *service.ScanService
	report    *service.ReportService
	email     notify.Sender
	sms       notify.Sender
	whatsapp  notify.Sender
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   statsd.Sink
}

// New constructs a worker pool.
func New(opts Options) (*Pool, error) {
	if !opts.Category.Valid() {
		return nil, fmt.Errorf("invalid job category %q", opts.Category)
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}

	cfg := opts.Pool
	cfg.Sanitize()

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "worker_pool", "category", string(opts.Category))
	}

	return &Pool{
		category:  opts.Category,
		cfg:       cfg,
		jobs:      opts.Jobs,
		deduction: opts.Deduction,
		scan:      opts.Scan,
		report:    opts.Report,
		email:     opts.Email,
		sms:       opts.SMS,
		whatsapp:  opts.WhatsApp,
		limiter:   limiter,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Run starts the pool's workers and processes jobs until the context is
// cancelled. The concurrency ceiling is the worker count: a pool of C workers
// can never hold more than C jobs active at once.
func (p *Pool) Run(ctx context.Context) error {
	if p.logger != nil {
		p.logger.InfoContext(ctx, "starting worker pool",
			"workers", p.cfg.Concurrency,
			"rate_per_second", p.cfg.RatePerSecond,
			"lease", p.cfg.JobLease,
		)
	}

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, wakeup := p.jobs.Subscribe(p.category)
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range p.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.workerLoop(ctx, wakeup); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (p *Pool) workerLoop(ctx context.Context, wakeup <-chan struct{}) error {
	for ctx.Err() == nil {
		// A job is not reserved until the rate budget admits it, so jobs
		// started per second never exceed the configured rate.
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil //nolint:nilerr // context cancelled, shut down quietly
			}
		}

		job, err := p.jobs.ReserveNext(ctx, p.category, p.cfg.JobLease)
		switch {
		case err == nil:
			if job != nil {
				p.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return nil
			case <-wakeup:
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return nil
}

func (p *Pool) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
			Category:   string(job.Category),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	// A handler that overruns its budget counts as a failed attempt.
	handlerCtx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	outcome := p.handle(handlerCtx, job)
	cancel()

	if outcome.err != nil {
		if _, ferr := p.jobs.Fail(ctx, job, outcome.err); ferr != nil && p.logger != nil {
			p.logger.ErrorContext(ctx, "fail job error",
				"job_id", job.ID, "error", ferr, "original_error", outcome.err)
		}
		emit("failed", metrics.ResultError, outcome.err)
		return
	}

	if outcome.continuation != nil {
		if _, err := p.jobs.Enqueue(ctx, outcome.continuation); err != nil {
			// Losing the continuation means losing the failed units; retry the
			// whole job instead.
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "enqueue continuation failed, retrying whole job",
					"job_id", job.ID, "error", err)
			}
			if _, ferr := p.jobs.Fail(ctx, job, outcome.partialErr); ferr != nil && p.logger != nil {
				p.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", ferr)
			}
			emit("failed", metrics.ResultError, outcome.partialErr)
			return
		}
	}

	if completed, err := p.jobs.Complete(ctx, job.ID); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		}
		emit("completed", metrics.ResultError, err)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		}
		emit("completed", result, nil)
	}
}

// handleOutcome reports how a handler finished. A nil err with a non-nil
// continuation means the job partially succeeded: the continuation carries
// only the failed units forward and the original job completes.
type handleOutcome struct {
	err          error
	continuation *model.CreateJobRequest
	partialErr   error
}

// handle decodes the payload and dispatches it. The type switch is exhaustive
// over the closed payload union.
func (p *Pool) handle(ctx context.Context, job *model.Job) handleOutcome {
	decoded, err := payload.Decode(job.Category, job.Payload)
	if err != nil {
		// A payload that no longer decodes cannot succeed on retry.
		return handleOutcome{err: model.Permanent(err)}
	}

	switch pl := decoded.(type) {
	case payload.Email:
		return p.handleEmail(ctx, job, pl)
	case payload.SMS:
		return p.handleSMS(ctx, job, pl)
	case payload.Inventory:
		return handleOutcome{err: p.handleInventory(ctx, pl)}
	case payload.Report:
		return handleOutcome{err: p.handleReport(ctx, pl)}
	case payload.Scheduled:
		return handleOutcome{err: p.handleScheduled(ctx, pl)}
	default:
		return handleOutcome{err: model.Permanent(
			fmt.Errorf("no handler for payload type %T", decoded))}
	}
}

func (p *Pool) handleEmail(ctx context.Context, job *model.Job, pl payload.Email) handleOutcome {
	if p.email == nil {
		return handleOutcome{err: errors.New("email sender not configured")}
	}
	send := func(ctx context.Context, r payload.Recipient) error {
		return p.email.Send(ctx, notify.Message{To: r.To, Subject: pl.Subject, Body: pl.Body})
	}
	retained := func(failed []payload.Recipient) (payload.Payload, error) {
		next := pl
		next.Recipients = failed
		return next, nil
	}
	return p.deliverBulk(ctx, job, pl.Recipients, send, retained)
}

func (p *Pool) handleSMS(ctx context.Context, job *model.Job, pl payload.SMS) handleOutcome {
	sender := p.sms
	if pl.Channel == payload.ChannelWhatsApp {
		sender = p.whatsapp
	}
	if sender == nil {
		return handleOutcome{err: fmt.Errorf("%s sender not configured", textChannel(pl.Channel))}
	}
	send := func(ctx context.Context, r payload.Recipient) error {
		return sender.Send(ctx, notify.Message{To: r.To, Body: pl.Body})
	}
	retained := func(failed []payload.Recipient) (payload.Payload, error) {
		next := pl
		next.Recipients = failed
		return next, nil
	}
	return p.deliverBulk(ctx, job, pl.Recipients, send, retained)
}

func textChannel(channel string) string {
	if channel == "" {
		return payload.ChannelSMS
	}
	return channel
}

// deliverBulk sends to every recipient independently and resolves the
// per-unit outcomes:
//   - every send succeeded: the job completes;
//   - nothing succeeded and at least one failure is transient: the whole job
//     fails and retries;
//   - nothing succeeded and every failure is permanent: the job fails
//     terminally without consuming an attempt;
//   - mixed: the job completes and only the transiently-failed recipients are
//     re-enqueued as a delayed continuation job with the remaining attempts.
func (p *Pool) deliverBulk(
	ctx context.Context,
	job *model.Job,
	recipients []payload.Recipient,
	send func(context.Context, payload.Recipient) error,
	retained func([]payload.Recipient) (payload.Payload, error),
) handleOutcome {
	var (
		sent      int
		transient []payload.Recipient
		permanent int
		firstErr  error
	)

	for _, r := range recipients {
		err := send(ctx, r)
		switch {
		case err == nil:
			sent++
		case model.IsPermanent(err):
			permanent++
			if firstErr == nil {
				firstErr = err
			}
			if p.logger != nil {
				p.logger.WarnContext(ctx, "dropping undeliverable recipient",
					"job_id", job.ID, "to", r.To, "error", err)
			}
		default:
			transient = append(transient, r)
			if firstErr == nil || model.IsPermanent(firstErr) {
				firstErr = err
			}
			if p.logger != nil {
				p.logger.WarnContext(ctx, "delivery failed, will retry recipient",
					"job_id", job.ID, "to", r.To, "error", err)
			}
		}
	}

	switch {
	case len(transient) == 0 && permanent == 0:
		return handleOutcome{}
	case sent == 0 && len(transient) == 0:
		// Only permanent failures: retrying cannot help.
		return handleOutcome{err: model.Permanent(
			fmt.Errorf("all %d recipients undeliverable: %w", permanent, firstErr))}
	case sent == 0:
		// Nothing went out; retry the job as-is.
		return handleOutcome{err: fmt.Errorf(
			"%d of %d sends failed: %w", len(transient)+permanent, len(recipients), firstErr)}
	case len(transient) == 0:
		// Some recipients were undeliverable but everything retryable went out.
		return handleOutcome{}
	}

	remaining := job.MaxAttempts - job.Attempt - 1
	if remaining <= 0 {
		return handleOutcome{err: fmt.Errorf(
			"%d recipients still failing with no attempts left: %w", len(transient), firstErr)}
	}

	next, err := retained(transient)
	if err != nil {
		return handleOutcome{err: fmt.Errorf("build continuation payload: %w", err)}
	}
	raw, err := payload.Encode(next)
	if err != nil {
		return handleOutcome{err: fmt.Errorf("encode continuation payload: %w", err)}
	}

	retryAt := p.jobs.RetryAt(time.Now().UTC(), job.Attempt)
	return handleOutcome{
		continuation: &model.CreateJobRequest{
			Category:    job.Category,
			Payload:     raw,
			Priority:    job.Priority,
			NotBefore:   &retryAt,
			MaxAttempts: remaining,
		},
		partialErr: fmt.Errorf(
			"%d of %d sends failed: %w", len(transient), len(recipients), firstErr),
	}
}

func (p *Pool) handleInventory(ctx context.Context, pl payload.Inventory) error {
	if p.deduction == nil {
		return errors.New("deduction service not configured")
	}
	result, err := p.deduction.Deduct(ctx, pl.OrderID, pl.LocationID, pl.Lines)
	if err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.InfoContext(ctx, "inventory deduction applied",
			"order_id", result.OrderID,
			"movements", len(result.Movements()),
		)
	}
	return nil
}

func (p *Pool) handleReport(ctx context.Context, pl payload.Report) error {
	if p.report == nil {
		return errors.New("report service not configured")
	}
	_, err := p.report.Generate(ctx, pl)
	return err
}

func (p *Pool) handleScheduled(ctx context.Context, pl payload.Scheduled) error {
	if p.scan == nil {
		return errors.New("scan service not configured")
	}
	return p.scan.Run(ctx, pl.Task, pl.LocationID)
}
