package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorkers runs one worker pool per job category.
	ServiceModeWorkers ServiceMode = "workers"
	// ServiceModeScheduler runs the periodic task scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the job reaper for retention cleanup.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeHubBridge runs the Redis hub bridge for cross-instance events.
	ServiceModeHubBridge ServiceMode = "hub-bridge"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorkers,
		ServiceModeScheduler,
		ServiceModeReaper,
		ServiceModeHubBridge,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorkers,
			ServiceModeScheduler,
			ServiceModeReaper,
			ServiceModeHubBridge:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: workers, scheduler, reaper, hub-bridge)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// PoolConfig holds the processing limits for one job category's worker pool.
type PoolConfig struct {
	// Concurrency is the maximum number of simultaneously in-flight jobs.
	// Zero means unset and takes the per-category default.
	Concurrency int `env:"CONCURRENCY" envDefault:"0"`

	// RatePerSecond caps how many jobs may start per second across the pool.
	// Zero disables rate limiting for the pool. Negative means unset and
	// takes the per-category default.
	RatePerSecond float64 `env:"RATE_PER_SECOND" envDefault:"-1"`

	// Burst is the token bucket depth for the rate limiter. Zero means unset
	// and is sized from the effective rate.
	Burst int `env:"BURST" envDefault:"0"`

	// JobLease is the duration a reserved job is leased to a worker.
	JobLease time.Duration `env:"JOB_LEASE" envDefault:"30s"`

	// HandlerTimeout bounds a single handler invocation. A timed-out handler
	// counts as a failed attempt.
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"1m"`
}

// Sanitize applies guardrails to pool configuration values.
func (p *PoolConfig) Sanitize() {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.RatePerSecond < 0 {
		p.RatePerSecond = 0
	}
	if p.Burst < 1 {
		p.Burst = 1
	}
	if p.JobLease < 5*time.Second {
		p.JobLease = 5 * time.Second
	}
	if p.HandlerTimeout < time.Second {
		p.HandlerTimeout = time.Second
	}
}

// WorkersConfig groups per-category worker pool configuration.
type WorkersConfig struct {
	Email     PoolConfig `envPrefix:"WORKERS_EMAIL_"`
	SMS       PoolConfig `envPrefix:"WORKERS_SMS_"`
	Inventory PoolConfig `envPrefix:"WORKERS_INVENTORY_"`
	Reports   PoolConfig `envPrefix:"WORKERS_REPORTS_"`
	Scheduled PoolConfig `envPrefix:"WORKERS_SCHEDULED_"`

	// BackoffBase is the first retry delay; subsequent retries double it.
	BackoffBase time.Duration `env:"WORKERS_BACKOFF_BASE" envDefault:"5s"`

	// BackoffCap caps the retry delay growth.
	BackoffCap time.Duration `env:"WORKERS_BACKOFF_CAP" envDefault:"10m"`
}

// Sanitize applies guardrails to worker configuration values and enforces the
// default pool shape where env left values unset.
func (w *WorkersConfig) Sanitize() {
	applyPoolDefaults(&w.Email, 5, 10)
	applyPoolDefaults(&w.SMS, 3, 5)
	applyPoolDefaults(&w.Inventory, 2, 0)
	applyPoolDefaults(&w.Reports, 1, 0)

	w.Email.Sanitize()
	w.SMS.Sanitize()
	w.Inventory.Sanitize()
	w.Reports.Sanitize()
	w.Scheduled.Sanitize()

	// Scheduled scans are sequential to avoid duplicate alert storms.
	w.Scheduled.Concurrency = 1

	if w.BackoffBase <= 0 {
		w.BackoffBase = 5 * time.Second
	}
	if w.BackoffCap <= 0 {
		w.BackoffCap = 10 * time.Minute
	}
	if w.BackoffCap < w.BackoffBase {
		w.BackoffCap = w.BackoffBase
	}
}

// Pool returns the configuration for one category. The switch is exhaustive
// over the closed category set.
func (w *WorkersConfig) Pool(category model.JobCategory) PoolConfig {
	switch category {
	case model.JobCategoryEmail:
		return w.Email
	case model.JobCategorySMS:
		return w.SMS
	case model.JobCategoryInventory:
		return w.Inventory
	case model.JobCategoryReports:
		return w.Reports
	case model.JobCategoryScheduled:
		return w.Scheduled
	default:
		return PoolConfig{Concurrency: 1, Burst: 1, JobLease: 30 * time.Second, HandlerTimeout: time.Minute}
	}
}

// applyPoolDefaults fills only the unset fields so an operator who explicitly
// asked for Concurrency 1 or a disabled rate limit keeps that choice.
func applyPoolDefaults(p *PoolConfig, concurrency int, rate float64) {
	if p.Concurrency == 0 {
		p.Concurrency = concurrency
	}
	if p.RatePerSecond < 0 {
		p.RatePerSecond = rate
	}
	if p.Burst == 0 && p.RatePerSecond > 0 {
		p.Burst = int(p.RatePerSecond)
	}
}

// SchedulerConfig contains periodic task scheduler configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`

	// LowStockEvery is how often the low stock scan is enqueued.
	LowStockEvery time.Duration `env:"SCHEDULER_LOW_STOCK_EVERY" envDefault:"15m"`

	// ExpiringLotsEvery is how often the expiring lots scan is enqueued.
	ExpiringLotsEvery time.Duration `env:"SCHEDULER_EXPIRING_LOTS_EVERY" envDefault:"1h"`

	// RemindersEvery is how often the ops reminder digest is enqueued.
	RemindersEvery time.Duration `env:"SCHEDULER_REMINDERS_EVERY" envDefault:"24h"`

	// CleanupEvery is how often queue retention cleanup is enqueued.
	CleanupEvery time.Duration `env:"SCHEDULER_CLEANUP_EVERY" envDefault:"6h"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	if s.LowStockEvery < time.Minute {
		s.LowStockEvery = time.Minute
	}
	if s.ExpiringLotsEvery < time.Minute {
		s.ExpiringLotsEvery = time.Minute
	}
	if s.RemindersEvery < time.Minute {
		s.RemindersEvery = time.Minute
	}
	if s.CleanupEvery < time.Minute {
		s.CleanupEvery = time.Minute
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// WaitingMaxAge is the maximum age for waiting jobs before they are marked as failed.
	// Jobs stuck in waiting status longer than this will be failed.
	WaitingMaxAge time.Duration `env:"REAPER_WAITING_MAX_AGE" envDefault:"24h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.WaitingMaxAge < 5*time.Minute {
		r.WaitingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// HubConfig contains broadcast hub configuration.
type HubConfig struct {
	// Buffer is the per-connection outbound channel depth. A connection whose
	// buffer is full drops events rather than stalling the publisher.
	Buffer int `env:"HUB_BUFFER" envDefault:"64"`

	// RedisChannel is the pub/sub channel used to mirror events across instances.
	RedisChannel string `env:"HUB_REDIS_CHANNEL" envDefault:"ladle:events"`
}

// Sanitize applies guardrails to hub configuration values.
func (h *HubConfig) Sanitize() {
	if h.Buffer < 1 {
		h.Buffer = 64
	}
	if strings.TrimSpace(h.RedisChannel) == "" {
		h.RedisChannel = "ladle:events"
	}
}
