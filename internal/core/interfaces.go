// Package core defines the ports between services and their adapters. Worker
// pools, scan jobs and the deduction engine depend on these interfaces;
// Postgres and Redis adapters implement them.
package core

import (
	"context"
	"time"

	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/hub"
)

// JobRepository is the durable job store port.
type JobRepository interface {
	// Create persists a validated job and signals waiting workers.
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// ReserveNext atomically reserves the next eligible job of the category,
	// or returns model.ErrNoJobsAvailable. A reserved job holds a lease and
	// cannot be reserved again until the lease expires or the job finishes.
	ReserveNext(ctx context.Context, category model.JobCategory, leaseSeconds int) (*model.Job, error)
	// Heartbeat extends the lease on an active job.
	Heartbeat(ctx context.Context, id string, leaseSeconds int) (bool, error)
	// Complete marks an active job completed.
	Complete(ctx context.Context, id string) (bool, error)
	// Fail records a retryable failure: increments attempt, reschedules at
	// retryAt while attempts remain, otherwise marks the job failed.
	Fail(ctx context.Context, id, errMsg string, retryAt time.Time) (bool, error)
	// FailPermanent marks an active job failed without consuming an attempt.
	FailPermanent(ctx context.Context, id, errMsg string) (bool, error)
	// Cancel removes a job that is still waiting. Active jobs cannot be
	// cancelled mid-flight.
	Cancel(ctx context.Context, id string) error
	// GetByID returns a job by id.
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// Stats returns per-state counts for one category.
	Stats(ctx context.Context, category model.JobCategory) (*model.JobStats, error)
	// WaitForNotification blocks until new jobs of the category may be available.
	WaitForNotification(ctx context.Context, category model.JobCategory) error
	// ScheduledTaskPending reports whether a waiting or active scheduled job
	// for the named task already exists, to keep slow scans from stacking.
	ScheduledTaskPending(ctx context.Context, task string) (bool, error)
}

// StockRepository is the per-location stock store port.
type StockRepository interface {
	// DeductStock atomically decrements one (location, item) stock row and
	// appends the matching movement record in the same transaction. Returns
	// model.ErrInsufficientStock when the decrement would cross below zero.
	DeductStock(ctx context.Context, params model.DeductStockParams) (*model.StockMovement, error)
	// GetLocationStock returns one stock row.
	GetLocationStock(ctx context.Context, locationID, itemID string) (*model.LocationStock, error)
	// ListBelowMinimum returns rows at or under their low-stock threshold.
	// Empty locationID means all locations.
	ListBelowMinimum(ctx context.Context, locationID string) ([]*model.LocationStock, error)
	// ListByItems returns the stock rows for the given items at a location.
	ListByItems(ctx context.Context, locationID string, itemIDs []string) ([]*model.LocationStock, error)
	// ListMovements returns the movement audit records for a location within
	// [from, to), newest first.
	ListMovements(ctx context.Context, locationID string, from, to time.Time) ([]*model.StockMovement, error)
}

// RecipeRepository resolves menu items into ingredient quantities.
type RecipeRepository interface {
	// LinesForMenuItem returns the ordered recipe lines for a menu item, or
	// an empty slice when the item has no recipe configured.
	LinesForMenuItem(ctx context.Context, menuItemID string) ([]model.RecipeLine, error)
}

// LotRepository is the inventory lot store port.
type LotRepository interface {
	// ListExpiring returns available lots with remaining stock expiring
	// within the window. Empty locationID means all locations.
	ListExpiring(ctx context.Context, locationID string, cutoff time.Time) ([]*model.InventoryLot, error)
	// MarkExpired transitions available lots whose expiry has passed.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	// MarkDepleted transitions available lots whose remaining quantity is zero.
	MarkDepleted(ctx context.Context) (int64, error)
}

// ReaperRepository is the retention cleanup port.
type ReaperRepository interface {
	// FailStaleWaiting fails waiting jobs older than maxAge that were never
	// picked up. Returns the number of jobs failed.
	FailStaleWaiting(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	// DeleteOldTerminal deletes completed or failed jobs past the retention
	// window, in batches. Returns the number of rows deleted.
	DeleteOldTerminal(ctx context.Context, status model.JobStatus, maxAge time.Duration, batchSize int) (int64, error)
}

// EventPublisher is the hub port producers publish through. Implementations
// are fire-and-forget and must never block the caller on slow subscribers.
type EventPublisher interface {
	Publish(room hub.Room, event string, payload any)
}

// TimeProvider abstracts time.Now for deterministic repository tests.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider is the production TimeProvider.
type RealTimeProvider struct{}

// Now returns the current time.
func (RealTimeProvider) Now() time.Time { return time.Now() }
