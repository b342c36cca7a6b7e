package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/hub"
)

// ScanServiceOptions groups dependencies for ScanService.
type ScanServiceOptions struct {
	Stock         core.StockRepository // Required
	Lots          core.LotRepository   // Required
	Events        core.EventPublisher  // Optional: scan broadcasts
	Jobs          *JobService          // Optional: reminder digest enqueue
	Reaper        *ReaperService       // Optional: cleanup task delegate
	Logger        *slog.Logger         // Optional
	TimeProvider  core.TimeProvider    // Optional: defaults to wall clock
	ExpiryWindow  time.Duration        // Optional: defaults to 7 days
	OpsRecipients []string             // Optional: reminder digest addressees
}

const defaultExpiryWindow = 7 * 24 * time.Hour

// ScanService implements the periodic scan tasks that run under the
// scheduled job category: low stock alerting, lot expiry tracking, the ops
// reminder digest and queue retention cleanup.
type ScanService struct {
	stock         core.StockRepository
	lots          core.LotRepository
	events        core.EventPublisher
	jobs          *JobService
	reaper        *ReaperService
	logger        *slog.Logger
	timeProvider  core.TimeProvider
	expiryWindow  time.Duration
	opsRecipients []string
}

// NewScanService constructs a new ScanService.
func NewScanService(opts ScanServiceOptions) (*ScanService, error) {
	if opts.Stock == nil {
		return nil, errors.New("StockRepository is required")
	}
	if opts.Lots == nil {
		return nil, errors.New("LotRepository is required")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = core.RealTimeProvider{}
	}
	window := opts.ExpiryWindow
	if window <= 0 {
		window = defaultExpiryWindow
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scan_service")
	}

	return &ScanService{
		stock:         opts.Stock,
		lots:          opts.Lots,
		events:        opts.Events,
		jobs:          opts.Jobs,
		reaper:        opts.Reaper,
		logger:        logger,
		timeProvider:  tp,
		expiryWindow:  window,
		opsRecipients: opts.OpsRecipients,
	}, nil
}

// Run dispatches one scheduled task. The switch is exhaustive over the closed
// task set; unknown tasks were rejected at enqueue time.
func (s *ScanService) Run(ctx context.Context, task, locationID string) error {
	switch task {
	case payload.TaskLowStockScan:
		_, err := s.LowStockScan(ctx, locationID)
		return err
	case payload.TaskExpiringLotsScan:
		_, err := s.ExpiringLotsScan(ctx, locationID)
		return err
	case payload.TaskReminders:
		return s.Reminders(ctx, locationID)
	case payload.TaskCleanup:
		return s.Cleanup(ctx)
	default:
		return fmt.Errorf("unknown scheduled task %q", task)
	}
}

// LowStockScan publishes exactly one inventory:low-stock event per breached
// item per scan. A condition that persists across scans is re-published each
// time; suppression is the consumer's concern.
func (s *ScanService) LowStockScan(ctx context.Context, locationID string) (int, error) {
	stocks, err := s.stock.ListBelowMinimum(ctx, locationID)
	if err != nil {
		return 0, fmt.Errorf("low stock scan: %w", err)
	}

	for _, ls := range stocks {
		if s.events != nil {
			s.events.Publish(hub.LocationRoom(ls.LocationID), hub.EventInventoryLowStock, hub.LowStockPayload{
				LocationID:      ls.LocationID,
				InventoryItemID: ls.InventoryItemID,
				CurrentStock:    ls.CurrentStock,
				MinimumStock:    ls.MinimumStock,
			})
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "low stock scan complete",
			"location_id", locationID,
			"breaches", len(stocks),
		)
	}
	return len(stocks), nil
}

// ExpiringLotsScan advances lot lifecycle states (available lots past expiry
// become expired, emptied lots become depleted) and publishes one
// inventory:lot-expiring event per available lot expiring inside the window.
func (s *ScanService) ExpiringLotsScan(ctx context.Context, locationID string) (int, error) {
	now := s.timeProvider.Now().UTC()

	expired, err := s.lots.MarkExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("mark expired lots: %w", err)
	}
	depleted, err := s.lots.MarkDepleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("mark depleted lots: %w", err)
	}

	lots, err := s.lots.ListExpiring(ctx, locationID, now.Add(s.expiryWindow))
	if err != nil {
		return 0, fmt.Errorf("list expiring lots: %w", err)
	}

	for _, lot := range lots {
		if s.events != nil {
			s.events.Publish(hub.LocationRoom(lot.LocationID), hub.EventInventoryLotExpiring, hub.LotExpiringPayload{
				LotID:           lot.ID,
				InventoryItemID: lot.InventoryItemID,
				LocationID:      lot.LocationID,
				DaysUntilExpiry: lot.DaysUntilExpiry(now),
			})
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "expiring lots scan complete",
			"location_id", locationID,
			"expiring", len(lots),
			"transitioned_expired", expired,
			"transitioned_depleted", depleted,
		)
	}
	return len(lots), nil
}

// Reminders emails the ops recipients a digest of current low-stock breaches
// and lots expiring inside the window. With no recipients configured the task
// is a logged no-op.
func (s *ScanService) Reminders(ctx context.Context, locationID string) error {
	if s.jobs == nil || len(s.opsRecipients) == 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "reminders task skipped, no recipients configured")
		}
		return nil
	}

	stocks, err := s.stock.ListBelowMinimum(ctx, locationID)
	if err != nil {
		return fmt.Errorf("reminders low stock lookup: %w", err)
	}
	now := s.timeProvider.Now().UTC()
	lots, err := s.lots.ListExpiring(ctx, locationID, now.Add(s.expiryWindow))
	if err != nil {
		return fmt.Errorf("reminders expiring lots lookup: %w", err)
	}

	if len(stocks) == 0 && len(lots) == 0 {
		return nil
	}

	var b strings.Builder
	if len(stocks) > 0 {
		fmt.Fprintf(&b, "Low stock (%d items):\n", len(stocks))
		for _, ls := range stocks {
			fmt.Fprintf(&b, "- item %s at location %s: %.3f (min %.3f)\n",
				ls.InventoryItemID, ls.LocationID, ls.CurrentStock, ls.MinimumStock)
		}
	}
	if len(lots) > 0 {
		fmt.Fprintf(&b, "Expiring lots (%d):\n", len(lots))
		for _, lot := range lots {
			fmt.Fprintf(&b, "- lot %s (item %s) expires in %d day(s)\n",
				lot.ID, lot.InventoryItemID, lot.DaysUntilExpiry(now))
		}
	}

	recipients := make([]payload.Recipient, 0, len(s.opsRecipients))
	for _, to := range s.opsRecipients {
		recipients = append(recipients, payload.Recipient{To: to})
	}

	if _, err := s.jobs.EnqueuePayload(ctx, payload.Email{
		Recipients: recipients,
		Subject:    "Inventory reminders",
		Body:       b.String(),
	}); err != nil {
		return fmt.Errorf("enqueue reminder digest: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "reminder digest enqueued",
			"low_stock", len(stocks),
			"expiring_lots", len(lots),
			"recipients", len(s.opsRecipients),
		)
	}
	return nil
}

// Cleanup delegates to the reaper's retention pass.
func (s *ScanService) Cleanup(ctx context.Context) error {
	if s.reaper == nil {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "cleanup task skipped, no reaper configured")
		}
		return nil
	}
	return s.reaper.RunOnce(ctx)
}
