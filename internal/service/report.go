package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
)

// Report kinds the report worker understands.
const (
	ReportKindDailySales     = "daily-sales"
	ReportKindStockValuation = "stock-valuation"
)

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Stock        core.StockRepository // Required
	Jobs         *JobService          // Optional: digest delivery
	Logger       *slog.Logger         // Optional
	TimeProvider core.TimeProvider    // Optional
	Recipients   []string             // Optional: report delivery addressees
}

// ReportService builds operational reports from the stock movement audit
// trail and the current stock levels.
type ReportService struct {
	stock        core.StockRepository
	jobs         *JobService
	logger       *slog.Logger
	timeProvider core.TimeProvider
	recipients   []string
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) (*ReportService, error) {
	if opts.Stock == nil {
		return nil, errors.New("StockRepository is required")
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = core.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "report_service")
	}

	return &ReportService{
		stock:        opts.Stock,
		jobs:         opts.Jobs,
		logger:       logger,
		timeProvider: tp,
		recipients:   opts.Recipients,
	}, nil
}

// Generate builds the requested report and, when recipients are configured,
// enqueues it for email delivery.
func (s *ReportService) Generate(ctx context.Context, req payload.Report) (string, error) {
	var (
		body string
		err  error
	)
	switch req.Kind {
	case ReportKindDailySales:
		body, err = s.dailySales(ctx, req)
	case ReportKindStockValuation:
		body, err = s.stockValuation(ctx, req)
	default:
		// Unknown kinds cannot succeed on retry.
		return "", model.Permanent(fmt.Errorf("unknown report kind %q", req.Kind))
	}
	if err != nil {
		return "", err
	}

	if s.jobs != nil && len(s.recipients) > 0 {
		recipients := make([]payload.Recipient, 0, len(s.recipients))
		for _, to := range s.recipients {
			recipients = append(recipients, payload.Recipient{To: to})
		}
		if _, err := s.jobs.EnqueuePayload(ctx, payload.Email{
			Recipients: recipients,
			Subject:    fmt.Sprintf("Report: %s (%s)", req.Kind, req.LocationID),
			Body:       body,
		}); err != nil {
			return "", fmt.Errorf("enqueue report delivery: %w", err)
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "report generated",
			"kind", req.Kind,
			"location_id", req.LocationID,
		)
	}
	return body, nil
}

// dailySales summarises sale movements for the requested period, defaulting
// to the last 24 hours.
func (s *ReportService) dailySales(ctx context.Context, req payload.Report) (string, error) {
	from, to, err := s.resolvePeriod(req)
	if err != nil {
		return "", err
	}

	movements, err := s.stock.ListMovements(ctx, req.LocationID, from, to)
	if err != nil {
		return "", fmt.Errorf("load movements: %w", err)
	}

	consumedByItem := make(map[string]float64)
	var saleCount int
	for _, m := range movements {
		if m.MovementType != model.MovementTypeSale {
			continue
		}
		saleCount++
		consumedByItem[m.InventoryItemID] += -m.QuantityDelta
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily sales report for location %s\n", req.LocationID)
	fmt.Fprintf(&b, "Period: %s to %s\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
	fmt.Fprintf(&b, "Sale movements: %d\n", saleCount)
	for itemID, qty := range consumedByItem {
		fmt.Fprintf(&b, "- item %s consumed: %.3f\n", itemID, qty)
	}
	return b.String(), nil
}

// stockValuation reports items at or under their threshold alongside their
// current level.
func (s *ReportService) stockValuation(ctx context.Context, req payload.Report) (string, error) {
	stocks, err := s.stock.ListBelowMinimum(ctx, req.LocationID)
	if err != nil {
		return "", fmt.Errorf("load stock levels: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stock valuation report for location %s\n", req.LocationID)
	fmt.Fprintf(&b, "Items at or below minimum: %d\n", len(stocks))
	for _, ls := range stocks {
		fmt.Fprintf(&b, "- item %s: %.3f (min %.3f)\n",
			ls.InventoryItemID, ls.CurrentStock, ls.MinimumStock)
	}
	return b.String(), nil
}

func (s *ReportService) resolvePeriod(req payload.Report) (time.Time, time.Time, error) {
	now := s.timeProvider.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if req.PeriodFrom != "" {
		parsed, err := time.Parse(time.RFC3339, req.PeriodFrom)
		if err != nil {
			return time.Time{}, time.Time{}, model.Permanent(
				fmt.Errorf("malformed period_from %q: %w", req.PeriodFrom, err))
		}
		from = parsed
	}
	if req.PeriodTo != "" {
		parsed, err := time.Parse(time.RFC3339, req.PeriodTo)
		if err != nil {
			return time.Time{}, time.Time{}, model.Permanent(
				fmt.Errorf("malformed period_to %q: %w", req.PeriodTo, err))
		}
		to = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, model.Permanent(
			fmt.Errorf("period_from %s is not before period_to %s", from, to))
	}
	return from, to, nil
}
