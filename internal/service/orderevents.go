package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ladlehq/ladle/internal/core"
	"github.com/ladlehq/ladle/internal/domain/model"
	"github.com/ladlehq/ladle/internal/domain/payload"
	"github.com/ladlehq/ladle/internal/hub"
)

// OrderEventsServiceOptions groups dependencies for OrderEventsService.
type OrderEventsServiceOptions struct {
	Deduction *DeductionService   // Required: inventory impact
	Jobs      *JobService         // Required: follow-up job enqueue
	Events    core.EventPublisher // Required: live display broadcasts
	Logger    *slog.Logger        // Optional
}

// OrderEventsService is the glue between the order pipeline and the core:
// an accepted order deducts stock synchronously, enqueues its follow-up jobs
// and announces itself on the live display rooms.
type OrderEventsService struct {
	deduction *DeductionService
	jobs      *JobService
	events    core.EventPublisher
	logger    *slog.Logger
}

// NewOrderEventsService constructs a new OrderEventsService.
func NewOrderEventsService(opts OrderEventsServiceOptions) (*OrderEventsService, error) {
	if opts.Deduction == nil {
		return nil, errors.New("DeductionService is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Events == nil {
		return nil, errors.New("EventPublisher is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "order_events_service")
	}

	return &OrderEventsService{
		deduction: opts.Deduction,
		jobs:      opts.Jobs,
		events:    opts.Events,
		logger:    logger,
	}, nil
}

// OrderAccepted applies the full order side-effect chain: synchronous stock
// deduction, follow-up job enqueue, and order:created plus kitchen:new-order
// broadcasts. Station routing maps each order line to its station's ticket;
// lines without routing fall to the default station.
func (s *OrderEventsService) OrderAccepted(
	ctx context.Context,
	order model.OrderSummary,
	stationLines map[string][]model.OrderLine,
) (*model.DeductionResult, error) {
	if order.OrderID == "" {
		return nil, errors.New("order id is required")
	}
	if order.LocationID == "" {
		return nil, errors.New("location id is required")
	}

	result, err := s.deduction.Deduct(ctx, order.OrderID, order.LocationID, order.Lines)
	if err != nil {
		return nil, fmt.Errorf("deduct order %s: %w", order.OrderID, err)
	}

	s.enqueueFollowUps(ctx, order)

	s.events.Publish(hub.LocationRoom(order.LocationID), hub.EventOrderCreated, order)

	for stationID, lines := range stationLines {
		ticket := model.KitchenTicket{
			TicketID:   uuid.NewString(),
			OrderID:    order.OrderID,
			StationID:  stationID,
			TableID:    order.TableID,
			Lines:      lines,
			Status:     "new",
			OccurredAt: order.PlacedAt,
		}
		s.events.Publish(hub.KitchenStationRoom(stationID), hub.EventKitchenNewOrder, ticket)
	}

	if order.TableID != "" {
		s.publishTableStatus(order.LocationID, order.TableID, model.TableStatusOccupied)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "order accepted",
			"order_id", order.OrderID,
			"location_id", order.LocationID,
			"lines", len(order.Lines),
			"stations", len(stationLines),
		)
	}
	return result, nil
}

// enqueueFollowUps enqueues the asynchronous side effects of an accepted
// order. Enqueue failures are logged, not propagated: the order itself has
// already succeeded.
func (s *OrderEventsService) enqueueFollowUps(ctx context.Context, order model.OrderSummary) {
	if _, err := s.jobs.EnqueuePayload(ctx, payload.Report{
		Kind:       "daily-sales",
		LocationID: order.LocationID,
	}); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue sales report job",
			"order_id", order.OrderID,
			"error", err,
		)
	}
}

// TicketUpdated broadcasts a kitchen ticket state change to its station room.
func (s *OrderEventsService) TicketUpdated(stationID, ticketID, status string) {
	s.events.Publish(hub.KitchenStationRoom(stationID), hub.EventKitchenOrderUpdated, hub.TicketStatusPayload{
		TicketID: ticketID,
		Status:   status,
	})
}

// TicketBumped broadcasts a kitchen bump to the ticket's station room.
func (s *OrderEventsService) TicketBumped(stationID, ticketID string) {
	s.events.Publish(hub.KitchenStationRoom(stationID), hub.EventKitchenOrderBumped, hub.TicketStatusPayload{
		TicketID: ticketID,
		Status:   "bumped",
	})
}

// TableStatusChanged broadcasts a table state transition to the location room.
func (s *OrderEventsService) TableStatusChanged(locationID, tableID, status string) {
	s.publishTableStatus(locationID, tableID, status)
}

func (s *OrderEventsService) publishTableStatus(locationID, tableID, status string) {
	p := hub.TableStatusPayload{TableID: tableID, Status: status}
	s.events.Publish(hub.LocationRoom(locationID), hub.EventTableStatusChanged, p)

	switch status {
	case model.TableStatusOccupied:
		s.events.Publish(hub.LocationRoom(locationID), hub.EventTableOccupied, p)
	case model.TableStatusCleared:
		s.events.Publish(hub.LocationRoom(locationID), hub.EventTableCleared, p)
	}
}
