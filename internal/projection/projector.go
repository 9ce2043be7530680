package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spot-matching/internal/matching"
)

// Projector consumes domain events and updates read models
type Projector struct {
	mu        sync.Mutex
	orderRepo OrderRepository
	tradeRepo TradeRepository
}

// NewProjector creates a new projector
func NewProjector(orderRepo OrderRepository, tradeRepo TradeRepository) *Projector {
	return &Projector{
		orderRepo: orderRepo,
		tradeRepo: tradeRepo,
	}
}

// Handle projects ev in the background context. It matches events.Handler.
func (p *Projector) Handle(ev matching.Event) error {
	return p.Project(context.Background(), ev)
}

// Resume positions the cursor of pair at sequence, for a projection that starts
// after the engine recovered past earlier events.
func (p *Projector) Resume(ctx context.Context, pair string, sequence int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.tradeRepo.SetLastSequence(ctx, pair, sequence); err != nil {
		return err
	}
	return p.orderRepo.SetLastSequence(ctx, pair, sequence)
}

// Project applies a single event to the read models
// Returns error if sequence validation fails or projection fails
func (p *Projector) Project(ctx context.Context, event matching.Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pair := event.Pair()
	sequence := event.Sequence()

	// Validate sequence continuity
	if err := p.validateSequence(ctx, pair, sequence); err != nil {
		return err
	}

	var err error
	switch e := event.(type) {
	case *matching.OrderAcceptedEvent:
		err = p.projectOrderAccepted(ctx, e)
	case *matching.OrderRejectedEvent:
		err = p.projectOrderRejected(ctx, e)
	case *matching.OrderFillEvent:
		err = p.projectOrderFill(ctx, e)
	case *matching.OrderCancelledEvent:
		err = p.projectOrderCancelled(ctx, e)
	case *matching.TradeExecutedEvent:
		err = p.tradeRepo.Save(ctx, NewTradeView(e.Trade, sequence))
	case *matching.BookDeltaEvent, *matching.BookSnapshotEvent:
		// depth is served by the engine; only the cursor moves
	default:
		return fmt.Errorf("%w: unknown event type %T", ErrInvalidArgument, event)
	}
	if err != nil {
		return fmt.Errorf("failed to project %s: %w", event.EventType(), err)
	}

	// Advance trade first, then order: validation reads both cursors, and a
	// half-advanced pair must be retryable.
	if err := p.tradeRepo.SetLastSequence(ctx, pair, sequence); err != nil {
		return fmt.Errorf("failed to advance trade sequence: %w", err)
	}
	if err := p.orderRepo.SetLastSequence(ctx, pair, sequence); err != nil {
		return fmt.Errorf("failed to advance order sequence: %w", err)
	}

	return nil
}

// validateSequence checks if the event sequence is valid (must be last + 1)
func (p *Projector) validateSequence(ctx context.Context, pair string, sequence int64) error {
	orderLastSeq, err := p.orderRepo.GetLastSequence(ctx, pair)
	if err != nil {
		return fmt.Errorf("failed to get order last sequence: %w", err)
	}
	tradeLastSeq, err := p.tradeRepo.GetLastSequence(ctx, pair)
	if err != nil {
		return fmt.Errorf("failed to get trade last sequence: %w", err)
	}
	// A trade cursor one ahead means the previous attempt failed between the two writes.
	if tradeLastSeq != orderLastSeq && tradeLastSeq != orderLastSeq+1 {
		return fmt.Errorf("projection sequence mismatch: pair=%s order_last=%d trade_last=%d",
			pair, orderLastSeq, tradeLastSeq)
	}
	lastSeq := orderLastSeq

	switch {
	case sequence == lastSeq+1:
		return nil
	case sequence <= lastSeq:
		return fmt.Errorf("%w: pair=%s last=%d event=%d", ErrSequenceRegression, pair, lastSeq, sequence)
	default:
		return fmt.Errorf("%w: pair=%s last=%d event=%d", ErrSequenceGap, pair, lastSeq, sequence)
	}
}

// projectOrderAccepted creates a new order view
func (p *Projector) projectOrderAccepted(ctx context.Context, event *matching.OrderAcceptedEvent) error {
	existing, err := p.orderRepo.GetByID(ctx, event.OrderID)
	if err == nil {
		if existing.LastSequence >= event.Sequence() {
			return nil
		}
	} else if !errors.Is(err, ErrOrderNotFound) {
		return fmt.Errorf("failed to get order: %w", err)
	}

	order := &OrderView{
		OrderID:       event.OrderID,
		ClientOrderID: event.ClientOrderID,
		AccountID:     event.AccountID,
		Pair:          event.Pair(),
		Side:          event.Side,
		Type:          event.Type,
		Price:         event.Price,
		Quantity:      event.Quantity,
		RemainingQty:  event.Quantity,
		Status:        matching.OrderStatusOpen,
		OrderSequence: event.OrderSequence,
		CreatedAt:     event.OccurredAt(),
		UpdatedAt:     event.OccurredAt(),
		LastSequence:  event.Sequence(),
	}

	return p.orderRepo.Save(ctx, order)
}

// projectOrderRejected records a rejected order. A rejection reusing the id of a known
// order leaves that order untouched.
func (p *Projector) projectOrderRejected(ctx context.Context, event *matching.OrderRejectedEvent) error {
	if event.OrderID == "" {
		return nil
	}
	_, err := p.orderRepo.GetByID(ctx, event.OrderID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return fmt.Errorf("failed to get order: %w", err)
	}

	return p.orderRepo.Save(ctx, &OrderView{
		OrderID:       event.OrderID,
		ClientOrderID: event.ClientOrderID,
		AccountID:     event.AccountID,
		Pair:          event.Pair(),
		Side:          event.Side,
		Type:          event.Type,
		Price:         event.Price,
		Quantity:      event.Quantity,
		RemainingQty:  event.Quantity,
		Status:        matching.OrderStatusRejected,
		RejectReason:  event.Reason,
		CreatedAt:     event.OccurredAt(),
		UpdatedAt:     event.OccurredAt(),
		LastSequence:  event.Sequence(),
	})
}

// projectOrderFill copies the order's post-fill state onto its view
func (p *Projector) projectOrderFill(ctx context.Context, event *matching.OrderFillEvent) error {
	order, err := p.lookup(ctx, event.OrderID)
	if err != nil || order == nil {
		return err
	}
	// Idempotent retry: this event has already been applied to this order.
	if order.LastSequence >= event.Sequence() {
		return nil
	}
	if event.RemainingQty.IsNegative() || event.FilledQty.GreaterThan(order.Quantity) {
		return fmt.Errorf("%w: invalid fill state for order %s", ErrInvalidArgument, order.OrderID)
	}

	order.FilledQty = event.FilledQty
	order.RemainingQty = event.RemainingQty
	order.Status = event.Status
	order.Fee = order.Fee.Add(event.Fee)
	if event.FeeCurrency != "" {
		order.FeeCurrency = event.FeeCurrency
	}
	if event.Status == matching.OrderStatusFilled {
		filledAt := event.OccurredAt()
		order.FilledAt = &filledAt
	}
	order.UpdatedAt = event.OccurredAt()
	order.LastSequence = event.Sequence()

	return p.orderRepo.Save(ctx, order)
}

// projectOrderCancelled updates order status to cancelled
func (p *Projector) projectOrderCancelled(ctx context.Context, event *matching.OrderCancelledEvent) error {
	order, err := p.lookup(ctx, event.OrderID)
	if err != nil || order == nil {
		return err
	}
	if order.LastSequence >= event.Sequence() {
		return nil
	}

	order.Status = matching.OrderStatusCancelled
	order.CancelReason = event.Reason
	order.FilledQty = event.FilledQty
	order.RemainingQty = event.RemainingQty
	cancelledAt := event.OccurredAt()
	order.CancelledAt = &cancelledAt
	order.UpdatedAt = event.OccurredAt()
	order.LastSequence = event.Sequence()

	return p.orderRepo.Save(ctx, order)
}

// lookup returns nil without error for orders admitted before the projection's
// cursor was resumed.
func (p *Projector) lookup(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := p.orderRepo.GetByID(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}
