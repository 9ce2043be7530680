package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
	"spot-matching/internal/persistence"
)

// place admits, journals and matches one order. Rejections return the rejected order
// and its OrderRejected event together with the error.
func (l *Lane) place(ctx context.Context, req *matching.PlaceOrderRequest) (*matching.CommandResult, error) {
	now := l.now()
	r := *req
	r.Pair = l.pair.Symbol
	if r.OrderID == "" {
		r.OrderID = uuid.NewString()
	}
	order := matching.NewOrder(r.OrderID, 0, &r, now)
	res := &matching.CommandResult{}

	if err := r.Validate(l.pair); err != nil {
		return l.reject(ctx, order, err, now, res)
	}
	if _, exists := l.book.Lookup(order.ID); exists {
		return l.reject(ctx, order, fmt.Errorf("%w: %s", matching.ErrDuplicateOrder, order.ID), now, res)
	}
	if order.Type == matching.OrderTypeMarket && l.cfg.RejectMarketOnEmptyBook &&
		l.book.BestLevel(order.Side.Opposite()) == nil {
		return l.reject(ctx, order, fmt.Errorf("%w: no %s liquidity for market order", matching.ErrValidation, order.Side.Opposite()), now, res)
	}

	hold := l.reservation(order)
	if l.ledger != nil && hold.Amount.IsPositive() {
		if err := l.ledger.Reserve(ctx, hold); err != nil {
			return l.reject(ctx, order, err, now, res)
		}
	}
	order.Reserved = hold.Amount

	seqs := l.book.Sequences()
	entry := submitEntry(order, seqs.Journal+1, seqs.Event, now)
	if err := l.append(ctx, entry); err != nil {
		l.release(ctx, order)
		return nil, err
	}

	if err := l.execute(ctx, order, now, res); err != nil {
		return nil, l.halt(err)
	}
	l.committed(ctx)
	return res, nil
}

// execute runs an admitted order: sequence, match, then rest, retire or cancel the
// remainder. Replay drives the same path.
func (l *Lane) execute(ctx context.Context, order *matching.Order, now time.Time, res *matching.CommandResult) error {
	order.Sequence = l.book.NextCommandSequence()
	res.Events = append(res.Events, &matching.OrderAcceptedEvent{
		EventHeader:   l.header(matching.EventOrderAccepted, now),
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		AccountID:     order.AccountID,
		Side:          order.Side,
		Type:          order.Type,
		Price:         order.Price,
		Quantity:      order.Quantity,
		OrderSequence: order.Sequence,
		Reserved:      order.Reserved,
	})

	if err := l.match(ctx, order, now, res); err != nil {
		return err
	}

	switch {
	case order.Status == matching.OrderStatusFilled:
		l.release(ctx, order)
		l.book.Retire(order)
	case order.Type == matching.OrderTypeMarket:
		if err := l.cancelOrder(ctx, order, matching.CancelReasonInsufficientLiquidity, now, res); err != nil {
			return err
		}
	default:
		if err := l.book.Insert(order); err != nil {
			return err
		}
		res.Events = append(res.Events, matching.NewBookDelta(l.pair.Symbol, order.Side, order.Price,
			l.book.Level(order.Side, order.Price), l.book.NextEventSequence(), now))
	}

	if err := l.book.CheckCrossed(); err != nil {
		return err
	}
	res.Order = order.Clone()
	return nil
}

// reject journals a refused submit and emits its OrderRejected event. The entry keeps
// the event's sequence from being handed out again after a restart.
func (l *Lane) reject(ctx context.Context, order *matching.Order, cause error, now time.Time, res *matching.CommandResult) (*matching.CommandResult, error) {
	seqs := l.book.Sequences()
	if err := l.append(ctx, rejectEntry(order, cause, seqs.Journal+1, seqs.Event, now)); err != nil {
		return nil, err
	}
	order.Reject(now)
	res.Order = order.Clone()
	res.Events = append(res.Events, &matching.OrderRejectedEvent{
		EventHeader:   l.header(matching.EventOrderRejected, now),
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		AccountID:     order.AccountID,
		Side:          order.Side,
		Type:          order.Type,
		Price:         order.Price,
		Quantity:      order.Quantity,
		Reason:        cause.Error(),
	})
	l.logger.Debug("order rejected", zap.String("order_id", order.ID), zap.Error(cause))
	return res, cause
}

// cancel removes a resting order at its owner's request.
func (l *Lane) cancel(ctx context.Context, req *matching.CancelOrderRequest) (*matching.CommandResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	order, ok := l.book.Lookup(req.OrderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", matching.ErrNotFound, req.OrderID)
	}
	if order.AccountID != req.AccountID {
		return nil, fmt.Errorf("%w: %s", matching.ErrForbidden, req.OrderID)
	}
	if !l.book.Resting(order.ID) {
		return nil, fmt.Errorf("%w: %s is %s", matching.ErrAlreadyTerminal, order.ID, order.Status)
	}

	now := l.now()
	seqs := l.book.Sequences()
	if err := l.append(ctx, cancelEntry(order, seqs.Journal+1, seqs.Event, now)); err != nil {
		return nil, err
	}
	l.book.NextCommandSequence()

	res := &matching.CommandResult{}
	if err := l.cancelOrder(ctx, order, matching.CancelReasonUser, now, res); err != nil {
		return nil, l.halt(err)
	}
	res.Order = order.Clone()
	l.committed(ctx)
	return res, nil
}

// cancelOrder takes a live order out of the book (if it rests), cancels it and frees
// the unused part of its reservation.
func (l *Lane) cancelOrder(ctx context.Context, order *matching.Order, reason matching.CancelReason, now time.Time, res *matching.CommandResult) error {
	resting := l.book.Resting(order.ID)
	if resting {
		if _, err := l.book.Remove(order.ID); err != nil {
			return err
		}
	}
	if err := order.Cancel(reason, now); err != nil {
		return err
	}
	released := order.Unused()
	l.release(ctx, order)
	l.book.Retire(order)

	res.Events = append(res.Events, &matching.OrderCancelledEvent{
		EventHeader:  l.header(matching.EventOrderCancelled, now),
		OrderID:      order.ID,
		AccountID:    order.AccountID,
		Side:         order.Side,
		FilledQty:    order.FilledQty,
		RemainingQty: order.RemainingQty,
		Reason:       reason,
		Released:     released,
	})
	if resting {
		res.Events = append(res.Events, matching.NewBookDelta(l.pair.Symbol, order.Side, order.Price,
			l.book.Level(order.Side, order.Price), l.book.NextEventSequence(), now))
	}
	return nil
}

// reservation returns the hold an order needs: base quantity for sells, limit notional
// plus fee headroom for limit buys, and the exact cost of the visible liquidity plus
// taker fee for market buys.
func (l *Lane) reservation(order *matching.Order) account.Hold {
	hold := account.Hold{
		OrderID:   order.ID,
		AccountID: order.AccountID,
		Currency:  l.spendCurrency(order),
	}
	switch {
	case order.Side == matching.SideSell:
		hold.Amount = order.Quantity
	case order.Type == matching.OrderTypeLimit:
		notional := order.Price.Mul(order.Quantity)
		headroom := notional.Mul(l.fees.MaxRate(l.pair.Symbol)).Truncate(l.pair.QuoteScale)
		hold.Amount = notional.Add(headroom)
	default:
		cost := decimal.Zero
		remaining := order.Quantity
		l.book.WalkLevels(matching.SideSell, func(level *matching.PriceLevel) bool {
			take := decimal.Min(remaining, level.Volume)
			cost = cost.Add(take.Mul(level.Price))
			remaining = remaining.Sub(take)
			return remaining.IsPositive()
		})
		fee := cost.Mul(l.fees.Rates(l.pair.Symbol).Taker).Truncate(l.pair.QuoteScale)
		hold.Amount = cost.Add(fee)
	}
	return hold
}

func (l *Lane) spendCurrency(order *matching.Order) string {
	if order.Side == matching.SideSell {
		return l.pair.Base
	}
	return l.pair.Quote
}

// release returns an order's unused reservation. Failures are logged; the book is
// already consistent at this point.
func (l *Lane) release(ctx context.Context, order *matching.Order) {
	amount := order.Unused()
	if l.ledger == nil || l.replaying || !amount.IsPositive() {
		return
	}
	err := l.ledger.Release(ctx, account.Hold{
		OrderID:   order.ID,
		AccountID: order.AccountID,
		Currency:  l.spendCurrency(order),
		Amount:    amount,
	})
	if err != nil {
		l.logger.Error("failed to release reservation",
			zap.String("order_id", order.ID),
			zap.String("amount", amount.String()),
			zap.Error(err))
	}
}

// append writes entry and advances the journal sequence. Replay advances it itself.
func (l *Lane) append(ctx context.Context, entry persistence.JournalEntry) error {
	if l.replaying {
		return nil
	}
	if l.journal != nil {
		if err := l.journal.Append(ctx, entry); err != nil {
			l.logger.Error("journal append failed", zap.Int64("sequence", entry.Sequence), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrJournal, err)
		}
	}
	l.book.NextJournalSequence()
	return nil
}

func (l *Lane) header(typ string, now time.Time) matching.EventHeader {
	return matching.NewEventHeader(l.pair.Symbol, typ, l.book.NextEventSequence(), now)
}

func submitEntry(order *matching.Order, seq, eventBase int64, now time.Time) persistence.JournalEntry {
	entry := persistence.JournalEntry{
		Pair:          order.Pair,
		Sequence:      seq,
		Kind:          persistence.JournalSubmit,
		EventBase:     eventBase,
		Timestamp:     now,
		OrderID:       order.ID,
		AccountID:     order.AccountID,
		ClientOrderID: order.ClientOrderID,
		Side:          order.Side,
		Type:          order.Type,
		Quantity:      order.Quantity,
		Reserved:      order.Reserved,
	}
	if order.Type == matching.OrderTypeLimit {
		price := order.Price
		entry.Price = &price
	}
	return entry
}

func cancelEntry(order *matching.Order, seq, eventBase int64, now time.Time) persistence.JournalEntry {
	return persistence.JournalEntry{
		Pair:      order.Pair,
		Sequence:  seq,
		Kind:      persistence.JournalCancel,
		EventBase: eventBase,
		Timestamp: now,
		OrderID:   order.ID,
		AccountID: order.AccountID,
	}
}

func rejectEntry(order *matching.Order, cause error, seq, eventBase int64, now time.Time) persistence.JournalEntry {
	entry := submitEntry(order, seq, eventBase, now)
	entry.Kind = persistence.JournalReject
	entry.Reserved = decimal.Zero
	entry.Reason = cause.Error()
	return entry
}
