package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
	"spot-matching/internal/pairspec"
	"spot-matching/internal/persistence"
)

// ReplayResult is the outcome of rebuilding one pair from its journal.
type ReplayResult struct {
	Book   *matching.OrderBook
	Trades []matching.Trade
	Events []matching.Event
}

// Replay rebuilds a pair's book from an optional snapshot and the journal entries
// after it. No ledger, journal or publisher is touched.
func Replay(ctx context.Context, pair pairspec.Pair, algorithm matching.Algorithm, fees *matching.FeeCalculator,
	snapshot *persistence.Snapshot, entries []persistence.JournalEntry) (*ReplayResult, error) {
	deps, err := Dependencies{Algorithm: algorithm, Fees: fees}.withDefaults()
	if err != nil {
		return nil, err
	}
	l := newLane(pair, *DefaultEngineConfig(), deps)

	out := &ReplayResult{Book: l.book}
	if err := l.restore(snapshot); err != nil {
		return nil, err
	}
	err = l.replay(ctx, entries, func(res *matching.CommandResult) {
		out.Trades = append(out.Trades, res.Trades...)
		out.Events = append(out.Events, res.Events...)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// restore loads a snapshot into an empty book.
func (l *Lane) restore(snap *persistence.Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.Pair != l.pair.Symbol {
		return fmt.Errorf("snapshot for %s loaded into lane %s", snap.Pair, l.pair.Symbol)
	}
	for _, o := range snap.Resting {
		if err := l.book.Insert(o.Clone()); err != nil {
			return fmt.Errorf("restore order %s: %w", o.ID, err)
		}
	}
	for _, o := range snap.Retired {
		l.book.Retire(o)
	}
	seqs := snap.Sequences
	if seqs.Journal == 0 {
		seqs.Journal = snap.LastSequence
	}
	l.book.RestoreSequences(seqs)
	return nil
}

// replay re-executes journaled commands in order. onResult sees each command's result.
func (l *Lane) replay(ctx context.Context, entries []persistence.JournalEntry, onResult func(*matching.CommandResult)) error {
	l.replaying = true
	defer func() { l.replaying = false }()

	for i := range entries {
		e := &entries[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if e.Pair != l.pair.Symbol {
			return fmt.Errorf("journal entry %d belongs to %s, not %s", e.Sequence, e.Pair, l.pair.Symbol)
		}
		if want := l.book.Sequences().Journal + 1; e.Sequence != want {
			return fmt.Errorf("%w: expected %d, got %d", persistence.ErrSequenceGap, want, e.Sequence)
		}
		l.book.NextJournalSequence()
		l.book.SkipEventsTo(e.EventBase)

		res := &matching.CommandResult{}
		switch e.Kind {
		case persistence.JournalSubmit:
			req := e.PlaceRequest()
			req.OrderID = e.OrderID
			order := matching.NewOrder(e.OrderID, 0, req, e.Timestamp)
			order.Reserved = e.Reserved
			if err := l.execute(ctx, order, e.Timestamp, res); err != nil {
				return fmt.Errorf("replay entry %d: %w", e.Sequence, err)
			}
		case persistence.JournalCancel:
			order, ok := l.book.Lookup(e.OrderID)
			if !ok || !l.book.Resting(e.OrderID) {
				return fmt.Errorf("%w: replay entry %d cancels %s which is not resting",
					matching.ErrInvariantViolation, e.Sequence, e.OrderID)
			}
			l.book.NextCommandSequence()
			if err := l.cancelOrder(ctx, order, matching.CancelReasonUser, e.Timestamp, res); err != nil {
				return fmt.Errorf("replay entry %d: %w", e.Sequence, err)
			}
			res.Order = order.Clone()
		case persistence.JournalReject:
			req := e.PlaceRequest()
			order := matching.NewOrder(e.OrderID, 0, req, e.Timestamp)
			_, _ = l.reject(ctx, order, errors.New(e.Reason), e.Timestamp, res)
		}
		if onResult != nil {
			onResult(res)
		}
	}
	return nil
}

// restoreHolds re-creates the reservation of every resting order on ledgers that do
// not persist holds.
func (l *Lane) restoreHolds(ctx context.Context) error {
	restorer, ok := l.ledger.(HoldRestorer)
	if !ok {
		return nil
	}
	for _, o := range l.book.RestingOrders() {
		amount := o.Unused()
		if !amount.IsPositive() {
			continue
		}
		err := restorer.RestoreHold(ctx, account.Hold{
			OrderID:   o.ID,
			AccountID: o.AccountID,
			Currency:  l.spendCurrency(o),
			Amount:    amount,
		})
		if err != nil {
			return fmt.Errorf("restore hold for %s: %w", o.ID, err)
		}
	}
	return nil
}

// recover rebuilds the lane before it starts serving.
func (l *Lane) recover(ctx context.Context, rs persistence.RecoveryService) error {
	snap, entries, err := rs.Recover(ctx, l.pair.Symbol)
	if err != nil {
		return err
	}
	if err := l.restore(snap); err != nil {
		return err
	}
	if err := l.replay(ctx, entries, nil); err != nil {
		return err
	}
	if err := l.restoreHolds(ctx); err != nil {
		return err
	}
	seqs := l.book.Sequences()
	l.logger.Info("lane recovered",
		zap.Bool("from_snapshot", snap != nil),
		zap.Int("replayed", len(entries)),
		zap.Int64("journal_sequence", seqs.Journal),
		zap.Int64("command_sequence", seqs.Command),
		zap.Int64("event_sequence", seqs.Event),
		zap.Int("resting", l.book.Len()))
	return nil
}
