package engine

import "errors"

var (
	// ErrLaneHalted is returned by every command on a pair after its lane stopped
	// on an invariant violation or a settlement failure.
	ErrLaneHalted = errors.New("lane halted")
	// ErrLaneStopped is returned after Stop.
	ErrLaneStopped = errors.New("lane stopped")
	// ErrSettlementFailed wraps ledger failures while settling a trade.
	ErrSettlementFailed = errors.New("settlement failed")
	// ErrJournal wraps journal append failures. The command had no effect.
	ErrJournal = errors.New("journal append failed")
	// ErrIdempotencyConflict is returned when an idempotency key is reused with a different payload.
	ErrIdempotencyConflict = errors.New("idempotency key conflict: same key with different payload")
)
