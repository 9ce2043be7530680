package engine

import (
	"context"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
	"spot-matching/internal/persistence"
)

// Ledger holds, releases and moves account funds for the engine.
type Ledger interface {
	Reserve(ctx context.Context, hold account.Hold) error
	Release(ctx context.Context, hold account.Hold) error
	Settle(ctx context.Context, st account.Settlement) error
}

// HoldRestorer is implemented by ledgers that lose holds on restart. After recovery
// the engine re-creates the unused hold of every resting order through it.
type HoldRestorer interface {
	RestoreHold(ctx context.Context, hold account.Hold) error
}

// Journal is the write-ahead log the lanes append commands and rejections to.
type Journal interface {
	Append(ctx context.Context, entry persistence.JournalEntry) error
}

// SnapshotSaver persists periodic book snapshots.
type SnapshotSaver interface {
	Save(ctx context.Context, snapshot *persistence.Snapshot) error
}

// Publisher receives the events of each command, in sequence order.
type Publisher interface {
	Publish(ctx context.Context, events []matching.Event) error
}
