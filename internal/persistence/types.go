package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spot-matching/internal/matching"
)

// ErrSequenceGap is returned when journal entries are not continuous.
var ErrSequenceGap = errors.New("journal sequence gap")

// JournalKind is the command recorded by a journal entry.
type JournalKind string

const (
	JournalSubmit JournalKind = "SUBMIT"
	JournalCancel JournalKind = "CANCEL"
	JournalReject JournalKind = "REJECT"
)

const journalVersion = 1

// JournalEntry is one command, written before the command mutates the book. Rejected
// submits are recorded too so their events keep their sequence across restarts.
type JournalEntry struct {
	Version  int         `json:"version"`
	Pair     string      `json:"pair"`
	Sequence int64       `json:"sequence"` // per-pair journal sequence, continuous
	Kind     JournalKind `json:"kind"`

	// EventBase is the last event sequence assigned before the command ran.
	EventBase int64     `json:"event_base"`
	Timestamp time.Time `json:"timestamp"`

	OrderID       string             `json:"order_id"`
	AccountID     string             `json:"account_id"`
	ClientOrderID string             `json:"client_order_id,omitempty"`
	Side          matching.Side      `json:"side,omitempty"`
	Type          matching.OrderType `json:"type,omitempty"`
	Price         *decimal.Decimal   `json:"price"` // null for market orders and cancels
	Quantity      decimal.Decimal    `json:"quantity"`
	Reserved      decimal.Decimal    `json:"reserved"`
	Reason        string             `json:"reason,omitempty"` // REJECT only
}

// Validate checks the fields the entry kind requires.
func (e *JournalEntry) Validate() error {
	if e.Pair == "" || e.OrderID == "" {
		return fmt.Errorf("journal entry %d: pair and order_id are required", e.Sequence)
	}
	if e.Sequence <= 0 {
		return fmt.Errorf("journal entry for %s: sequence must be positive", e.OrderID)
	}
	if e.Kind != JournalReject && e.AccountID == "" {
		return fmt.Errorf("journal entry %d: account_id is required", e.Sequence)
	}
	switch e.Kind {
	case JournalSubmit:
		if !e.Side.IsValid() || !e.Type.IsValid() {
			return fmt.Errorf("journal entry %d: invalid side or type", e.Sequence)
		}
		if !e.Quantity.IsPositive() {
			return fmt.Errorf("journal entry %d: quantity must be positive", e.Sequence)
		}
		if (e.Type == matching.OrderTypeLimit) != (e.Price != nil) {
			return fmt.Errorf("journal entry %d: limit orders and only limit orders carry a price", e.Sequence)
		}
	case JournalCancel, JournalReject:
	default:
		return fmt.Errorf("journal entry %d: unknown kind %q", e.Sequence, e.Kind)
	}
	return nil
}

// PlaceRequest rebuilds the submit request recorded by the entry.
func (e *JournalEntry) PlaceRequest() *matching.PlaceOrderRequest {
	req := &matching.PlaceOrderRequest{
		ClientOrderID: e.ClientOrderID,
		AccountID:     e.AccountID,
		Pair:          e.Pair,
		Side:          e.Side,
		Type:          e.Type,
		Price:         decimal.Zero,
		Quantity:      e.Quantity,
	}
	if e.Price != nil {
		req.Price = *e.Price
	}
	return req
}

// Snapshot is a point-in-time copy of one pair's book
type Snapshot struct {
	Version      int                `json:"version"`
	Pair         string             `json:"pair"`
	LastSequence int64              `json:"last_sequence"` // last journal sequence applied
	CapturedAt   time.Time          `json:"captured_at"`
	Sequences    matching.Sequences `json:"sequences"`
	Resting      []*matching.Order  `json:"resting"` // admission order
	Retired      []*matching.Order  `json:"retired"` // retirement order
}

// Journal defines the interface for command log persistence
type Journal interface {
	// Append durably appends an entry. Sequences must continue the pair's log.
	Append(ctx context.Context, entry JournalEntry) error

	// ReadFrom reads entries from a specific sequence number (inclusive)
	ReadFrom(ctx context.Context, pair string, fromSeq int64) ([]JournalEntry, error)

	// LastSequence returns the last sequence number for a pair
	LastSequence(ctx context.Context, pair string) (int64, error)

	// ListPairs lists all pairs that have journal entries
	ListPairs(ctx context.Context) ([]string, error)

	// Close closes the journal
	Close() error
}

// SnapshotStore defines the interface for snapshot persistence
type SnapshotStore interface {
	// Save saves a snapshot for a specific pair
	Save(ctx context.Context, snapshot *Snapshot) error

	// Load loads the latest snapshot for a specific pair, nil when none exists
	Load(ctx context.Context, pair string) (*Snapshot, error)

	// ListSnapshots lists all available snapshots for a pair (sorted by sequence desc)
	ListSnapshots(ctx context.Context, pair string) ([]SnapshotMetadata, error)

	// Close closes the snapshot store
	Close() error
}

// SnapshotMetadata represents snapshot metadata
type SnapshotMetadata struct {
	Pair         string    `json:"pair"`
	LastSequence int64     `json:"last_sequence"`
	CapturedAt   time.Time `json:"captured_at"`
	FilePath     string    `json:"file_path"`
}

// RecoveryService defines the interface for recovery operations
type RecoveryService interface {
	// Recover returns the latest snapshot of a pair and the journal entries to replay on top of it
	Recover(ctx context.Context, pair string) (*Snapshot, []JournalEntry, error)

	// ValidateSequence validates that journal sequences are continuous
	ValidateSequence(after int64, entries []JournalEntry) error
}
