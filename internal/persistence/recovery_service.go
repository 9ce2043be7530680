package persistence

import (
	"context"
	"fmt"
)

// JournalRecoveryService implements RecoveryService over a journal and a snapshot store
type JournalRecoveryService struct {
	journal       Journal
	snapshotStore SnapshotStore
}

// NewJournalRecoveryService creates a new recovery service. snapshotStore may be nil.
func NewJournalRecoveryService(journal Journal, snapshotStore SnapshotStore) *JournalRecoveryService {
	return &JournalRecoveryService{
		journal:       journal,
		snapshotStore: snapshotStore,
	}
}

// Recover loads the latest snapshot and the journal entries recorded after it
func (s *JournalRecoveryService) Recover(ctx context.Context, pair string) (*Snapshot, []JournalEntry, error) {
	var snapshot *Snapshot
	if s.snapshotStore != nil {
		var err error
		snapshot, err = s.snapshotStore.Load(ctx, pair)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
	}

	var after int64
	if snapshot != nil {
		after = snapshot.LastSequence
	}

	entries, err := s.journal.ReadFrom(ctx, pair, after+1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read journal: %w", err)
	}

	if err := s.ValidateSequence(after, entries); err != nil {
		return nil, nil, fmt.Errorf("sequence validation failed: %w", err)
	}

	return snapshot, entries, nil
}

// ValidateSequence checks that entries continue the sequence after `after` without gaps
func (s *JournalRecoveryService) ValidateSequence(after int64, entries []JournalEntry) error {
	expected := after + 1
	for _, e := range entries {
		if e.Sequence != expected {
			return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, expected, e.Sequence)
		}
		expected++
	}
	return nil
}
