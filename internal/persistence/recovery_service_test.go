package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecoveryService_RecoverFromSnapshot(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()

	journal, err := NewFileJournal(filepath.Join(tempDir, "journal"))
	require.NoError(t, err)
	defer journal.Close()
	snapshots, err := NewFileSnapshotStore(filepath.Join(tempDir, "snapshots"), 0)
	require.NoError(t, err)

	for seq := int64(1); seq <= 8; seq++ {
		require.NoError(t, journal.Append(ctx, submitEntry("BTC/USDT", seq)))
	}
	require.NoError(t, snapshots.Save(ctx, testSnapshot(5)))

	recovery := NewJournalRecoveryService(journal, snapshots)
	snap, entries, err := recovery.Recover(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(5), snap.LastSequence)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(6), entries[0].Sequence)
	assert.Equal(t, int64(8), entries[2].Sequence)
}

func TestJournalRecoveryService_RecoverFromEmpty(t *testing.T) {
	ctx := context.Background()
	journal, err := OpenPebbleJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer journal.Close()

	recovery := NewJournalRecoveryService(journal, nil)
	snap, entries, err := recovery.Recover(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Empty(t, entries)
}

func TestJournalRecoveryService_ValidateSequence(t *testing.T) {
	recovery := NewJournalRecoveryService(nil, nil)

	ok := []JournalEntry{submitEntry("BTC/USDT", 4), submitEntry("BTC/USDT", 5)}
	assert.NoError(t, recovery.ValidateSequence(3, ok))
	assert.NoError(t, recovery.ValidateSequence(0, nil))

	assert.ErrorIs(t, recovery.ValidateSequence(2, ok), ErrSequenceGap)
	gap := []JournalEntry{submitEntry("BTC/USDT", 1), submitEntry("BTC/USDT", 3)}
	assert.ErrorIs(t, recovery.ValidateSequence(0, gap), ErrSequenceGap)
}
