package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-matching/internal/matching"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func submitEntry(pair string, seq int64) JournalEntry {
	price := decimal.RequireFromString("100.5")
	return JournalEntry{
		Pair:      pair,
		Sequence:  seq,
		Kind:      JournalSubmit,
		EventBase: seq * 3,
		Timestamp: testTime.Add(time.Duration(seq) * time.Second),
		OrderID:   "order-" + decimal.NewFromInt(seq).String(),
		AccountID: "acc-1",
		Side:      matching.SideBuy,
		Type:      matching.OrderTypeLimit,
		Price:     &price,
		Quantity:  decimal.RequireFromString("0.25"),
		Reserved:  decimal.RequireFromString("25.15"),
	}
}

type journalFactory func(t *testing.T, dir string) Journal

func journalImpls() map[string]journalFactory {
	return map[string]journalFactory{
		"file": func(t *testing.T, dir string) Journal {
			j, err := NewFileJournal(dir)
			require.NoError(t, err)
			return j
		},
		"pebble": func(t *testing.T, dir string) Journal {
			j, err := OpenPebbleJournal(dir)
			require.NoError(t, err)
			return j
		},
	}
}

func TestJournalAppendAndRead(t *testing.T) {
	for name, open := range journalImpls() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := filepath.Join(t.TempDir(), "journal")
			j := open(t, dir)

			for seq := int64(1); seq <= 5; seq++ {
				require.NoError(t, j.Append(ctx, submitEntry("BTC/USDT", seq)))
			}
			require.NoError(t, j.Append(ctx, submitEntry("ETH/USDT", 1)))
			cancel := JournalEntry{Pair: "BTC/USDT", Sequence: 6, Kind: JournalCancel, OrderID: "order-2", AccountID: "acc-1", Timestamp: testTime}
			require.NoError(t, j.Append(ctx, cancel))
			reject := JournalEntry{Pair: "BTC/USDT", Sequence: 7, Kind: JournalReject, EventBase: 20, OrderID: "order-7", Reason: "insufficient balance", Timestamp: testTime}
			require.NoError(t, j.Append(ctx, reject))

			entries, err := j.ReadFrom(ctx, "BTC/USDT", 3)
			require.NoError(t, err)
			require.Len(t, entries, 5)
			assert.Equal(t, JournalReject, entries[4].Kind)
			assert.Equal(t, "insufficient balance", entries[4].Reason)
			assert.Equal(t, int64(20), entries[4].EventBase)
			assert.Equal(t, int64(3), entries[0].Sequence)
			assert.Equal(t, JournalCancel, entries[3].Kind)
			assert.Nil(t, entries[3].Price)
			require.NotNil(t, entries[0].Price)
			assert.True(t, entries[0].Price.Equal(decimal.RequireFromString("100.5")))
			assert.True(t, entries[0].Reserved.Equal(decimal.RequireFromString("25.15")))
			assert.Equal(t, int64(9), entries[0].EventBase)
			assert.Equal(t, journalVersion, entries[0].Version)

			last, err := j.LastSequence(ctx, "BTC/USDT")
			require.NoError(t, err)
			assert.Equal(t, int64(7), last)

			pairs, err := j.ListPairs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, pairs)

			none, err := j.ReadFrom(ctx, "SOL/USDT", 1)
			require.NoError(t, err)
			assert.Empty(t, none)

			require.NoError(t, j.Close())
		})
	}
}

func TestJournalRejectsGapsAndInvalidEntries(t *testing.T) {
	for name, open := range journalImpls() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			j := open(t, filepath.Join(t.TempDir(), "journal"))
			defer j.Close()

			require.NoError(t, j.Append(ctx, submitEntry("BTC/USDT", 1)))
			assert.ErrorIs(t, j.Append(ctx, submitEntry("BTC/USDT", 3)), ErrSequenceGap)
			assert.ErrorIs(t, j.Append(ctx, submitEntry("BTC/USDT", 1)), ErrSequenceGap)

			bad := submitEntry("BTC/USDT", 2)
			bad.Type = matching.OrderTypeMarket
			assert.Error(t, j.Append(ctx, bad), "market entry with a price")
		})
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	for name, open := range journalImpls() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := filepath.Join(t.TempDir(), "journal")
			j := open(t, dir)
			require.NoError(t, j.Append(ctx, submitEntry("BTC/USDT", 1)))
			require.NoError(t, j.Append(ctx, submitEntry("BTC/USDT", 2)))
			require.NoError(t, j.Close())

			reopened := open(t, dir)
			defer reopened.Close()
			last, err := reopened.LastSequence(ctx, "BTC/USDT")
			require.NoError(t, err)
			assert.Equal(t, int64(2), last)
			require.NoError(t, reopened.Append(ctx, submitEntry("BTC/USDT", 3)))

			entries, err := reopened.ReadFrom(ctx, "BTC/USDT", 1)
			require.NoError(t, err)
			assert.Len(t, entries, 3)
		})
	}
}

func TestJournalEntryPlaceRequest(t *testing.T) {
	e := submitEntry("BTC/USDT", 1)
	req := e.PlaceRequest()
	assert.Equal(t, "acc-1", req.AccountID)
	assert.True(t, req.Price.Equal(decimal.RequireFromString("100.5")))

	e.Type = matching.OrderTypeMarket
	e.Price = nil
	assert.True(t, e.PlaceRequest().Price.IsZero())
}
