package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleJournal implements Journal on a pebble key-value store.
//
// Keys are "j/<pair>/<seq:020d>" for entries and "p/<pair>" for the pair index, so a
// bounded iterator returns a pair's entries in sequence order.
type PebbleJournal struct {
	db   *pebble.DB
	mu   sync.Mutex
	last map[string]int64
}

// OpenPebbleJournal opens (or creates) a journal in dir.
func OpenPebbleJournal(dir string) (*PebbleJournal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble journal: %w", err)
	}
	return &PebbleJournal{db: db, last: make(map[string]int64)}, nil
}

func entryPrefix(pair string) []byte {
	return []byte("j/" + pair + "/")
}

func entryKey(pair string, seq int64) []byte {
	return []byte(fmt.Sprintf("j/%s/%020d", pair, seq))
}

func pairKey(pair string) []byte {
	return []byte("p/" + pair)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Append writes the entry and the pair index in one synced batch
func (j *PebbleJournal) Append(ctx context.Context, entry JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.Version = journalVersion

	j.mu.Lock()
	defer j.mu.Unlock()

	last, err := j.lastLocked(entry.Pair)
	if err != nil {
		return err
	}
	if entry.Sequence != last+1 {
		return fmt.Errorf("%w: pair %s expected %d, got %d", ErrSequenceGap, entry.Pair, last+1, entry.Sequence)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(entryKey(entry.Pair, entry.Sequence), data, nil); err != nil {
		return err
	}
	if err := batch.Set(pairKey(entry.Pair), nil, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit journal entry: %w", err)
	}
	j.last[entry.Pair] = entry.Sequence
	return nil
}

func (j *PebbleJournal) lastLocked(pair string) (int64, error) {
	if seq, ok := j.last[pair]; ok {
		return seq, nil
	}
	prefix := entryPrefix(pair)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var last int64
	if iter.Last() {
		var e JournalEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return 0, fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		last = e.Sequence
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	j.last[pair] = last
	return last, nil
}

// ReadFrom reads entries from a specific sequence number (inclusive)
func (j *PebbleJournal) ReadFrom(ctx context.Context, pair string, fromSeq int64) ([]JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fromSeq < 1 {
		fromSeq = 1
	}
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(pair, fromSeq),
		UpperBound: upperBound(entryPrefix(pair)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	entries := []JournalEntry{}
	for iter.First(); iter.Valid(); iter.Next() {
		var e JournalEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, iter.Error()
}

// LastSequence returns the last sequence number for a pair
func (j *PebbleJournal) LastSequence(ctx context.Context, pair string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastLocked(pair)
}

// ListPairs lists all pairs that have journal entries
func (j *PebbleJournal) ListPairs(ctx context.Context) ([]string, error) {
	prefix := []byte("p/")
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	pairs := []string{}
	for iter.First(); iter.Valid(); iter.Next() {
		pairs = append(pairs, string(bytes.TrimPrefix(iter.Key(), prefix)))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(pairs)
	return pairs, nil
}

// Close flushes and closes the store
func (j *PebbleJournal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
