package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const journalFile = "journal.log"

// FileJournal implements Journal using one JSONL file per pair
type FileJournal struct {
	baseDir string
	mu      sync.RWMutex
	files   map[string]*os.File // pair -> file handle
	last    map[string]int64    // pair -> last appended sequence
}

// NewFileJournal creates a new file-based journal
func NewFileJournal(baseDir string) (*FileJournal, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileJournal{
		baseDir: baseDir,
		files:   make(map[string]*os.File),
		last:    make(map[string]int64),
	}, nil
}

// pairDir maps "BTC/USDT" to a single path element.
func (j *FileJournal) pairDir(pair string) string {
	return filepath.Join(j.baseDir, url.PathEscape(pair))
}

// Append appends an entry to the pair's log and syncs it to disk
func (j *FileJournal) Append(ctx context.Context, entry JournalEntry) error {
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

	file, err := j.getOrCreateFile(entry.Pair)
	if err != nil {
		return fmt.Errorf("failed to get file for pair %s: %w", entry.Pair, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	j.last[entry.Pair] = entry.Sequence
	return nil
}

func (j *FileJournal) lastLocked(pair string) (int64, error) {
	if seq, ok := j.last[pair]; ok {
		return seq, nil
	}
	var last int64
	err := j.scan(pair, func(e JournalEntry) error {
		if e.Sequence > last {
			last = e.Sequence
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	j.last[pair] = last
	return last, nil
}

// getOrCreateFile gets or creates a file handle for a pair
func (j *FileJournal) getOrCreateFile(pair string) (*os.File, error) {
	if file, ok := j.files[pair]; ok {
		return file, nil
	}

	dir := j.pairDir(pair)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pair directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, journalFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j.files[pair] = file
	return file, nil
}

// scan visits every entry of the pair's log in file order
func (j *FileJournal) scan(pair string, fn func(JournalEntry) error) error {
	filePath := filepath.Join(j.pairDir(pair), journalFile)
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan journal file: %w", err)
	}
	return nil
}

// ReadFrom reads entries from a specific sequence number (inclusive)
func (j *FileJournal) ReadFrom(ctx context.Context, pair string, fromSeq int64) ([]JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	entries := []JournalEntry{}
	err := j.scan(pair, func(e JournalEntry) error {
		if e.Sequence >= fromSeq {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LastSequence returns the last sequence number for a pair
func (j *FileJournal) LastSequence(ctx context.Context, pair string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastLocked(pair)
}

// ListPairs lists all pairs that have journal files
func (j *FileJournal) ListPairs(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entries, err := os.ReadDir(j.baseDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}

	pairs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(j.baseDir, entry.Name(), journalFile)); err != nil {
			continue
		}
		pair, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs, nil
}

// Close closes all open file handles
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for pair, file := range j.files {
		if err := file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file for pair %s: %w", pair, err))
		}
	}
	j.files = make(map[string]*os.File)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing files: %v", errs)
	}
	return nil
}
