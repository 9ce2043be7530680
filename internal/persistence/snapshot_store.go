package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const snapshotVersion = 1

// FileSnapshotStore implements SnapshotStore using JSON files
type FileSnapshotStore struct {
	baseDir string
	keep    int // snapshots kept per pair, 0 keeps all
	mu      sync.RWMutex
}

// NewFileSnapshotStore creates a new file-based snapshot store
func NewFileSnapshotStore(baseDir string, keep int) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileSnapshotStore{
		baseDir: baseDir,
		keep:    keep,
	}, nil
}

func (s *FileSnapshotStore) pairDir(pair string) string {
	return filepath.Join(s.baseDir, url.PathEscape(pair))
}

// Save saves a snapshot for a specific pair
func (s *FileSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil || snapshot.Pair == "" {
		return fmt.Errorf("snapshot must name a pair")
	}
	snapshot.Version = snapshotVersion

	s.mu.Lock()
	defer s.mu.Unlock()

	pairDir := s.pairDir(snapshot.Pair)
	if err := os.MkdirAll(pairDir, 0755); err != nil {
		return fmt.Errorf("failed to create pair directory: %w", err)
	}

	// Build snapshot filename: snapshot-<last_seq>.json
	filename := fmt.Sprintf("snapshot-%d.json", snapshot.LastSequence)
	filePath := filepath.Join(pairDir, filename)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write to temporary file first
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	return s.pruneLocked(snapshot.Pair)
}

func (s *FileSnapshotStore) pruneLocked(pair string) error {
	if s.keep <= 0 {
		return nil
	}
	snapshots, err := s.listSnapshotsInternal(pair)
	if err != nil {
		return err
	}
	for i := s.keep; i < len(snapshots); i++ {
		if err := os.Remove(snapshots[i].FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to prune snapshot: %w", err)
		}
	}
	return nil
}

// Load loads the latest snapshot for a specific pair
func (s *FileSnapshotStore) Load(ctx context.Context, pair string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots, err := s.listSnapshotsInternal(pair)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil // No snapshot available
	}

	data, err := os.ReadFile(snapshots[0].FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snapshot.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}
	return &snapshot, nil
}

// ListSnapshots lists all available snapshots for a pair (sorted by sequence desc)
func (s *FileSnapshotStore) ListSnapshots(ctx context.Context, pair string) ([]SnapshotMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSnapshotsInternal(pair)
}

// listSnapshotsInternal internal implementation without locking
func (s *FileSnapshotStore) listSnapshotsInternal(pair string) ([]SnapshotMetadata, error) {
	pairDir := s.pairDir(pair)

	if _, err := os.Stat(pairDir); os.IsNotExist(err) {
		return []SnapshotMetadata{}, nil // No snapshots yet
	}

	entries, err := os.ReadDir(pairDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	snapshots := []SnapshotMetadata{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Parse snapshot filename: snapshot-<seq>.json
		name := entry.Name()
		if !strings.HasPrefix(name, "snapshot-") || !strings.HasSuffix(name, ".json") {
			continue
		}

		var seq int64
		if _, err := fmt.Sscanf(name, "snapshot-%d.json", &seq); err != nil {
			continue // Skip invalid filenames
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		snapshots = append(snapshots, SnapshotMetadata{
			Pair:         pair,
			LastSequence: seq,
			CapturedAt:   info.ModTime(),
			FilePath:     filepath.Join(pairDir, name),
		})
	}

	// Sort by sequence descending (latest first)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].LastSequence > snapshots[j].LastSequence
	})

	return snapshots, nil
}

// Close closes the snapshot store
func (s *FileSnapshotStore) Close() error {
	return nil
}
