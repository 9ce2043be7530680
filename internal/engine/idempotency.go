package engine

import (
	"fmt"
	"sync"
	"time"
)

// IdempotencyKey represents the composite key for idempotency checking
type IdempotencyKey struct {
	AccountID      string
	Pair           string
	CommandType    CommandType
	IdempotencyKey string
}

// String returns a string representation of the idempotency key
func (k IdempotencyKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.AccountID, k.Pair, k.CommandType, k.IdempotencyKey)
}

// IdempotencyRecord stores the cached result of a command execution
type IdempotencyRecord struct {
	PayloadHash string             // Hash of the original payload
	Result      *CommandExecResult // Cached execution result
	ExpiresAt   time.Time          // Expiration time
}

// IdempotencyStore manages idempotency records of one lane
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*IdempotencyRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(ttl time.Duration, now func() time.Time) *IdempotencyStore {
	if now == nil {
		now = time.Now
	}
	return &IdempotencyStore{
		records: make(map[string]*IdempotencyRecord),
		ttl:     ttl,
		now:     now,
	}
}

// Check checks if a command is duplicate or conflict
// Returns:
// - (nil, nil) if not seen before (should execute)
// - (result, nil) if duplicate with same payload (return cached result)
// - (nil, ErrIdempotencyConflict) if the key was used with a different payload
func (s *IdempotencyStore) Check(key IdempotencyKey, payloadHash string) (*CommandExecResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[key.String()]
	if !exists || s.now().After(record.ExpiresAt) {
		return nil, nil
	}
	if record.PayloadHash != payloadHash {
		return nil, ErrIdempotencyConflict
	}
	return cloneCommandExecResult(record.Result), nil
}

// Store stores the execution result for future idempotency checks
func (s *IdempotencyStore) Store(key IdempotencyKey, payloadHash string, result *CommandExecResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key.String()] = &IdempotencyRecord{
		PayloadHash: payloadHash,
		Result:      cloneCommandExecResult(result),
		ExpiresAt:   s.now().Add(s.ttl),
	}
}

// Cleanup removes expired records
func (s *IdempotencyStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, record := range s.records {
		if now.After(record.ExpiresAt) {
			delete(s.records, key)
		}
	}
}

// Size returns the number of records in the store (for testing)
func (s *IdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
