package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-matching/internal/matching"
)

func TestIdempotencyStore(t *testing.T) {
	now := testNow
	store := NewIdempotencyStore(time.Hour, func() time.Time { return now })
	key := IdempotencyKey{AccountID: "a", Pair: "BTC/USDT", CommandType: CommandTypePlace, IdempotencyKey: "k"}

	cached, err := store.Check(key, "h1")
	require.NoError(t, err)
	assert.Nil(t, cached)

	order := &matching.Order{ID: "o-1", Status: matching.OrderStatusOpen}
	store.Store(key, "h1", &CommandExecResult{Result: &matching.CommandResult{Order: order}})

	cached, err = store.Check(key, "h1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	res := cached.Result.(*matching.CommandResult)
	assert.Equal(t, "o-1", res.Order.ID)

	// Cached results are detached from the caller's copy.
	order.Status = matching.OrderStatusFilled
	cached, _ = store.Check(key, "h1")
	assert.Equal(t, matching.OrderStatusOpen, cached.Result.(*matching.CommandResult).Order.Status)

	_, err = store.Check(key, "h2")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)

	other := key
	other.CommandType = CommandTypeCancel
	cached, err = store.Check(other, "h2")
	require.NoError(t, err)
	assert.Nil(t, cached)

	now = now.Add(2 * time.Hour)
	cached, err = store.Check(key, "h2")
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Equal(t, 1, store.Size())
	store.Cleanup()
	assert.Equal(t, 0, store.Size())
}

func TestErrorCodeFor(t *testing.T) {
	cases := map[ErrorCode]error{
		ErrorCodeNone:                 nil,
		ErrorCodeOrderNotFound:        matching.ErrNotFound,
		ErrorCodeUnauthorized:         matching.ErrForbidden,
		ErrorCodeOrderAlreadyTerminal: matching.ErrAlreadyTerminal,
		ErrorCodeInvalidArgument:      matching.ErrValidation,
		ErrorCodeUnknownPair:          matching.ErrUnknownPair,
		ErrorCodeLaneHalted:           ErrLaneHalted,
		ErrorCodeUnavailable:          ErrJournal,
		ErrorCodeInternalError:        matching.ErrInvariantViolation,
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorCodeFor(err), "%v", err)
	}
}
