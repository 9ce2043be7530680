package engine

import (
	"context"
	"errors"
	"time"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
)

// CommandType represents the type of command
type CommandType string

const (
	CommandTypePlace    CommandType = "PLACE"
	CommandTypeCancel   CommandType = "CANCEL"
	CommandTypeQuery    CommandType = "QUERY"
	CommandTypeSnapshot CommandType = "SNAPSHOT"
)

// CommandEnvelope wraps a command with metadata
type CommandEnvelope struct {
	CommandID      string      // Unique command ID
	CommandType    CommandType // PLACE / CANCEL / QUERY / SNAPSHOT
	IdempotencyKey string      // Optional key for deduplication
	Pair           string      // Trading pair, e.g. BTC/USDT
	AccountID      string      // Requesting account
	PayloadHash    string      // Hash of payload for conflict detection
	Payload        any         // *PlaceOrderRequest, *CancelOrderRequest, *QueryRequest or *SnapshotRequest
	CreatedAt      time.Time   // Command creation time
}

// QueryRequest asks for an order's current state.
type QueryRequest struct {
	OrderID   string
	AccountID string
}

// SnapshotRequest asks for the top Depth levels of each side. Depth <= 0 means all.
type SnapshotRequest struct {
	Depth int
}

// ErrorCode represents command execution error codes
type ErrorCode string

const (
	ErrorCodeNone                 ErrorCode = ""
	ErrorCodeDuplicateRequest     ErrorCode = "DUPLICATE_REQUEST"
	ErrorCodeInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeUnknownPair          ErrorCode = "UNKNOWN_PAIR"
	ErrorCodeInsufficientBalance  ErrorCode = "INSUFFICIENT_BALANCE"
	ErrorCodeOrderNotFound        ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeOrderAlreadyTerminal ErrorCode = "ORDER_ALREADY_TERMINAL"
	ErrorCodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrorCodeLaneHalted           ErrorCode = "LANE_HALTED"
	ErrorCodeUnavailable          ErrorCode = "UNAVAILABLE"
	ErrorCodeInternalError        ErrorCode = "INTERNAL_ERROR"
)

// ErrorCodeFor classifies an engine error.
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrorCodeNone
	case errors.Is(err, ErrIdempotencyConflict):
		return ErrorCodeDuplicateRequest
	case errors.Is(err, ErrLaneHalted):
		return ErrorCodeLaneHalted
	case errors.Is(err, ErrLaneStopped), errors.Is(err, ErrJournal),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeUnavailable
	case errors.Is(err, matching.ErrUnknownPair):
		return ErrorCodeUnknownPair
	case errors.Is(err, account.ErrInsufficientBalance):
		return ErrorCodeInsufficientBalance
	case errors.Is(err, matching.ErrNotFound):
		return ErrorCodeOrderNotFound
	case errors.Is(err, matching.ErrForbidden):
		return ErrorCodeUnauthorized
	case errors.Is(err, matching.ErrAlreadyTerminal):
		return ErrorCodeOrderAlreadyTerminal
	case errors.Is(err, matching.ErrValidation), errors.Is(err, matching.ErrDuplicateOrder):
		return ErrorCodeInvalidArgument
	default:
		return ErrorCodeInternalError
	}
}

// CommandExecResult represents the result of command execution
type CommandExecResult struct {
	Result    any       // *CommandResult for place/cancel, *Order for query, *BookSnapshotEvent for snapshot
	ErrorCode ErrorCode // Error code if execution failed
	Err       error     // Detailed error
}

func failed(err error) *CommandExecResult {
	return &CommandExecResult{ErrorCode: ErrorCodeFor(err), Err: err}
}
