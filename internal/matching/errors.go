package matching

import (
	"errors"

	"spot-matching/internal/pairspec"
)

// Sentinel errors returned by the order book and the engine. Callers classify them
// with errors.Is; the wrapped message carries the detail.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("order not found")
	ErrForbidden          = errors.New("order belongs to a different account")
	ErrAlreadyTerminal    = errors.New("order already terminal")
	ErrDuplicateOrder     = errors.New("duplicate order id")
	ErrInvariantViolation = errors.New("fill invariant violated")

	ErrUnknownPair = pairspec.ErrUnknownPair
)
