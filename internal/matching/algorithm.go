package matching

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AlgorithmKind names an allocation policy.
type AlgorithmKind string

const (
	AlgorithmFIFO    AlgorithmKind = "fifo"
	AlgorithmProRata AlgorithmKind = "pro_rata"
)

// Allocation is the quantity one resting order receives from an incoming order.
type Allocation struct {
	Order    *Order
	Quantity decimal.Decimal
}

// Algorithm splits an incoming quantity across the orders of one crossing price level.
// Implementations are pure: they never mutate the level or its orders.
type Algorithm interface {
	Kind() AlgorithmKind
	// Allocate returns non-zero allocations in level queue order. Their sum is
	// min(qty, level.Volume) and no allocation exceeds its order's remaining quantity.
	Allocate(level *PriceLevel, qty decimal.Decimal, quantityScale int32) []Allocation
	sealed()
}

// AlgorithmOptions tunes algorithm construction.
type AlgorithmOptions struct {
	// MinFill is the smallest proportional Pro-Rata allocation an order receives in the
	// proportional pass. Zero disables the threshold.
	MinFill decimal.Decimal
}

// ParseAlgorithmKind accepts "fifo" and "pro_rata" (case-insensitive, "prorata" too).
func ParseAlgorithmKind(s string) (AlgorithmKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "":
		return AlgorithmFIFO, nil
	case "pro_rata", "prorata", "pro-rata":
		return AlgorithmProRata, nil
	}
	return "", fmt.Errorf("%w: unknown matching algorithm %q", ErrValidation, s)
}

// NewAlgorithm builds the algorithm for kind.
func NewAlgorithm(kind AlgorithmKind, opts AlgorithmOptions) (Algorithm, error) {
	switch kind {
	case AlgorithmFIFO:
		return FIFO{}, nil
	case AlgorithmProRata:
		if opts.MinFill.IsNegative() {
			return nil, fmt.Errorf("%w: pro-rata min fill must be >= 0", ErrValidation)
		}
		return ProRata{MinFill: opts.MinFill}, nil
	}
	return nil, fmt.Errorf("%w: unknown matching algorithm %q", ErrValidation, kind)
}
