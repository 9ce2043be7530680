package pairspec

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a positive decimal string with at most scale fractional digits.
// Example: value=12.34, scale=4 => 12.34 (exact, no binary rounding).
func ParseAmount(value string, scale int32) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty value")
	}
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, fmt.Errorf("value must be positive")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, fmt.Errorf("invalid decimal format")
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
		if fracPart == "" {
			return decimal.Zero, fmt.Errorf("invalid decimal format")
		}
	}
	for _, ch := range intPart {
		if ch < '0' || ch > '9' {
			return decimal.Zero, fmt.Errorf("invalid integer digits")
		}
	}
	for _, ch := range fracPart {
		if ch < '0' || ch > '9' {
			return decimal.Zero, fmt.Errorf("invalid fractional digits")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !OnStep(d, scale) {
		return decimal.Zero, fmt.Errorf("too many decimal places: max %d", scale)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("value must be positive")
	}
	return d, nil
}

// FormatAmount formats d with at most scale fractional digits and trims trailing zeros.
func FormatAmount(d decimal.Decimal, scale int32) string {
	return d.Truncate(scale).String()
}

// Step returns the smallest representable increment for scale (10^-scale).
func Step(scale int32) decimal.Decimal {
	return decimal.New(1, -scale)
}

// OnStep reports whether d has no digits beyond scale.
func OnStep(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}
