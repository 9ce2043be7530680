package matching

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spot-matching/internal/pairspec"
)

// DefaultFeeRate is charged on both legs unless configured otherwise (0.1%).
var DefaultFeeRate = decimal.RequireFromString("0.001")

// FeeRates are the maker and taker rates of one pair.
type FeeRates struct {
	Maker decimal.Decimal `json:"maker" mapstructure:"maker_rate"`
	Taker decimal.Decimal `json:"taker" mapstructure:"taker_rate"`
}

// Validate checks that both rates are in [0, 1).
func (r FeeRates) Validate() error {
	one := decimal.NewFromInt(1)
	for _, v := range []decimal.Decimal{r.Maker, r.Taker} {
		if v.IsNegative() || v.GreaterThanOrEqual(one) {
			return fmt.Errorf("%w: fee rate %s out of range", ErrValidation, v)
		}
	}
	return nil
}

// Max returns the larger of the two rates.
func (r FeeRates) Max() decimal.Decimal {
	return decimal.Max(r.Maker, r.Taker)
}

// FeeSchedule holds default rates plus per-pair overrides.
type FeeSchedule struct {
	Default   FeeRates
	Overrides map[string]FeeRates
}

// DefaultFeeSchedule charges DefaultFeeRate on both legs for every pair.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{Default: FeeRates{Maker: DefaultFeeRate, Taker: DefaultFeeRate}}
}

// Validate checks every configured rate.
func (s FeeSchedule) Validate() error {
	if err := s.Default.Validate(); err != nil {
		return err
	}
	for pair, r := range s.Overrides {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("pair %s: %w", pair, err)
		}
	}
	return nil
}

// RatesFor returns the rates that apply to pair.
func (s FeeSchedule) RatesFor(pair string) FeeRates {
	if r, ok := s.Overrides[pair]; ok {
		return r
	}
	return s.Default
}

// FeeCalculator computes trade fees. It holds no state beyond the schedule.
type FeeCalculator struct {
	schedule FeeSchedule
}

// NewFeeCalculator validates the schedule and returns a calculator for it.
func NewFeeCalculator(schedule FeeSchedule) (*FeeCalculator, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	return &FeeCalculator{schedule: schedule}, nil
}

// Fee returns truncate(price * quantity * rate) at the pair's quote scale.
func (c *FeeCalculator) Fee(p pairspec.Pair, price, quantity decimal.Decimal, isTaker bool) decimal.Decimal {
	rates := c.schedule.RatesFor(p.Symbol)
	rate := rates.Maker
	if isTaker {
		rate = rates.Taker
	}
	return price.Mul(quantity).Mul(rate).Truncate(p.QuoteScale)
}

// MaxRate returns the highest rate either leg may pay on pair.
func (c *FeeCalculator) MaxRate(pair string) decimal.Decimal {
	return c.schedule.RatesFor(pair).Max()
}

// Rates exposes the effective rates of pair.
func (c *FeeCalculator) Rates(pair string) FeeRates {
	return c.schedule.RatesFor(pair)
}
