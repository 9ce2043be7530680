package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-matching/internal/pairspec"
)

func TestFeeTruncatesToQuoteScale(t *testing.T) {
	pair, err := pairspec.NewPair("BTC/USDT", 2, 8, 2)
	require.NoError(t, err)
	calc, err := NewFeeCalculator(DefaultFeeSchedule())
	require.NoError(t, err)

	// 100.55 × 0.3 × 0.001 = 0.030165 → 0.03
	fee := calc.Fee(pair, d("100.55"), d("0.3"), true)
	assert.True(t, fee.Equal(d("0.03")), "got %s", fee)
	assert.True(t, calc.MaxRate("BTC/USDT").Equal(DefaultFeeRate))
}

// Scenario: maker rate 0.001, taker rate 0.002, trade 1 @ 100.
func TestMakerTakerRates(t *testing.T) {
	pair, err := pairspec.NewPair("ETH/USDT", 8, 8, 8)
	require.NoError(t, err)
	calc, err := NewFeeCalculator(FeeSchedule{
		Default: FeeRates{Maker: d("0.001"), Taker: d("0.001")},
		Overrides: map[string]FeeRates{
			"ETH/USDT": {Maker: d("0.001"), Taker: d("0.002")},
		},
	})
	require.NoError(t, err)

	assert.True(t, calc.Fee(pair, d("100"), d("1"), false).Equal(d("0.1")))
	assert.True(t, calc.Fee(pair, d("100"), d("1"), true).Equal(d("0.2")))
	assert.True(t, calc.MaxRate("ETH/USDT").Equal(d("0.002")))
	assert.True(t, calc.Rates("BTC/USDT").Taker.Equal(d("0.001")))
}

func TestFeeScheduleValidate(t *testing.T) {
	_, err := NewFeeCalculator(FeeSchedule{Default: FeeRates{Maker: d("-0.1"), Taker: decimal.Zero}})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewFeeCalculator(FeeSchedule{
		Default:   FeeRates{},
		Overrides: map[string]FeeRates{"X/Y": {Maker: d("1"), Taker: d("0")}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}
