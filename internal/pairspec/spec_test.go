package pairspec

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		scale   int32
		want    string
		wantErr bool
	}{
		{in: "12.34", scale: 4, want: "12.34"},
		{in: "+1.5", scale: 8, want: "1.5"},
		{in: "100", scale: 0, want: "100"},
		{in: "1.50", scale: 1, want: "1.5"},
		{in: "0.00000001", scale: 8, want: "0.00000001"},
		{in: "1.123", scale: 2, wantErr: true},
		{in: "-1", scale: 8, wantErr: true},
		{in: "0", scale: 8, wantErr: true},
		{in: "1e3", scale: 8, wantErr: true},
		{in: "1.", scale: 8, wantErr: true},
		{in: "1.2.3", scale: 8, wantErr: true},
		{in: "  ", scale: 8, wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in, tc.scale)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "input %q got %s", tc.in, got)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(decimal.RequireFromString("1.50000000"), 8))
	assert.Equal(t, "0.12", FormatAmount(decimal.RequireFromString("0.129"), 2))
	assert.Equal(t, "3", FormatAmount(decimal.NewFromInt(3), 8))
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(DefaultPairs()...)
	require.NoError(t, err)

	p, err := reg.Get("btc/usdt")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", p.Symbol)
	assert.Equal(t, "BTC", p.Base)
	assert.Equal(t, "USDT", p.Quote)
	assert.True(t, p.QuantityStep().Equal(decimal.RequireFromString("0.00000001")))

	_, err = reg.Get("DOGE/USDT")
	assert.True(t, errors.Is(err, ErrUnknownPair))

	_, err = reg.Get("BTCUSDT")
	assert.True(t, errors.Is(err, ErrUnknownPair))

	assert.Equal(t, []string{"ADA/USDT", "BNB/USDT", "BTC/USDT", "ETH/USDT", "SOL/USDT"}, reg.Symbols())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	p, err := NewPair("ETH/USDT", 2, 4, 8)
	require.NoError(t, err)
	_, err = NewRegistry(p, p)
	assert.Error(t, err)
}

func TestNewPairValidation(t *testing.T) {
	_, err := NewPair("USDT/USDT", 2, 2, 2)
	assert.Error(t, err)
	_, err = NewPair("BTC-USDT", 2, 2, 2)
	assert.Error(t, err)
	_, err = NewPair("BTC/USDT", -1, 2, 2)
	assert.Error(t, err)
}
