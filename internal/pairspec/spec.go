package pairspec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownPair is returned when a pair is not configured.
var ErrUnknownPair = errors.New("unknown trading pair")

// Pair defines the currencies and precision constraints of a trading pair.
type Pair struct {
	Symbol        string          // e.g. "BTC/USDT"
	Base          string          // e.g. "BTC"
	Quote         string          // e.g. "USDT"
	PriceScale    int32           // fractional digits allowed in a price
	QuantityScale int32           // fractional digits allowed in a quantity
	QuoteScale    int32           // fractional digits kept for fees
	MinQuantity   decimal.Decimal // smallest accepted order quantity
}

// NewPair builds a pair from a "BASE/QUOTE" symbol.
func NewPair(symbol string, priceScale, quantityScale, quoteScale int32) (Pair, error) {
	base, quote, err := ParseSymbol(symbol)
	if err != nil {
		return Pair{}, err
	}
	p := Pair{
		Symbol:        base + "/" + quote,
		Base:          base,
		Quote:         quote,
		PriceScale:    priceScale,
		QuantityScale: quantityScale,
		QuoteScale:    quoteScale,
		MinQuantity:   Step(quantityScale),
	}
	return p, p.Validate()
}

// Validate checks that the pair is internally consistent.
func (p Pair) Validate() error {
	if p.Base == "" || p.Quote == "" {
		return fmt.Errorf("pair %q: base and quote required", p.Symbol)
	}
	if p.Base == p.Quote {
		return fmt.Errorf("pair %q: base and quote must differ", p.Symbol)
	}
	if p.PriceScale < 0 || p.QuantityScale < 0 || p.QuoteScale < 0 {
		return fmt.Errorf("pair %q: scales must be >= 0", p.Symbol)
	}
	if !p.MinQuantity.IsPositive() || !OnStep(p.MinQuantity, p.QuantityScale) {
		return fmt.Errorf("pair %q: min quantity must be a positive multiple of the quantity step", p.Symbol)
	}
	return nil
}

// PriceStep returns the pair's price tick.
func (p Pair) PriceStep() decimal.Decimal { return Step(p.PriceScale) }

// QuantityStep returns the pair's quantity increment.
func (p Pair) QuantityStep() decimal.Decimal { return Step(p.QuantityScale) }

// ParseSymbol splits "BTC/USDT" into base and quote, upper-cased.
func ParseSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return parts[0], parts[1], nil
}

// Registry holds the configured pairs. It is immutable after construction.
type Registry struct {
	pairs map[string]Pair
}

// NewRegistry validates and indexes pairs by symbol.
func NewRegistry(pairs ...Pair) (*Registry, error) {
	r := &Registry{pairs: make(map[string]Pair, len(pairs))}
	for _, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.pairs[p.Symbol]; dup {
			return nil, fmt.Errorf("duplicate pair %q", p.Symbol)
		}
		r.pairs[p.Symbol] = p
	}
	return r, nil
}

// DefaultPairs returns the pairs listed by the exchange out of the box.
func DefaultPairs() []Pair {
	symbols := []string{"BTC/USDT", "ETH/USDT", "BNB/USDT", "ADA/USDT", "SOL/USDT"}
	out := make([]Pair, 0, len(symbols))
	for _, s := range symbols {
		p, _ := NewPair(s, 8, 8, 8)
		out = append(out, p)
	}
	return out
}

// Get returns the pair for symbol.
func (r *Registry) Get(symbol string) (Pair, error) {
	base, quote, err := ParseSymbol(symbol)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrUnknownPair, err)
	}
	p, ok := r.pairs[base+"/"+quote]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %s", ErrUnknownPair, symbol)
	}
	return p, nil
}

// Symbols returns all configured symbols, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.pairs))
	for s := range r.pairs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
