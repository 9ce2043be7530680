package engine

import (
	"fmt"

	"spot-matching/internal/matching"
	"spot-matching/internal/pairspec"
)

// Router routes commands to the lane of their pair
type Router struct {
	pairs *pairspec.Registry
	lanes map[string]*Lane
}

// NewRouter creates a router over one lane per registered pair
func NewRouter(pairs *pairspec.Registry, lanes []*Lane) *Router {
	r := &Router{
		pairs: pairs,
		lanes: make(map[string]*Lane, len(lanes)),
	}
	for _, l := range lanes {
		r.lanes[l.pair.Symbol] = l
	}
	return r
}

// Route resolves symbol (any case, e.g. "btc/usdt") to its lane
func (r *Router) Route(symbol string) (*Lane, error) {
	p, err := r.pairs.Get(symbol)
	if err != nil {
		return nil, err
	}
	l, ok := r.lanes[p.Symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no lane for %s", matching.ErrUnknownPair, p.Symbol)
	}
	return l, nil
}
