package matching

import "github.com/shopspring/decimal"

// FIFO allocates strictly by time priority within a level.
type FIFO struct{}

func (FIFO) Kind() AlgorithmKind { return AlgorithmFIFO }

func (FIFO) sealed() {}

func (FIFO) Allocate(level *PriceLevel, qty decimal.Decimal, _ int32) []Allocation {
	var out []Allocation
	left := qty
	for e := level.Queue.Front(); e != nil && left.IsPositive(); e = e.Next() {
		o := e.Value.(*Order)
		take := decimal.Min(left, o.RemainingQty)
		if !take.IsPositive() {
			continue
		}
		out = append(out, Allocation{Order: o, Quantity: take})
		left = left.Sub(take)
	}
	return out
}
