package matching

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ProRata allocates a level proportionally to resting size.
//
// Each order gets floor(take * remaining / total) on the quantity step. The leftover from
// rounding goes to orders by largest remaining, ties by earliest sequence, each capped by
// what it still has room for. Orders whose proportional share is below MinFill get nothing in
// the proportional pass and are served last from the leftover, so the allocations always
// sum to take.
type ProRata struct {
	MinFill decimal.Decimal
}

func (ProRata) Kind() AlgorithmKind { return AlgorithmProRata }

func (ProRata) sealed() {}

func (p ProRata) Allocate(level *PriceLevel, qty decimal.Decimal, quantityScale int32) []Allocation {
	orders := level.Orders()
	if len(orders) == 0 || !qty.IsPositive() {
		return nil
	}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.RemainingQty)
	}
	if !total.IsPositive() {
		return nil
	}
	take := decimal.Min(qty, total)
	if len(orders) == 1 {
		return []Allocation{{Order: orders[0], Quantity: take}}
	}

	alloc := make([]decimal.Decimal, len(orders))
	skipped := make([]bool, len(orders))
	assigned := decimal.Zero
	for i, o := range orders {
		share, _ := take.Mul(o.RemainingQty).QuoRem(total, quantityScale)
		if p.MinFill.IsPositive() && share.LessThan(p.MinFill) {
			share = decimal.Zero
			skipped[i] = true
		}
		alloc[i] = share
		assigned = assigned.Add(share)
	}

	leftover := take.Sub(assigned)
	if leftover.IsPositive() {
		idx := make([]int, len(orders))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			oa, ob := orders[idx[a]], orders[idx[b]]
			if c := oa.RemainingQty.Cmp(ob.RemainingQty); c != 0 {
				return c > 0
			}
			return oa.Sequence < ob.Sequence
		})
		for _, pass := range []bool{false, true} {
			for _, i := range idx {
				if !leftover.IsPositive() {
					break
				}
				if skipped[i] != pass {
					continue
				}
				room := orders[i].RemainingQty.Sub(alloc[i])
				give := decimal.Min(room, leftover)
				if give.IsPositive() {
					alloc[i] = alloc[i].Add(give)
					leftover = leftover.Sub(give)
				}
			}
		}
	}

	out := make([]Allocation, 0, len(orders))
	for i, o := range orders {
		if alloc[i].IsPositive() {
			out = append(out, Allocation{Order: o, Quantity: alloc[i]})
		}
	}
	return out
}
