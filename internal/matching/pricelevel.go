package matching

import (
	"container/list"

	"github.com/shopspring/decimal"
)

// PriceLevel represents all resting orders at a specific price
type PriceLevel struct {
	Price  decimal.Decimal
	Queue  *list.List      // FIFO queue of orders, admission order
	Volume decimal.Decimal // Total remaining quantity at this price level
}

// NewPriceLevel creates a new price level
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:  price,
		Queue:  list.New(),
		Volume: decimal.Zero,
	}
}

// AddOrder appends an order to the back of the queue
func (pl *PriceLevel) AddOrder(order *Order) {
	order.element = pl.Queue.PushBack(order)
	pl.Volume = pl.Volume.Add(order.RemainingQty)
}

// RemoveOrder removes an order from the price level
func (pl *PriceLevel) RemoveOrder(order *Order) {
	if order.element != nil {
		pl.Queue.Remove(order.element)
		pl.Volume = pl.Volume.Sub(order.RemainingQty)
		order.element = nil
	}
}

// IsEmpty returns true if the price level has no orders
func (pl *PriceLevel) IsEmpty() bool {
	return pl.Queue.Len() == 0
}

// Len returns the number of resting orders.
func (pl *PriceLevel) Len() int {
	return pl.Queue.Len()
}

// Orders returns the resting orders in queue order. The slice is fresh; the orders are not.
func (pl *PriceLevel) Orders() []*Order {
	out := make([]*Order, 0, pl.Queue.Len())
	for e := pl.Queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Order))
	}
	return out
}

// Front returns the oldest order at the level, or nil.
func (pl *PriceLevel) Front() *Order {
	if e := pl.Queue.Front(); e != nil {
		return e.Value.(*Order)
	}
	return nil
}
