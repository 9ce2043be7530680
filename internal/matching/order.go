package matching

import (
	"container/list"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents an order in the order book.
//
// Identity and intent fields are fixed at admission. FilledQty, RemainingQty, Status and
// the reservation counters change only through Fill, Cancel and Reject.
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	AccountID     string          `json:"account_id"`
	Pair          string          `json:"pair"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"` // zero for market orders
	Quantity      decimal.Decimal `json:"quantity"`
	FilledQty     decimal.Decimal `json:"filled_qty"`
	RemainingQty  decimal.Decimal `json:"remaining_qty"`
	Status        OrderStatus     `json:"status"`
	CancelReason  CancelReason    `json:"cancel_reason,omitempty"`
	Sequence      int64           `json:"sequence"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Funds held for the order in the currency it spends (quote for buys, base for sells),
	// and how much of the hold trades have used so far.
	Reserved decimal.Decimal `json:"reserved"`
	Consumed decimal.Decimal `json:"consumed"`

	element *list.Element // position in the price level queue
}

// NewOrder builds an OPEN order from an admitted request.
func NewOrder(id string, seq int64, req *PlaceOrderRequest, at time.Time) *Order {
	price := req.Price
	if req.Type == OrderTypeMarket {
		price = decimal.Zero
	}
	return &Order{
		ID:            id,
		ClientOrderID: req.ClientOrderID,
		AccountID:     req.AccountID,
		Pair:          req.Pair,
		Side:          req.Side,
		Type:          req.Type,
		Price:         price,
		Quantity:      req.Quantity,
		FilledQty:     decimal.Zero,
		RemainingQty:  req.Quantity,
		Status:        OrderStatusOpen,
		Sequence:      seq,
		CreatedAt:     at,
		UpdatedAt:     at,
		Reserved:      decimal.Zero,
		Consumed:      decimal.Zero,
	}
}

// IsTerminal reports whether the order can still change.
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Crosses reports whether the order is marketable against a resting price.
func (o *Order) Crosses(price decimal.Decimal) bool {
	if o.Type == OrderTypeMarket {
		return true
	}
	if o.Side == SideBuy {
		return o.Price.GreaterThanOrEqual(price)
	}
	return o.Price.LessThanOrEqual(price)
}

// Unused returns the part of the reservation no trade has consumed.
func (o *Order) Unused() decimal.Decimal {
	return o.Reserved.Sub(o.Consumed)
}

// CheckInvariant verifies filled + remaining == quantity and remaining >= 0.
func (o *Order) CheckInvariant() error {
	if o.RemainingQty.IsNegative() || !o.FilledQty.Add(o.RemainingQty).Equal(o.Quantity) {
		return fmt.Errorf("%w: order %s filled=%s remaining=%s quantity=%s",
			ErrInvariantViolation, o.ID, o.FilledQty, o.RemainingQty, o.Quantity)
	}
	return nil
}

// Fill applies an execution of qty to the order.
func (o *Order) Fill(qty decimal.Decimal, at time.Time) error {
	if o.IsTerminal() {
		return fmt.Errorf("%w: fill on terminal order %s (%s)", ErrInvariantViolation, o.ID, o.Status)
	}
	if !qty.IsPositive() || qty.GreaterThan(o.RemainingQty) {
		return fmt.Errorf("%w: fill %s exceeds remaining %s on order %s",
			ErrInvariantViolation, qty, o.RemainingQty, o.ID)
	}
	o.FilledQty = o.FilledQty.Add(qty)
	o.RemainingQty = o.RemainingQty.Sub(qty)
	if o.RemainingQty.IsZero() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	o.UpdatedAt = at
	return o.CheckInvariant()
}

// Cancel marks a live order CANCELLED for its unfilled remainder.
func (o *Order) Cancel(reason CancelReason, at time.Time) error {
	if o.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, o.ID, o.Status)
	}
	o.Status = OrderStatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = at
	return nil
}

// Reject marks an order that never reached the book.
func (o *Order) Reject(at time.Time) {
	o.Status = OrderStatusRejected
	o.UpdatedAt = at
}

// Clone returns a detached copy that is safe to hand outside the lane.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.element = nil
	return &cp
}
