package matching

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types.
const (
	EventOrderAccepted        = "OrderAccepted"
	EventOrderRejected        = "OrderRejected"
	EventOrderPartiallyFilled = "OrderPartiallyFilled"
	EventOrderFilled          = "OrderFilled"
	EventOrderCancelled       = "OrderCancelled"
	EventTradeExecuted        = "TradeExecuted"
	EventBookDelta            = "BookDelta"
	EventBookSnapshot         = "BookSnapshot"
)

// Event domain event interface
type Event interface {
	EventID() string
	EventType() string
	Sequence() int64 // per-pair, strictly increasing
	Pair() string
	OccurredAt() time.Time
}

// EventHeader carries the fields every event shares.
type EventHeader struct {
	ID        string    `json:"event_id"`
	Type      string    `json:"event_type"`
	Seq       int64     `json:"sequence"`
	PairValue string    `json:"pair"`
	At        time.Time `json:"occurred_at"`
}

// NewEventHeader stamps an event of type typ with seq.
func NewEventHeader(pair, typ string, seq int64, at time.Time) EventHeader {
	return EventHeader{
		ID:        fmt.Sprintf("%s:evt_%d", pair, seq),
		Type:      typ,
		Seq:       seq,
		PairValue: pair,
		At:        at,
	}
}

func (h EventHeader) EventID() string       { return h.ID }
func (h EventHeader) EventType() string     { return h.Type }
func (h EventHeader) Sequence() int64       { return h.Seq }
func (h EventHeader) Pair() string          { return h.PairValue }
func (h EventHeader) OccurredAt() time.Time { return h.At }

// OrderAcceptedEvent is emitted when an order is admitted and sequenced.
type OrderAcceptedEvent struct {
	EventHeader
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	AccountID     string          `json:"account_id"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	OrderSequence int64           `json:"order_sequence"`
	Reserved      decimal.Decimal `json:"reserved"`
}

// OrderRejectedEvent is emitted when an order fails validation or funding.
type OrderRejectedEvent struct {
	EventHeader
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	AccountID     string          `json:"account_id"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Reason        string          `json:"reason"`
}

// OrderFillEvent describes an order's state after one execution. It is shared by
// OrderPartiallyFilled and OrderFilled.
type OrderFillEvent struct {
	EventHeader
	OrderID      string          `json:"order_id"`
	AccountID    string          `json:"account_id"`
	Side         Side            `json:"side"`
	TradeID      string          `json:"trade_id"`
	FillPrice    decimal.Decimal `json:"fill_price"`
	FillQuantity decimal.Decimal `json:"fill_quantity"`
	FilledQty    decimal.Decimal `json:"filled_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	Status       OrderStatus     `json:"status"`
	Fee          decimal.Decimal `json:"fee"` // this order's side of the trade fee
	FeeCurrency  string          `json:"fee_currency"`
}

// OrderCancelledEvent is emitted when an order leaves the book unfilled.
type OrderCancelledEvent struct {
	EventHeader
	OrderID      string          `json:"order_id"`
	AccountID    string          `json:"account_id"`
	Side         Side            `json:"side"`
	FilledQty    decimal.Decimal `json:"filled_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	Reason       CancelReason    `json:"reason"`
	Released     decimal.Decimal `json:"released"`
}

// TradeExecutedEvent carries one trade.
type TradeExecutedEvent struct {
	EventHeader
	Trade Trade `json:"trade"`
}

// BookDeltaEvent reports the new aggregate of one price level. Quantity zero means the
// level is gone.
type BookDeltaEvent struct {
	EventHeader
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// BookSnapshotEvent is a full depth view as of its sequence.
type BookSnapshotEvent struct {
	EventHeader
	Depth Depth `json:"depth"`
}

// NewFillEvent builds an OrderPartiallyFilled or OrderFilled event from the order's state.
func NewFillEvent(order *Order, trade Trade, feeCurrency string, seq int64, at time.Time) *OrderFillEvent {
	typ := EventOrderPartiallyFilled
	if order.Status == OrderStatusFilled {
		typ = EventOrderFilled
	}
	fee := trade.TakerFee
	if order.ID == trade.MakerOrderID {
		fee = trade.MakerFee
	}
	return &OrderFillEvent{
		EventHeader:  NewEventHeader(order.Pair, typ, seq, at),
		OrderID:      order.ID,
		AccountID:    order.AccountID,
		Side:         order.Side,
		TradeID:      trade.TradeID,
		FillPrice:    trade.Price,
		FillQuantity: trade.Quantity,
		FilledQty:    order.FilledQty,
		RemainingQty: order.RemainingQty,
		Status:       order.Status,
		Fee:          fee,
		FeeCurrency:  feeCurrency,
	}
}

// NewBookDelta builds a delta for the level at price on side. A nil level means it emptied.
func NewBookDelta(pair string, side Side, price decimal.Decimal, level *PriceLevel, seq int64, at time.Time) *BookDeltaEvent {
	ev := &BookDeltaEvent{
		EventHeader: NewEventHeader(pair, EventBookDelta, seq, at),
		Side:        side,
		Price:       price,
		Quantity:    decimal.Zero,
	}
	if level != nil {
		ev.Quantity = level.Volume
		ev.Orders = level.Len()
	}
	return ev
}
