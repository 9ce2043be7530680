package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spot-matching/internal/pairspec"
)

// Side represents order side (buy/sell)
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents order type (limit/market)
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeLimit || t == OrderTypeMarket
}

// OrderStatus represents order status
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether an order in this status can never change again.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// ParseOrderStatus accepts a status name in any case.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case OrderStatusOpen, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
}

// CancelReason represents order cancellation reason
type CancelReason string

const (
	CancelReasonNone                  CancelReason = ""
	CancelReasonUser                  CancelReason = "USER"
	CancelReasonInsufficientLiquidity CancelReason = "INSUFFICIENT_LIQUIDITY"
)

// PlaceOrderRequest internal place order request (converted by gateway/access layer)
type PlaceOrderRequest struct {
	OrderID        string          `json:"order_id,omitempty"` // assigned by the engine when empty
	ClientOrderID  string          `json:"client_order_id"`
	AccountID      string          `json:"account_id"`
	Pair           string          `json:"pair"`
	Side           Side            `json:"side"`
	Type           OrderType       `json:"type"`
	Price          decimal.Decimal `json:"price"` // zero for market orders
	Quantity       decimal.Decimal `json:"quantity"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Validate checks the request against the pair's precision rules.
func (r *PlaceOrderRequest) Validate(p pairspec.Pair) error {
	if r.AccountID == "" {
		return fmt.Errorf("%w: account_id required", ErrValidation)
	}
	if !r.Side.IsValid() {
		return fmt.Errorf("%w: invalid side %q", ErrValidation, r.Side)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: invalid order type %q", ErrValidation, r.Type)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if !pairspec.OnStep(r.Quantity, p.QuantityScale) {
		return fmt.Errorf("%w: quantity exceeds %d decimal places", ErrValidation, p.QuantityScale)
	}
	if r.Quantity.LessThan(p.MinQuantity) {
		return fmt.Errorf("%w: quantity below minimum %s", ErrValidation, p.MinQuantity)
	}
	switch r.Type {
	case OrderTypeLimit:
		if !r.Price.IsPositive() {
			return fmt.Errorf("%w: price must be positive", ErrValidation)
		}
		if !pairspec.OnStep(r.Price, p.PriceScale) {
			return fmt.Errorf("%w: price exceeds %d decimal places", ErrValidation, p.PriceScale)
		}
	case OrderTypeMarket:
		if !r.Price.IsZero() {
			return fmt.Errorf("%w: market orders must not carry a price", ErrValidation)
		}
	}
	return nil
}

// CancelOrderRequest cancel order request
type CancelOrderRequest struct {
	OrderID        string `json:"order_id"`
	AccountID      string `json:"account_id"` // requester, checked against the owner
	Pair           string `json:"pair"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate validates cancel order request
func (r *CancelOrderRequest) Validate() error {
	if r.OrderID == "" {
		return fmt.Errorf("%w: order_id required", ErrValidation)
	}
	if r.AccountID == "" {
		return fmt.Errorf("%w: account_id required", ErrValidation)
	}
	if r.Pair == "" {
		return fmt.Errorf("%w: pair required", ErrValidation)
	}
	return nil
}

// CommandResult command execution result
type CommandResult struct {
	Order  *Order  // Order state after the command (copy)
	Trades []Trade // Trades executed by the command
	Events []Event // Domain events, in sequence order
}

// Trade represents a trade execution. Trades are immutable once created.
type Trade struct {
	TradeID        string          `json:"trade_id"`
	Pair           string          `json:"pair"`
	TakerOrderID   string          `json:"taker_order_id"`
	MakerOrderID   string          `json:"maker_order_id"`
	TakerAccountID string          `json:"taker_account_id"`
	MakerAccountID string          `json:"maker_account_id"`
	TakerSide      Side            `json:"taker_side"`
	Price          decimal.Decimal `json:"price"` // always the maker's price
	Quantity       decimal.Decimal `json:"quantity"`
	MakerFee       decimal.Decimal `json:"maker_fee"`
	TakerFee       decimal.Decimal `json:"taker_fee"`
	Sequence       int64           `json:"sequence"`
	ExecutedAt     time.Time       `json:"executed_at"`
}

// Notional returns price × quantity of the trade, exact.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// BuyerOrderID returns the id of the buying order.
func (t Trade) BuyerOrderID() string {
	if t.TakerSide == SideBuy {
		return t.TakerOrderID
	}
	return t.MakerOrderID
}

// SellerOrderID returns the id of the selling order.
func (t Trade) SellerOrderID() string {
	if t.TakerSide == SideSell {
		return t.TakerOrderID
	}
	return t.MakerOrderID
}

// LevelDepth is the aggregated view of one price level.
type LevelDepth struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth is a snapshot of the top levels of both sides of a book.
type Depth struct {
	Pair string       `json:"pair"`
	Bids []LevelDepth `json:"bids"` // best (highest) first
	Asks []LevelDepth `json:"asks"` // best (lowest) first
}
