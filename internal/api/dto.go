package api

import (
	"time"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
	"spot-matching/internal/projection"
)

// PlaceOrderRequest represents the request body for placing an order
type PlaceOrderRequest struct {
	ClientOrderID  string `json:"client_order_id"`               // Client-provided order ID
	AccountID      string `json:"account_id" binding:"required"` // Account ID
	Pair           string `json:"pair" binding:"required"`       // Trading pair (e.g., "BTC/USDT")
	Side           string `json:"side" binding:"required"`       // Order side: "BUY" or "SELL"
	Type           string `json:"type"`                          // "LIMIT" (default) or "MARKET"
	Price          string `json:"price"`                         // Price as decimal string, empty for market orders
	Quantity       string `json:"quantity" binding:"required"`   // Quantity as decimal string
	IdempotencyKey string `json:"idempotency_key"`               // Idempotency key for deduplication
}

// PlaceOrderResponse represents the response for placing an order
type PlaceOrderResponse struct {
	Order  OrderDTO   `json:"order"`
	Trades []TradeDTO `json:"trades"` // Trades executed by the order (if any)
}

// CancelOrderResponse represents the response for canceling an order
type CancelOrderResponse struct {
	OrderID      string `json:"order_id"`      // Order ID
	Status       string `json:"status"`        // Order status after cancellation
	RemainingQty string `json:"remaining_qty"` // Remaining quantity at cancellation
	FilledQty    string `json:"filled_qty"`    // Filled quantity
}

// OrderDTO is the public view of an order
type OrderDTO struct {
	OrderID       string     `json:"order_id"`
	ClientOrderID string     `json:"client_order_id,omitempty"`
	AccountID     string     `json:"account_id"`
	Pair          string     `json:"pair"`
	Side          string     `json:"side"`
	Type          string     `json:"type"`
	Price         string     `json:"price,omitempty"`
	Quantity      string     `json:"quantity"`
	RemainingQty  string     `json:"remaining_qty"`
	FilledQty     string     `json:"filled_qty"`
	Status        string     `json:"status"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	RejectReason  string     `json:"reject_reason,omitempty"`
	Sequence      int64      `json:"sequence,omitempty"`
	Fee           string     `json:"fee,omitempty"`
	FeeCurrency   string     `json:"fee_currency,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FilledAt      *time.Time `json:"filled_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// TradeDTO represents a trade execution
type TradeDTO struct {
	TradeID      string    `json:"trade_id"`
	Pair         string    `json:"pair"`
	MakerOrderID string    `json:"maker_order_id"`
	TakerOrderID string    `json:"taker_order_id"`
	TakerSide    string    `json:"taker_side"`
	Price        string    `json:"price"`
	Quantity     string    `json:"quantity"`
	MakerFee     string    `json:"maker_fee"`
	TakerFee     string    `json:"taker_fee"`
	Sequence     int64     `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
}

// BookLevelDTO is one aggregated price level
type BookLevelDTO struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Total    string `json:"total"` // price × quantity
	Orders   int    `json:"orders"`
}

// OrderBookResponse is the depth view of one pair
type OrderBookResponse struct {
	Pair     string         `json:"pair"`
	Sequence int64          `json:"sequence"`
	Bids     []BookLevelDTO `json:"bids"`
	Asks     []BookLevelDTO `json:"asks"`
}

// DepositRequest credits funds to an account
type DepositRequest struct {
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// BalanceDTO is the balance of one currency
type BalanceDTO struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Total     string `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    string `json:"code"`    // Error code
	Message string `json:"message"` // Error message
}

func orderFromEngine(o *matching.Order) OrderDTO {
	dto := OrderDTO{
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		AccountID:     o.AccountID,
		Pair:          o.Pair,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Quantity:      o.Quantity.String(),
		RemainingQty:  o.RemainingQty.String(),
		FilledQty:     o.FilledQty.String(),
		Status:        string(o.Status),
		CancelReason:  string(o.CancelReason),
		Sequence:      o.Sequence,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.Type == matching.OrderTypeLimit {
		dto.Price = o.Price.String()
	}
	return dto
}

func orderFromView(v *projection.OrderView) OrderDTO {
	dto := OrderDTO{
		OrderID:       v.OrderID,
		ClientOrderID: v.ClientOrderID,
		AccountID:     v.AccountID,
		Pair:          v.Pair,
		Side:          string(v.Side),
		Type:          string(v.Type),
		Quantity:      v.Quantity.String(),
		RemainingQty:  v.RemainingQty.String(),
		FilledQty:     v.FilledQty.String(),
		Status:        string(v.Status),
		CancelReason:  string(v.CancelReason),
		RejectReason:  v.RejectReason,
		Sequence:      v.OrderSequence,
		FeeCurrency:   v.FeeCurrency,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		FilledAt:      v.FilledAt,
		CancelledAt:   v.CancelledAt,
	}
	if v.FeeCurrency != "" {
		dto.Fee = v.Fee.String()
	}
	if v.Type == matching.OrderTypeLimit {
		dto.Price = v.Price.String()
	}
	return dto
}

func tradeFromEngine(t matching.Trade) TradeDTO {
	return TradeDTO{
		TradeID:      t.TradeID,
		Pair:         t.Pair,
		MakerOrderID: t.MakerOrderID,
		TakerOrderID: t.TakerOrderID,
		TakerSide:    string(t.TakerSide),
		Price:        t.Price.String(),
		Quantity:     t.Quantity.String(),
		MakerFee:     t.MakerFee.String(),
		TakerFee:     t.TakerFee.String(),
		Sequence:     t.Sequence,
		Timestamp:    t.ExecutedAt,
	}
}

func tradeFromView(v *projection.TradeView) TradeDTO {
	return TradeDTO{
		TradeID:      v.TradeID,
		Pair:         v.Pair,
		MakerOrderID: v.MakerOrderID,
		TakerOrderID: v.TakerOrderID,
		TakerSide:    string(v.TakerSide),
		Price:        v.Price.String(),
		Quantity:     v.Quantity.String(),
		MakerFee:     v.MakerFee.String(),
		TakerFee:     v.TakerFee.String(),
		Sequence:     v.TradeSequence,
		Timestamp:    v.OccurredAt,
	}
}

func levelsFrom(levels []matching.LevelDepth) []BookLevelDTO {
	out := make([]BookLevelDTO, 0, len(levels))
	for _, l := range levels {
		out = append(out, BookLevelDTO{
			Price:    l.Price.String(),
			Quantity: l.Quantity.String(),
			Total:    l.Price.Mul(l.Quantity).String(),
			Orders:   l.Orders,
		})
	}
	return out
}

func balanceFrom(currency string, b account.Balance) BalanceDTO {
	return BalanceDTO{
		Currency:  currency,
		Available: b.Available.String(),
		Frozen:    b.Frozen.String(),
		Total:     b.Total().String(),
	}
}
