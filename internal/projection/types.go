package projection

import (
	"time"

	"github.com/shopspring/decimal"

	"spot-matching/internal/matching"
)

// OrderView represents the read model for an order
type OrderView struct {
	OrderID       string                `json:"order_id"`
	ClientOrderID string                `json:"client_order_id,omitempty"`
	AccountID     string                `json:"account_id"`
	Pair          string                `json:"pair"`
	Side          matching.Side         `json:"side"`
	Type          matching.OrderType    `json:"type"`
	Price         decimal.Decimal       `json:"price"` // zero for market orders
	Quantity      decimal.Decimal       `json:"quantity"`
	RemainingQty  decimal.Decimal       `json:"remaining_qty"`
	FilledQty     decimal.Decimal       `json:"filled_qty"`
	Status        matching.OrderStatus  `json:"status"`
	CancelReason  matching.CancelReason `json:"cancel_reason,omitempty"`
	RejectReason  string                `json:"reject_reason,omitempty"`
	OrderSequence int64                 `json:"order_sequence,omitempty"` // admission sequence, zero when rejected
	Fee           decimal.Decimal       `json:"fee"`                      // accumulated over all fills
	FeeCurrency   string                `json:"fee_currency,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	FilledAt      *time.Time            `json:"filled_at,omitempty"`
	CancelledAt   *time.Time            `json:"cancelled_at,omitempty"`
	LastSequence  int64                 `json:"last_sequence"` // Last event sequence that updated this order
}

// OrderFilter selects orders of an account, a pair or both.
type OrderFilter struct {
	AccountID string
	Pair      string
	Status    matching.OrderStatus // empty matches every status
	Limit     int                  // <= 0 means no limit
}

func (f OrderFilter) matches(v *OrderView) bool {
	return (f.AccountID == "" || v.AccountID == f.AccountID) &&
		(f.Pair == "" || v.Pair == f.Pair) &&
		(f.Status == "" || v.Status == f.Status)
}

// TradeView represents the read model for a trade
type TradeView struct {
	TradeID        string          `json:"trade_id"`
	Pair           string          `json:"pair"`
	MakerOrderID   string          `json:"maker_order_id"`
	TakerOrderID   string          `json:"taker_order_id"`
	MakerAccountID string          `json:"maker_account_id"`
	TakerAccountID string          `json:"taker_account_id"`
	TakerSide      matching.Side   `json:"taker_side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	MakerFee       decimal.Decimal `json:"maker_fee"`
	TakerFee       decimal.Decimal `json:"taker_fee"`
	TradeSequence  int64           `json:"trade_sequence"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Sequence       int64           `json:"sequence"` // Event sequence number
}

// NewTradeView builds the view of a trade carried by event seq.
func NewTradeView(t matching.Trade, seq int64) *TradeView {
	return &TradeView{
		TradeID:        t.TradeID,
		Pair:           t.Pair,
		MakerOrderID:   t.MakerOrderID,
		TakerOrderID:   t.TakerOrderID,
		MakerAccountID: t.MakerAccountID,
		TakerAccountID: t.TakerAccountID,
		TakerSide:      t.TakerSide,
		Price:          t.Price,
		Quantity:       t.Quantity,
		MakerFee:       t.MakerFee,
		TakerFee:       t.TakerFee,
		TradeSequence:  t.Sequence,
		OccurredAt:     t.ExecutedAt,
		Sequence:       seq,
	}
}
