package account

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance represents account balance for a specific currency
type Balance struct {
	Available decimal.Decimal `json:"available"` // Available balance for new orders
	Frozen    decimal.Decimal `json:"frozen"`    // Frozen balance locked by live orders
}

// Total returns the total balance (available + frozen)
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Frozen)
}

// Hold locks funds for one order in the currency the order spends.
type Hold struct {
	OrderID   string
	AccountID string
	Currency  string
	Amount    decimal.Decimal
}

// Validate validates the hold
func (h *Hold) Validate() error {
	if h.OrderID == "" {
		return fmt.Errorf("%w: order_id is required", ErrInvalidAmount)
	}
	if h.AccountID == "" {
		return fmt.Errorf("%w: account_id is required", ErrInvalidAmount)
	}
	if h.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidAmount)
	}
	if h.Amount.IsNegative() {
		return fmt.Errorf("%w: hold amount %s is negative", ErrInvalidAmount, h.Amount)
	}
	return nil
}

// Settlement is the balance movement of one trade.
//
// The buyer pays QuoteAmount + BuyerFee out of its quote hold and receives BaseAmount.
// The seller pays BaseAmount out of its base hold and receives QuoteAmount - SellerFee.
// Both fees go to the fee account.
type Settlement struct {
	TradeID         string
	Pair            string
	Base            string
	Quote           string
	BuyerAccountID  string
	SellerAccountID string
	BuyerOrderID    string
	SellerOrderID   string
	BaseAmount      decimal.Decimal
	QuoteAmount     decimal.Decimal
	BuyerFee        decimal.Decimal
	SellerFee       decimal.Decimal
}

// Validate validates the settlement
func (s *Settlement) Validate() error {
	if s.TradeID == "" {
		return fmt.Errorf("%w: trade_id is required", ErrInvalidAmount)
	}
	if s.BuyerAccountID == "" || s.SellerAccountID == "" {
		return fmt.Errorf("%w: buyer and seller accounts are required", ErrInvalidAmount)
	}
	if s.BuyerOrderID == "" || s.SellerOrderID == "" {
		return fmt.Errorf("%w: buyer and seller orders are required", ErrInvalidAmount)
	}
	if s.Base == "" || s.Quote == "" {
		return fmt.Errorf("%w: base and quote are required", ErrInvalidAmount)
	}
	if !s.BaseAmount.IsPositive() || !s.QuoteAmount.IsPositive() {
		return fmt.Errorf("%w: trade amounts must be positive", ErrInvalidAmount)
	}
	if s.BuyerFee.IsNegative() || s.SellerFee.IsNegative() {
		return fmt.Errorf("%w: fees must be >= 0", ErrInvalidAmount)
	}
	if s.SellerFee.GreaterThan(s.QuoteAmount) {
		return fmt.Errorf("%w: seller fee exceeds proceeds", ErrInvalidAmount)
	}
	return nil
}
