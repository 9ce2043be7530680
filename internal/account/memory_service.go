package account

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultFeeAccount receives trading fees unless configured otherwise.
const DefaultFeeAccount = "fees"

// MemoryService is an in-memory implementation of the account service
type MemoryService struct {
	mu            sync.RWMutex
	feeAccount    string
	balances      map[string]map[string]*Balance // accountID -> currency -> Balance
	holds         map[string]*HoldRecord         // orderID -> HoldRecord
	appliedTrades map[string]struct{}            // pair|tradeID -> applied marker
}

// HoldRecord tracks frozen funds for an order
type HoldRecord struct {
	AccountID string
	Currency  string
	Original  decimal.Decimal
	Consumed  decimal.Decimal // used by settlements
	Released  decimal.Decimal // returned to available
}

// Remaining returns the part of the hold still frozen.
func (r HoldRecord) Remaining() decimal.Decimal {
	return r.Original.Sub(r.Consumed).Sub(r.Released)
}

// Option configures a MemoryService.
type Option func(*MemoryService)

// WithFeeAccount sets the account credited with trading fees.
func WithFeeAccount(accountID string) Option {
	return func(s *MemoryService) {
		if accountID != "" {
			s.feeAccount = accountID
		}
	}
}

// NewMemoryService creates a new in-memory account service
func NewMemoryService(opts ...Option) *MemoryService {
	s := &MemoryService{
		feeAccount:    DefaultFeeAccount,
		balances:      make(map[string]map[string]*Balance),
		holds:         make(map[string]*HoldRecord),
		appliedTrades: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FeeAccount returns the account credited with fees.
func (s *MemoryService) FeeAccount() string {
	return s.feeAccount
}

// Reserve checks balance and freezes funds for an order
func (s *MemoryService) Reserve(ctx context.Context, hold Hold) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := hold.Validate(); err != nil {
		return err
	}
	if !hold.Amount.IsPositive() {
		return fmt.Errorf("%w: hold amount must be positive", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Same order reserved twice with the same shape is idempotent.
	if existing, exists := s.holds[hold.OrderID]; exists {
		if existing.AccountID == hold.AccountID &&
			existing.Currency == hold.Currency &&
			existing.Original.Equal(hold.Amount) {
			return nil
		}
		return fmt.Errorf("%w: order_id %s already holds different funds", ErrHoldMismatch, hold.OrderID)
	}

	balance := s.getOrCreateBalance(hold.AccountID, hold.Currency)
	if balance.Available.LessThan(hold.Amount) {
		return &InsufficientBalanceError{
			AccountID: hold.AccountID,
			Currency:  hold.Currency,
			Required:  hold.Amount,
			Available: balance.Available,
		}
	}

	balance.Available = balance.Available.Sub(hold.Amount)
	balance.Frozen = balance.Frozen.Add(hold.Amount)
	s.holds[hold.OrderID] = &HoldRecord{
		AccountID: hold.AccountID,
		Currency:  hold.Currency,
		Original:  hold.Amount,
		Consumed:  decimal.Zero,
		Released:  decimal.Zero,
	}
	return nil
}

// RestoreHold recreates the frozen funds of an order rebuilt from the journal. The
// amount is credited to Frozen directly; nothing is taken from Available.
func (s *MemoryService) RestoreHold(ctx context.Context, hold Hold) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := hold.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.holds[hold.OrderID]; exists {
		if existing.AccountID == hold.AccountID && existing.Currency == hold.Currency {
			return nil
		}
		return fmt.Errorf("%w: order_id %s already holds different funds", ErrHoldMismatch, hold.OrderID)
	}

	balance := s.getOrCreateBalance(hold.AccountID, hold.Currency)
	balance.Frozen = balance.Frozen.Add(hold.Amount)
	s.holds[hold.OrderID] = &HoldRecord{
		AccountID: hold.AccountID,
		Currency:  hold.Currency,
		Original:  hold.Amount,
		Consumed:  decimal.Zero,
		Released:  decimal.Zero,
	}
	return nil
}

// Release returns hold.Amount of the order's frozen funds to available
func (s *MemoryService) Release(ctx context.Context, hold Hold) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := hold.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.holds[hold.OrderID]
	if !exists {
		if hold.Amount.IsZero() {
			return nil
		}
		return fmt.Errorf("%w: order %s", ErrHoldNotFound, hold.OrderID)
	}
	if record.AccountID != hold.AccountID || record.Currency != hold.Currency {
		return fmt.Errorf("%w: hold for %s belongs to %s/%s", ErrHoldMismatch, hold.OrderID, record.AccountID, record.Currency)
	}
	if hold.Amount.IsZero() {
		return nil
	}
	if record.Remaining().LessThan(hold.Amount) {
		return fmt.Errorf("%w: release %s exceeds remaining %s for order %s",
			ErrHoldUnderflow, hold.Amount, record.Remaining(), hold.OrderID)
	}
	balance := s.getOrCreateBalance(record.AccountID, record.Currency)
	if balance.Frozen.LessThan(hold.Amount) {
		return fmt.Errorf("%w: frozen balance underflow for order %s", ErrHoldUnderflow, hold.OrderID)
	}

	balance.Frozen = balance.Frozen.Sub(hold.Amount)
	balance.Available = balance.Available.Add(hold.Amount)
	record.Released = record.Released.Add(hold.Amount)
	return nil
}

// Settle applies balance changes after a trade execution
func (s *MemoryService) Settle(ctx context.Context, st Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tradeKey := st.Pair + "|" + st.TradeID
	if _, exists := s.appliedTrades[tradeKey]; exists {
		return nil
	}

	buyerCost := st.QuoteAmount.Add(st.BuyerFee)
	buyerHold, err := s.holdFor(st.BuyerOrderID, st.BuyerAccountID, st.Quote, buyerCost)
	if err != nil {
		return err
	}
	sellerHold, err := s.holdFor(st.SellerOrderID, st.SellerAccountID, st.Base, st.BaseAmount)
	if err != nil {
		return err
	}

	buyerQuote := s.getOrCreateBalance(st.BuyerAccountID, st.Quote)
	sellerBase := s.getOrCreateBalance(st.SellerAccountID, st.Base)
	if buyerQuote.Frozen.LessThan(buyerCost) {
		return fmt.Errorf("%w: buyer frozen %s below cost %s", ErrHoldUnderflow, buyerQuote.Frozen, buyerCost)
	}
	if sellerBase.Frozen.LessThan(st.BaseAmount) {
		return fmt.Errorf("%w: seller frozen %s below %s", ErrHoldUnderflow, sellerBase.Frozen, st.BaseAmount)
	}

	// Buyer: pay quote + fee from the hold, receive base.
	buyerQuote.Frozen = buyerQuote.Frozen.Sub(buyerCost)
	buyerHold.Consumed = buyerHold.Consumed.Add(buyerCost)
	buyerBase := s.getOrCreateBalance(st.BuyerAccountID, st.Base)
	buyerBase.Available = buyerBase.Available.Add(st.BaseAmount)

	// Seller: deliver base from the hold, receive quote - fee.
	sellerBase.Frozen = sellerBase.Frozen.Sub(st.BaseAmount)
	sellerHold.Consumed = sellerHold.Consumed.Add(st.BaseAmount)
	sellerQuote := s.getOrCreateBalance(st.SellerAccountID, st.Quote)
	sellerQuote.Available = sellerQuote.Available.Add(st.QuoteAmount.Sub(st.SellerFee))

	fees := st.BuyerFee.Add(st.SellerFee)
	if fees.IsPositive() {
		feeQuote := s.getOrCreateBalance(s.feeAccount, st.Quote)
		feeQuote.Available = feeQuote.Available.Add(fees)
	}

	s.appliedTrades[tradeKey] = struct{}{}
	return nil
}

func (s *MemoryService) holdFor(orderID, accountID, currency string, need decimal.Decimal) (*HoldRecord, error) {
	record, exists := s.holds[orderID]
	if !exists {
		return nil, fmt.Errorf("%w: order %s", ErrHoldNotFound, orderID)
	}
	if record.AccountID != accountID || record.Currency != currency {
		return nil, fmt.Errorf("%w: order %s holds %s/%s", ErrHoldMismatch, orderID, record.AccountID, record.Currency)
	}
	if record.Remaining().LessThan(need) {
		return nil, fmt.Errorf("%w: order %s needs %s, holds %s", ErrHoldUnderflow, orderID, need, record.Remaining())
	}
	return record, nil
}

// Deposit credits available funds
func (s *MemoryService) Deposit(ctx context.Context, accountID, currency string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if accountID == "" || currency == "" {
		return fmt.Errorf("%w: account and currency are required", ErrInvalidAmount)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.getOrCreateBalance(accountID, currency)
	balance.Available = balance.Available.Add(amount)
	return nil
}

// Hold returns a copy of the hold record of an order.
func (s *MemoryService) Hold(orderID string) (HoldRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.holds[orderID]
	if !exists {
		return HoldRecord{}, false
	}
	return *record, true
}

// GetBalance returns the balance for a specific account and currency
func (s *MemoryService) GetBalance(accountID, currency string) (Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountBalances, exists := s.balances[accountID]
	if !exists {
		return Balance{Available: decimal.Zero, Frozen: decimal.Zero}, nil
	}
	balance, exists := accountBalances[currency]
	if !exists {
		return Balance{Available: decimal.Zero, Frozen: decimal.Zero}, nil
	}
	return *balance, nil
}

// Balances returns every balance of an account
func (s *MemoryService) Balances(accountID string) map[string]Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Balance)
	for currency, b := range s.balances[accountID] {
		out[currency] = *b
	}
	return out
}

// TotalSupply sums the total balance of currency over all accounts.
func (s *MemoryService) TotalSupply(currency string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, balances := range s.balances {
		if b, ok := balances[currency]; ok {
			total = total.Add(b.Total())
		}
	}
	return total
}

// SetBalance sets the balance for a specific account and currency
func (s *MemoryService) SetBalance(accountID, currency string, balance Balance) error {
	if balance.Available.IsNegative() || balance.Frozen.IsNegative() {
		return fmt.Errorf("%w: balances must be >= 0", ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.getOrCreateBalance(accountID, currency)
	b.Available = balance.Available
	b.Frozen = balance.Frozen
	return nil
}

// Helper methods

func (s *MemoryService) getOrCreateBalance(accountID, currency string) *Balance {
	accountBalances, exists := s.balances[accountID]
	if !exists {
		accountBalances = make(map[string]*Balance)
		s.balances[accountID] = accountBalances
	}
	balance, exists := accountBalances[currency]
	if !exists {
		balance = &Balance{Available: decimal.Zero, Frozen: decimal.Zero}
		accountBalances[currency] = balance
	}
	return balance
}
