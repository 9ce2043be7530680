package account

import (
	"context"

	"github.com/shopspring/decimal"
)

// Service defines the balance ledger the engine settles against
type Service interface {
	// Reserve moves Amount from available to frozen for the order.
	// Returns ErrInsufficientBalance if the balance is insufficient.
	Reserve(ctx context.Context, hold Hold) error

	// Release returns Amount of the order's hold to available.
	Release(ctx context.Context, hold Hold) error

	// Settle applies one trade. Applying the same trade twice is a no-op.
	Settle(ctx context.Context, s Settlement) error

	// Deposit credits available funds.
	Deposit(ctx context.Context, accountID, currency string, amount decimal.Decimal) error

	// GetBalance returns the balance for a specific account and currency
	GetBalance(accountID, currency string) (Balance, error)

	// Balances returns every balance of an account, keyed by currency.
	Balances(accountID string) map[string]Balance

	// SetBalance sets the balance for a specific account and currency (for testing/initialization)
	SetBalance(accountID, currency string, balance Balance) error
}
