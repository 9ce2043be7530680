package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrHoldNotFound        = errors.New("hold not found")
	ErrHoldMismatch        = errors.New("hold does not match")
	ErrHoldUnderflow       = errors.New("hold underflow")
)

// InsufficientBalanceError represents insufficient balance error with details
type InsufficientBalanceError struct {
	AccountID string
	Currency  string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: account=%s currency=%s required=%s available=%s",
		e.AccountID, e.Currency, e.Required, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
