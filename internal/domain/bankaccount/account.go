// Package bankaccount holds the cooperative's bank accounts that statements are reconciled against.
package bankaccount

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrEmptyAccountRef       = errors.New("account reference cannot be empty")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
)

// Account is a bank account as known to the books. OpeningBalance seeds the first
// reconciliation session.
type Account struct {
	AccountRef     string    `json:"account_ref"`
	Name           string    `json:"name"`
	OpeningBalance int64     `json:"opening_balance"` // Stored in minor units, may be negative for overdrafts
	Currency       string    `json:"currency"`
	OpenedAt       time.Time `json:"opened_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the master data fields the reconciliation engine depends on
func (a *Account) Validate() error {
	if a.AccountRef == "" {
		return ErrEmptyAccountRef
	}
	if len(a.Currency) != 3 { // Basic validation for currency code length
		return ErrInvalidCurrencyFormat
	}
	return nil
}
