package bankaccount

import (
	"context"
)

// Repository provides read-only access to bank account master data
type Repository interface {
	GetByRef(ctx context.Context, accountRef string) (*Account, error)
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	AccountRef string
}

func (e ErrAccountNotFound) Error() string {
	return "bank account not found: " + e.AccountRef
}

// Is implements the errors.Is interface for ErrAccountNotFound
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	if t.AccountRef == "" {
		return true
	}
	return e.AccountRef == t.AccountRef
}
