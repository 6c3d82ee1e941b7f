package reconciliation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEmptyAccountRef      = errors.New("account reference cannot be empty")
	ErrMissingStatementDate = errors.New("statement end date is required")
)

// ErrSessionAlreadyActive indicates the account already has an active session
type ErrSessionAlreadyActive struct {
	AccountRef string
}

func (e ErrSessionAlreadyActive) Error() string {
	return "an active reconciliation session already exists for account: " + e.AccountRef
}

// Is implements the errors.Is interface for ErrSessionAlreadyActive
func (e ErrSessionAlreadyActive) Is(target error) bool {
	t, ok := target.(ErrSessionAlreadyActive)
	if !ok {
		return false
	}
	if t.AccountRef == "" {
		return true
	}
	return e.AccountRef == t.AccountRef
}

// ErrSessionNotFound indicates a missing session
type ErrSessionNotFound struct {
	SessionID uuid.UUID
}

func (e ErrSessionNotFound) Error() string {
	return "reconciliation session not found: " + e.SessionID.String()
}

// Is implements the errors.Is interface for ErrSessionNotFound
func (e ErrSessionNotFound) Is(target error) bool {
	t, ok := target.(ErrSessionNotFound)
	if !ok {
		return false
	}
	if t.SessionID == uuid.Nil {
		return true
	}
	return e.SessionID == t.SessionID
}

// ErrSessionNotActive indicates a mutation of a completed or cancelled session
type ErrSessionNotActive struct {
	SessionID uuid.UUID
	Status    Status
}

func (e ErrSessionNotActive) Error() string {
	return fmt.Sprintf("reconciliation session %s is %s", e.SessionID, e.Status)
}

// Is implements the errors.Is interface for ErrSessionNotActive
func (e ErrSessionNotActive) Is(target error) bool {
	_, ok := target.(ErrSessionNotActive)
	return ok
}

// ErrUnknownTransaction indicates a transaction that is not a candidate of the session
type ErrUnknownTransaction struct {
	TransactionID uuid.UUID
}

func (e ErrUnknownTransaction) Error() string {
	return "transaction is not a candidate for this session: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrUnknownTransaction
func (e ErrUnknownTransaction) Is(target error) bool {
	t, ok := target.(ErrUnknownTransaction)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

// ErrUnbalanced is returned by Complete while the difference exceeds the tolerance.
// It is a routine outcome and carries the current difference for display.
type ErrUnbalanced struct {
	Difference int64
}

func (e ErrUnbalanced) Error() string {
	return fmt.Sprintf("reconciliation is unbalanced by %d", e.Difference)
}

// Is implements the errors.Is interface for ErrUnbalanced
func (e ErrUnbalanced) Is(target error) bool {
	_, ok := target.(ErrUnbalanced)
	return ok
}
