package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/schedule"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// ScheduleStatus is the projected schedule of one account
type ScheduleStatus struct {
	AccountRef string
	Currency   string
	Slots      []schedule.SlotStatus
	NextAction schedule.NextAction
}

// ScheduleService derives installment status from the plan history and transaction log
type ScheduleService interface {
	// GetScheduleStatus projects slots 1..upToSlot (or the default range when nil) and
	// resolves the next action.
	// Returns plan.ErrPlanNotFound when the account has no plan.
	GetScheduleStatus(ctx context.Context, accountRef string, upToSlot *int) (*ScheduleStatus, error)
}

// SessionView is a session with its operator-facing candidate list
type SessionView struct {
	Session    *reconciliation.Session
	Candidates []reconciliation.Candidate
}

// ReconciliationOverview is an account's active session and its earlier sessions
type ReconciliationOverview struct {
	Active  *reconciliation.Session
	History []*reconciliation.Session
}

// ReconciliationService drives reconciliation sessions. Every mutation runs in one
// database transaction holding the session row lock.
type ReconciliationService interface {
	// Start opens a session. Returns ErrSessionAlreadyActive if the account has one.
	Start(ctx context.Context, accountRef string, statementEndDate time.Time, closingBalance int64) (*reconciliation.Session, error)

	// ToggleMatch flips a candidate in or out of the matched set.
	// Returns ErrUnknownTransaction if the transaction is not a candidate.
	ToggleMatch(ctx context.Context, sessionID, transactionID uuid.UUID) (*reconciliation.Session, error)

	UpdateClosingBalance(ctx context.Context, sessionID uuid.UUID, closingBalance int64) (*reconciliation.Session, error)

	// RemoveItems unmatches the transactions and hides them from this session
	RemoveItems(ctx context.Context, sessionID uuid.UUID, transactionIDs []uuid.UUID) (*reconciliation.Session, error)

	// Complete closes a balanced session and stamps its matches as reconciled.
	// Returns ErrUnbalanced with the current difference otherwise.
	Complete(ctx context.Context, sessionID uuid.UUID, correlationID string) (*reconciliation.Session, error)

	// Cancel abandons the session and discards its matches
	Cancel(ctx context.Context, sessionID uuid.UUID, correlationID string) (*reconciliation.Session, error)

	GetOverview(ctx context.Context, accountRef string) (*ReconciliationOverview, error)

	// ListCandidates returns the session together with the transactions it may match
	ListCandidates(ctx context.Context, sessionID uuid.UUID) (*SessionView, error)
}

// TransactionService publishes transaction commands and reads the transaction log
type TransactionService interface {
	// Submit publishes a SUBMIT command with idempotency support.
	// Returns the event ID and the existing event if the idempotency key was already used.
	Submit(ctx context.Context, cmd *shared.TransactionCommand) (string, *txlog.Event, error)

	// Decide publishes an APPROVE or REJECT command for a pending event.
	// Returns ErrEventNotFound or ErrStatusImmutable when it cannot apply.
	Decide(ctx context.Context, cmd *shared.TransactionCommand) error

	// Resubmit publishes a RESUBMIT command correcting a rejected event
	Resubmit(ctx context.Context, cmd *shared.TransactionCommand) error

	// GetTransactionByID returns nil if the event is not found
	GetTransactionByID(ctx context.Context, eventID uuid.UUID) (*txlog.Event, error)

	// GetTransactionsByAccount returns a page of events, newest first, and the total count
	GetTransactionsByAccount(ctx context.Context, accountRef string, page, perPage int) ([]*txlog.Event, int64, error)
}
