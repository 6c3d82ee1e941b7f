package txlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
)

// Repository is the append-only transaction log
type Repository interface {
	Append(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Event, error)

	// ListByAccount returns the full history of an account ordered by occurrence
	ListByAccount(ctx context.Context, accountRef string) ([]*Event, error)

	// ListByAccountUntil returns events dated on or before until, ordered by occurrence
	ListByAccountUntil(ctx context.Context, accountRef string, until time.Time) ([]*Event, error)

	// GetByAccountPaged returns a page of events, newest first
	GetByAccountPaged(ctx context.Context, accountRef string, limit, offset int) ([]*Event, error)
	CountByAccount(ctx context.Context, accountRef string) (int64, error)

	// Decide moves a PENDING event to its terminal status and records the decision.
	// Returns ErrStatusImmutable when the event was already decided.
	Decide(ctx context.Context, decision *Decision) error
}

// ErrEventNotFound indicates a missing transaction event
type ErrEventNotFound struct {
	EventID uuid.UUID
}

func (e ErrEventNotFound) Error() string {
	return "transaction event not found: " + e.EventID.String()
}

// Is implements the errors.Is interface for ErrEventNotFound
func (e ErrEventNotFound) Is(target error) bool {
	t, ok := target.(ErrEventNotFound)
	if !ok {
		return false
	}
	// An empty target EventID matches any ErrEventNotFound
	if t.EventID == uuid.Nil {
		return true
	}
	return e.EventID == t.EventID
}

// ErrDuplicateEvent indicates an event ID was appended twice
type ErrDuplicateEvent struct {
	EventID uuid.UUID
}

func (e ErrDuplicateEvent) Error() string {
	return "duplicate transaction event: " + e.EventID.String()
}

// Is implements the errors.Is interface for ErrDuplicateEvent
func (e ErrDuplicateEvent) Is(target error) bool {
	t, ok := target.(ErrDuplicateEvent)
	if !ok {
		return false
	}
	if t.EventID == uuid.Nil {
		return true
	}
	return e.EventID == t.EventID
}

// ErrStatusImmutable indicates an attempt to decide an already decided event
type ErrStatusImmutable struct {
	EventID uuid.UUID
	Status  shared.EventStatus
}

func (e ErrStatusImmutable) Error() string {
	return "transaction event " + e.EventID.String() + " is already " + string(e.Status)
}

// Is implements the errors.Is interface for ErrStatusImmutable
func (e ErrStatusImmutable) Is(target error) bool {
	t, ok := target.(ErrStatusImmutable)
	if !ok {
		return false
	}
	if t.EventID == uuid.Nil {
		return true
	}
	return e.EventID == t.EventID
}

// ErrInvalidDecision indicates a decision to a non-terminal status
type ErrInvalidDecision struct {
	Status shared.EventStatus
}

func (e ErrInvalidDecision) Error() string {
	return "invalid decision status: " + string(e.Status)
}
