package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/shared"
)

// Repository persists staged session events. WithTx binds it to the transaction that
// changes the session, so the event and the change commit together.
type Repository interface {
	WithTx(tx pgx.Tx) Repository

	// Create stages a message; a second event of the same type for a session is ErrDuplicateMessage
	Create(ctx context.Context, message *Message) error
	GetBySessionEvent(ctx context.Context, sessionID uuid.UUID, eventType reconciliation.EventType) (*Message, error)

	// GetPending returns up to limit PENDING messages, oldest first
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
}

type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return fmt.Sprintf("outbox message %d not found", e.ID)
}

// ErrDuplicateMessage reports a session event that was already staged
type ErrDuplicateMessage struct {
	SessionID uuid.UUID
	EventType reconciliation.EventType
}

func (e ErrDuplicateMessage) Error() string {
	return fmt.Sprintf("%s event for session %s is already staged", e.EventType, e.SessionID)
}
