package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a session lifecycle event published downstream
type EventType string

const (
	EventTypeCompleted EventType = "RECONCILIATION_COMPLETED"
	EventTypeCancelled EventType = "RECONCILIATION_CANCELLED"
)

// SessionEvent is published when a session reaches a terminal state
type SessionEvent struct {
	Type             EventType   `json:"type"`
	SessionID        uuid.UUID   `json:"session_id"`
	AccountRef       string      `json:"account_ref"`
	StatementEndDate time.Time   `json:"statement_end_date"`
	StartingBalance  int64       `json:"starting_balance"`
	ClosingBalance   int64       `json:"closing_balance"`
	MatchedBalance   int64       `json:"matched_balance"`
	TransactionIDs   []uuid.UUID `json:"transaction_ids"`
	CorrelationID    string      `json:"correlation_id,omitempty"`
	OccurredAt       time.Time   `json:"occurred_at"`
}

// NewSessionEvent snapshots a terminal session
func NewSessionEvent(s *Session, correlationID string) *SessionEvent {
	eventType := EventTypeCompleted
	if s.Status == StatusCancelled {
		eventType = EventTypeCancelled
	}
	return &SessionEvent{
		Type:             eventType,
		SessionID:        s.ID,
		AccountRef:       s.AccountRef,
		StatementEndDate: s.StatementEndDate,
		StartingBalance:  s.StartingBalance,
		ClosingBalance:   s.ClosingBalance,
		MatchedBalance:   s.MatchedBalance(),
		TransactionIDs:   s.MatchedIDs(),
		CorrelationID:    correlationID,
		OccurredAt:       s.UpdatedAt,
	}
}

func (e *SessionEvent) GetCorrelationID() string {
	return e.CorrelationID
}
