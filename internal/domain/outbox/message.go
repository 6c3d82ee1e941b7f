package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/shared"
)

// Message is a reconciliation session event staged in the same transaction as the session
// change it announces. The relay publishes it keyed by account.
type Message struct {
	ID            int64                    `json:"id"`
	SessionID     uuid.UUID                `json:"session_id"`
	AccountRef    string                   `json:"account_ref"`
	EventType     reconciliation.EventType `json:"event_type"`
	Payload       json.RawMessage          `json:"payload"`
	Status        shared.OutboxStatus      `json:"status"`
	Attempts      int                      `json:"attempts"`
	CreatedAt     time.Time                `json:"created_at"`
	LastAttemptAt *time.Time               `json:"last_attempt_at,omitempty"`
}

// NewMessage stages a PENDING message for a session event
func NewMessage(event *reconciliation.SessionEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event for session %s: %w", event.Type, event.SessionID, err)
	}

	return &Message{
		SessionID:  event.SessionID,
		AccountRef: event.AccountRef,
		EventType:  event.Type,
		Payload:    payload,
		Status:     shared.OutboxStatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// PartitionKey keeps the events of one bank account in publish order
func (m *Message) PartitionKey() string {
	if m.AccountRef != "" {
		return m.AccountRef
	}
	return m.SessionID.String()
}

// RecordFailedAttempt counts a failed publish and reports whether the retry budget is spent,
// in which case the message is parked as FAILED_TO_PUBLISH.
func (m *Message) RecordFailedAttempt(maxAttempts int) bool {
	m.Attempts++
	now := time.Now().UTC()
	m.LastAttemptAt = &now
	if m.Attempts < maxAttempts {
		return false
	}
	m.Status = shared.OutboxStatusFailedToPublish
	return true
}

// SessionEvent decodes the staged payload
func (m *Message) SessionEvent() (*reconciliation.SessionEvent, error) {
	var event reconciliation.SessionEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, fmt.Errorf("decode outbox message %d: %w", m.ID, err)
	}
	return &event, nil
}
