package txlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
)

// Decision is the audit record of an authorization action on a pending event.
// Decisions are only ever inserted.
type Decision struct {
	EventID       uuid.UUID          `json:"event_id" bson:"event_id"`
	From          shared.EventStatus `json:"from" bson:"from"`
	To            shared.EventStatus `json:"to" bson:"to"`
	Reason        string             `json:"reason,omitempty" bson:"reason,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	DecidedAt     time.Time          `json:"decided_at" bson:"decided_at"`
}

// NewDecision validates an authorization action and builds its audit record
func NewDecision(eventID uuid.UUID, to shared.EventStatus, reason string, correlationID string) (*Decision, error) {
	if !to.IsTerminal() {
		return nil, ErrInvalidDecision{Status: to}
	}
	if to == shared.EventStatusRejected && reason == "" {
		return nil, shared.ErrMissingReason
	}
	if to == shared.EventStatusApproved {
		reason = ""
	}
	return &Decision{
		EventID:       eventID,
		From:          shared.EventStatusPending,
		To:            to,
		Reason:        reason,
		CorrelationID: correlationID,
		DecidedAt:     time.Now().UTC(),
	}, nil
}
