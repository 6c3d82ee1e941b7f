package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCommandType = errors.New("invalid command type")
	ErrInvalidDirection   = errors.New("invalid direction")
	ErrMissingReason      = errors.New("rejection reason is required")
	ErrMissingEventID     = errors.New("event id is required")
	ErrMissingOriginal    = errors.New("resubmission must reference the rejected event")
)

// TransactionCommand defines a Kafka message that creates or decides a transaction event.
// SUBMIT and RESUBMIT carry the full event payload; APPROVE and REJECT only need EventID.
type TransactionCommand struct {
	Type           CommandType `json:"type"`
	EventID        uuid.UUID   `json:"event_id"`
	AccountRef     string      `json:"account_ref,omitempty"`
	Amount         int64       `json:"amount,omitempty"` // Stored in minor units
	Direction      Direction   `json:"direction,omitempty"`
	Source         EventSource `json:"source,omitempty"`
	SlotIndex      *int        `json:"slot_index,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at,omitempty"`
	Description    string      `json:"description,omitempty"`
	ResubmissionOf *uuid.UUID  `json:"resubmission_of,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	CorrelationID  string      `json:"correlation_id"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Key returns the partition key for the command. Commands of one account share a key so
// submissions and decisions for that account are applied in publish order.
func (c *TransactionCommand) Key() string {
	if c.AccountRef != "" {
		return c.AccountRef
	}
	return c.EventID.String()
}

// GetCorrelationID returns the correlation ID of the request that produced the command
func (c *TransactionCommand) GetCorrelationID() string {
	return c.CorrelationID
}
