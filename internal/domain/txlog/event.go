// Package txlog models the append-only log of member payments and bank-statement lines.
// An event is created PENDING and decided exactly once; corrections are new events that
// point back at the event they replace.
package txlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
)

var (
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrEmptyAccountRef   = errors.New("account reference cannot be empty")
	ErrInvalidSlotIndex  = errors.New("slot index must be at least 1")
	ErrResubmitUndecided = errors.New("only rejected events can be resubmitted")
)

// Event is one financial movement in the transaction log
type Event struct {
	ID              uuid.UUID          `json:"event_id" bson:"event_id"`
	AccountRef      string             `json:"account_ref" bson:"account_ref"`
	Amount          int64              `json:"amount" bson:"amount"` // Stored in minor units
	Direction       shared.Direction   `json:"direction" bson:"direction"`
	Source          shared.EventSource `json:"source" bson:"source"`
	OccurredAt      time.Time          `json:"occurred_at" bson:"occurred_at"`
	Status          shared.EventStatus `json:"status" bson:"status"`
	SlotIndex       *int               `json:"slot_index,omitempty" bson:"slot_index,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	ResubmissionOf  *uuid.UUID         `json:"resubmission_of,omitempty" bson:"resubmission_of,omitempty"`
	Description     string             `json:"description,omitempty" bson:"description,omitempty"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	CorrelationID   string             `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	DecidedAt       *time.Time         `json:"decided_at,omitempty" bson:"decided_at,omitempty"`
}

// NewEvent builds a PENDING event from a submit command
func NewEvent(cmd *shared.TransactionCommand) (*Event, error) {
	if cmd.AccountRef == "" {
		return nil, ErrEmptyAccountRef
	}
	if cmd.Amount < 0 {
		return nil, ErrInvalidAmount
	}
	if !cmd.Direction.Valid() {
		return nil, shared.ErrInvalidDirection
	}
	if cmd.SlotIndex != nil && *cmd.SlotIndex < 1 {
		return nil, ErrInvalidSlotIndex
	}

	source := cmd.Source
	if source == "" {
		source = shared.EventSourceMemberPayment
	}
	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = cmd.Timestamp
	}

	return &Event{
		ID:             cmd.EventID,
		AccountRef:     cmd.AccountRef,
		Amount:         cmd.Amount,
		Direction:      cmd.Direction,
		Source:         source,
		OccurredAt:     occurredAt.UTC(),
		Status:         shared.EventStatusPending,
		SlotIndex:      cmd.SlotIndex,
		ResubmissionOf: cmd.ResubmissionOf,
		Description:    cmd.Description,
		IdempotencyKey: cmd.IdempotencyKey,
		CorrelationID:  cmd.CorrelationID,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// NewResubmission creates a fresh PENDING event correcting a rejected one.
// Fields left empty on the command are inherited from the original.
func NewResubmission(original *Event, cmd *shared.TransactionCommand) (*Event, error) {
	if original.Status != shared.EventStatusRejected {
		return nil, fmt.Errorf("%w: event %s is %s", ErrResubmitUndecided, original.ID, original.Status)
	}

	merged := *cmd
	merged.AccountRef = original.AccountRef
	merged.Direction = original.Direction
	merged.Source = original.Source
	if merged.SlotIndex == nil {
		merged.SlotIndex = original.SlotIndex
	}
	if merged.Amount == 0 {
		merged.Amount = original.Amount
	}
	if merged.Description == "" {
		merged.Description = original.Description
	}
	originalID := original.ID
	merged.ResubmissionOf = &originalID

	return NewEvent(&merged)
}

// IsCredit reports whether the event adds to the account
func (e *Event) IsCredit() bool {
	return e.Direction == shared.DirectionCredit
}

// NewerThan reports whether e happened after other. Events on the same instant are
// ordered by ID, which is time-ordered for UUIDv7.
func (e *Event) NewerThan(other *Event) bool {
	if !e.OccurredAt.Equal(other.OccurredAt) {
		return e.OccurredAt.After(other.OccurredAt)
	}
	return e.ID.String() > other.ID.String()
}
