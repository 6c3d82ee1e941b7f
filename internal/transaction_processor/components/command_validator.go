package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
	"github.com/cooperative-ledger/internal/transaction_processor/service"
)

type CommandValidatorImpl struct {
	eventRepo txlog.Repository
	logger    *slog.Logger
}

func NewCommandValidator(eventRepo txlog.Repository, logger *slog.Logger) service.CommandValidator {
	return &CommandValidatorImpl{
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Validate checks the command payload for its type
func (v *CommandValidatorImpl) Validate(ctx context.Context, cmd *shared.TransactionCommand) error {
	logger := v.logger
	if cmd.CorrelationID != "" {
		logger = v.logger.With("correlation_id", cmd.CorrelationID)
	}

	if cmd.EventID == uuid.Nil {
		logger.Error("Command without event id", "type", cmd.Type)
		return shared.ErrMissingEventID
	}

	var err error
	switch cmd.Type {
	case shared.CommandTypeSubmit:
		err = validatePayload(cmd)
	case shared.CommandTypeResubmit:
		if cmd.ResubmissionOf == nil || *cmd.ResubmissionOf == uuid.Nil {
			err = shared.ErrMissingOriginal
		} else if cmd.Amount < 0 {
			err = txlog.ErrInvalidAmount
		} else if cmd.SlotIndex != nil && *cmd.SlotIndex < 1 {
			err = txlog.ErrInvalidSlotIndex
		}
	case shared.CommandTypeApprove:
	case shared.CommandTypeReject:
		if cmd.Reason == "" {
			err = shared.ErrMissingReason
		}
	default:
		err = shared.ErrInvalidCommandType
	}

	if err != nil {
		logger.Error("Invalid transaction command", "event_id", cmd.EventID.String(), "type", cmd.Type, "error", err)
	}
	return err
}

func validatePayload(cmd *shared.TransactionCommand) error {
	switch {
	case cmd.AccountRef == "":
		return txlog.ErrEmptyAccountRef
	case cmd.Amount < 0:
		return txlog.ErrInvalidAmount
	case !cmd.Direction.Valid():
		return shared.ErrInvalidDirection
	case cmd.SlotIndex != nil && *cmd.SlotIndex < 1:
		return txlog.ErrInvalidSlotIndex
	}
	return nil
}

// CheckIdempotency reports whether the command was already applied. Appends are matched by
// event ID and idempotency key; decisions by the event already carrying the target status.
func (v *CommandValidatorImpl) CheckIdempotency(ctx context.Context, cmd *shared.TransactionCommand) (bool, error) {
	logger := v.logger
	if cmd.CorrelationID != "" {
		logger = v.logger.With("correlation_id", cmd.CorrelationID)
	}

	existing, err := v.lookup(ctx, cmd.EventID)
	if err != nil {
		logger.Error("Failed to check transaction log for idempotency", "event_id", cmd.EventID.String(), "error", err)
		return false, fmt.Errorf("idempotency check failed for event %s: %w", cmd.EventID.String(), err)
	}

	switch cmd.Type {
	case shared.CommandTypeApprove, shared.CommandTypeReject:
		if existing != nil && existing.Status == decisionStatus(cmd.Type) {
			logger.Info("Decision already applied (idempotency)", "event_id", cmd.EventID.String(), "status", existing.Status)
			return true, nil
		}
		return false, nil
	}

	if existing != nil {
		logger.Info("Transaction event already appended (idempotency)", "event_id", cmd.EventID.String(), "status", existing.Status)
		return true, nil
	}

	if cmd.IdempotencyKey == "" {
		return false, nil
	}

	byKey, err := v.eventRepo.GetByIdempotencyKey(ctx, cmd.IdempotencyKey)
	if err != nil {
		logger.Error("Failed to check idempotency key", "event_id", cmd.EventID.String(), "error", err)
		return false, fmt.Errorf("idempotency check failed for event %s: %w", cmd.EventID.String(), err)
	}
	if byKey != nil {
		logger.Info("Idempotency key already used", "event_id", cmd.EventID.String(), "existing_event_id", byKey.ID.String())
		return true, nil
	}

	return false, nil
}

// lookup returns the event or nil when it does not exist yet
func (v *CommandValidatorImpl) lookup(ctx context.Context, id uuid.UUID) (*txlog.Event, error) {
	event, err := v.eventRepo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

func decisionStatus(t shared.CommandType) shared.EventStatus {
	if t == shared.CommandTypeApprove {
		return shared.EventStatusApproved
	}
	return shared.EventStatusRejected
}
