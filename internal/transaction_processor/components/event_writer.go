package components

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
	"github.com/cooperative-ledger/internal/transaction_processor/service"
)

// EventWriterImpl implements the EventWriter interface
type EventWriterImpl struct {
	eventRepo txlog.Repository
	logger    *slog.Logger
}

// NewEventWriter creates a new EventWriterImpl
func NewEventWriter(eventRepo txlog.Repository, logger *slog.Logger) service.EventWriter {
	return &EventWriterImpl{
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Submit appends a new PENDING event
func (w *EventWriterImpl) Submit(ctx context.Context, cmd *shared.TransactionCommand) (*txlog.Event, error) {
	event, err := txlog.NewEvent(cmd)
	if err != nil {
		return nil, err
	}
	return w.append(ctx, cmd, event)
}

// Resubmit appends a PENDING correction of a rejected event
func (w *EventWriterImpl) Resubmit(ctx context.Context, cmd *shared.TransactionCommand) (*txlog.Event, error) {
	original, err := w.eventRepo.GetByID(ctx, *cmd.ResubmissionOf)
	if err != nil {
		return nil, err
	}

	event, err := txlog.NewResubmission(original, cmd)
	if err != nil {
		return nil, err
	}
	return w.append(ctx, cmd, event)
}

// Decide approves or rejects a pending event
func (w *EventWriterImpl) Decide(ctx context.Context, cmd *shared.TransactionCommand) error {
	logger := w.logger
	if cmd.CorrelationID != "" {
		logger = w.logger.With("correlation_id", cmd.CorrelationID)
	}

	decision, err := txlog.NewDecision(cmd.EventID, decisionStatus(cmd.Type), cmd.Reason, cmd.CorrelationID)
	if err != nil {
		return err
	}

	if err := w.eventRepo.Decide(ctx, decision); err != nil {
		var immutable txlog.ErrStatusImmutable
		if errors.As(err, &immutable) {
			logger.Warn("Transaction event already decided", "event_id", cmd.EventID.String(), "status", immutable.Status)
		}
		return err
	}

	logger.Info("Transaction event decided", "event_id", cmd.EventID.String(), "status", decision.To)
	return nil
}

func (w *EventWriterImpl) append(ctx context.Context, cmd *shared.TransactionCommand, event *txlog.Event) (*txlog.Event, error) {
	logger := w.logger
	if cmd.CorrelationID != "" {
		logger = w.logger.With("correlation_id", cmd.CorrelationID)
	}

	if err := w.eventRepo.Append(ctx, event); err != nil {
		return nil, err
	}

	logger.Info("Transaction event appended",
		"event_id", event.ID.String(),
		"account_ref", event.AccountRef,
		"amount", event.Amount,
		"direction", event.Direction,
		"resubmission_of", event.ResubmissionOf,
	)
	return event, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, txlog.ErrEventNotFound{})
}
