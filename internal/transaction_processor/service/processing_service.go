package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

type ProcessingServiceImpl struct {
	validator       CommandValidator
	writer          EventWriter
	failureRecorder FailureRecorder
	logger          *slog.Logger
}

func NewProcessingService(
	validator CommandValidator,
	writer EventWriter,
	failureRecorder FailureRecorder,
	logger *slog.Logger,
) ProcessingService {
	return &ProcessingServiceImpl{
		validator:       validator,
		writer:          writer,
		failureRecorder: failureRecorder,
		logger:          logger,
	}
}

// ProcessCommand validates a command, skips it if already applied and otherwise writes it
// to the log. Business failures are recorded and acknowledged; only infrastructure errors
// are returned so the consumer retries the message.
func (s *ProcessingServiceImpl) ProcessCommand(ctx context.Context, cmd *shared.TransactionCommand) error {
	logger := s.logger
	if cmd.CorrelationID != "" {
		logger = s.logger.With("correlation_id", cmd.CorrelationID)
	}

	logger.Info("Processing transaction command", "event_id", cmd.EventID.String(), "type", cmd.Type, "account_ref", cmd.AccountRef)

	// 1. Validate the command
	if err := s.validator.Validate(ctx, cmd); err != nil {
		logger.Error("Transaction command validation failed", "event_id", cmd.EventID.String(), "error", err)
		s.recordFailure(ctx, logger, cmd, err)
		return nil // Acknowledge, a retry cannot fix the payload
	}

	// 2. Check idempotency
	skip, err := s.validator.CheckIdempotency(ctx, cmd)
	if err != nil {
		return err // Let Kafka retry
	}
	if skip {
		return nil
	}

	// 3. Apply to the log
	switch cmd.Type {
	case shared.CommandTypeSubmit:
		_, err = s.writer.Submit(ctx, cmd)
	case shared.CommandTypeResubmit:
		_, err = s.writer.Resubmit(ctx, cmd)
	case shared.CommandTypeApprove, shared.CommandTypeReject:
		err = s.writer.Decide(ctx, cmd)
	default:
		err = shared.ErrInvalidCommandType
	}

	if err == nil {
		logger.Info("Transaction command applied", "event_id", cmd.EventID.String(), "type", cmd.Type)
		return nil
	}

	if errors.Is(err, txlog.ErrDuplicateEvent{}) {
		logger.Info("Transaction event already appended (idempotency)", "event_id", cmd.EventID.String())
		return nil
	}

	if isBusinessError(err) {
		logger.Warn("Transaction command rejected", "event_id", cmd.EventID.String(), "type", cmd.Type, "error", err)
		s.recordFailure(ctx, logger, cmd, err)
		return nil
	}

	logger.Error("Failed to apply transaction command", "event_id", cmd.EventID.String(), "type", cmd.Type, "error", err)
	return fmt.Errorf("failed to apply %s command for event %s: %w", cmd.Type, cmd.EventID.String(), err)
}

func (s *ProcessingServiceImpl) recordFailure(ctx context.Context, logger *slog.Logger, cmd *shared.TransactionCommand, cause error) {
	if recordErr := s.failureRecorder.RecordFailure(ctx, cmd, cause.Error()); recordErr != nil {
		logger.Error("Failed to record transaction command failure", "event_id", cmd.EventID.String(), "error", recordErr)
	}
}

// isBusinessError reports whether err is a permanent rejection of the command
func isBusinessError(err error) bool {
	var invalidDecision txlog.ErrInvalidDecision
	switch {
	case errors.Is(err, txlog.ErrEventNotFound{}),
		errors.Is(err, txlog.ErrStatusImmutable{}),
		errors.Is(err, txlog.ErrResubmitUndecided),
		errors.Is(err, txlog.ErrInvalidAmount),
		errors.Is(err, txlog.ErrEmptyAccountRef),
		errors.Is(err, txlog.ErrInvalidSlotIndex),
		errors.Is(err, shared.ErrInvalidDirection),
		errors.Is(err, shared.ErrMissingReason),
		errors.Is(err, shared.ErrInvalidCommandType),
		errors.As(err, &invalidDecision):
		return true
	}
	return false
}
