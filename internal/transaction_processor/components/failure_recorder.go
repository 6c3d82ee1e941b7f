package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
	"github.com/cooperative-ledger/internal/transaction_processor/service"
)

// FailureRecorderImpl parks rejected commands on the dead letter topic with their reason
type FailureRecorderImpl struct {
	dlq    producers.DeadLetterPublisher
	logger *slog.Logger
}

func NewFailureRecorder(dlq producers.DeadLetterPublisher, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		dlq:    dlq,
		logger: logger,
	}
}

// RecordFailure publishes the command to the DLQ. Without a DLQ the failure is only logged.
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, cmd *shared.TransactionCommand, failureReason string) error {
	logger := r.logger
	if cmd.CorrelationID != "" {
		logger = r.logger.With("correlation_id", cmd.CorrelationID)
	}

	logger.Info("Recording failed transaction command", "event_id", cmd.EventID.String(), "type", cmd.Type, "reason", failureReason)

	if r.dlq == nil {
		logger.Warn("No DLQ configured, dropping failed transaction command", "event_id", cmd.EventID.String())
		return nil
	}

	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command %s: %w", cmd.EventID.String(), err)
	}

	if err := r.dlq.PublishToDLQ(ctx, cmd.Key(), value, failureReason); err != nil {
		logger.Error("Failed to publish failed command to DLQ", "event_id", cmd.EventID.String(), "error", err)
		return err
	}
	return nil
}
