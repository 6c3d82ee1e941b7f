package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
	"github.com/cooperative-ledger/internal/transaction_processor/service"
)

// CommandHandler handles transaction commands consumed from Kafka
type CommandHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

// NewCommandHandler creates a new handler
func NewCommandHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *CommandHandler {
	return &CommandHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage decodes and processes one command. Undecodable messages go to the DLQ.
func (h *CommandHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var cmd shared.TransactionCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal transaction command from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
			} else {
				h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				return nil
			}
		}
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if cmd.CorrelationID != "" {
		logger = h.logger.With("correlation_id", cmd.CorrelationID)
	}

	logger.Info("Received transaction command",
		"event_id", cmd.EventID.String(),
		"type", cmd.Type,
		"account_ref", cmd.AccountRef,
	)

	if err := h.processingService.ProcessCommand(ctx, &cmd); err != nil {
		logger.Error("Failed to process transaction command",
			"event_id", cmd.EventID.String(),
			"type", cmd.Type,
			"error", err,
		)
		return fmt.Errorf("processing command for event %s failed: %w", cmd.EventID.String(), err)
	}

	return nil
}
