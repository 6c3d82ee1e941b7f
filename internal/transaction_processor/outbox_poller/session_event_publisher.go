package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cooperative-ledger/internal/domain/outbox"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
)

// SessionEventPublisher relays a staged reconciliation event downstream
type SessionEventPublisher interface {
	PublishSessionEvent(ctx context.Context, message *outbox.Message) error
}

// SessionEventPublisherImpl publishes session events to Kafka and marks the outbox row
type SessionEventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewSessionEventPublisher creates a new publisher
func NewSessionEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) SessionEventPublisher {
	return &SessionEventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishSessionEvent publishes the message keyed by account, then marks it PROCESSED.
// A crash between the two republishes the event; consumers dedupe on session ID and type.
func (p *SessionEventPublisherImpl) PublishSessionEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.SessionEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal session event from outbox payload",
			"outbox_id", message.ID, "session_id", message.SessionID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.producer.Publish(ctx, message.PartitionKey(), event); err != nil {
		logger.Error("Failed to publish session event",
			"outbox_id", message.ID, "session_id", message.SessionID.String(), "type", message.EventType, "error", err,
		)
		return fmt.Errorf("failed to publish session event for outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "session_id", message.SessionID.String(), "error", err,
		)
		return fmt.Errorf("session event for %s published, but failed to mark outbox %d as PROCESSED: %w", message.SessionID.String(), message.ID, err)
	}

	logger.Info("Session event published", "outbox_id", message.ID, "session_id", message.SessionID.String(), "type", message.EventType)
	return nil
}
