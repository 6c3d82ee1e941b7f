package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cooperative-ledger/internal/config"
	"github.com/cooperative-ledger/internal/domain/outbox"
)

// Poller relays pending reconciliation events from the outbox
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        SessionEventPublisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher SessionEventPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start relays one batch right away, then one per interval until ctx is done
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Outbox relay started",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.relayBatch(ctx); err != nil {
			p.logger.Error("Outbox relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// relayBatch publishes the oldest pending messages in order. A failure defers later
// messages with the same partition key to the next batch so consumers never see an
// account's events out of order.
func (p *Poller) relayBatch(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	blocked := make(map[string]struct{})
	relayed := 0
	for _, msg := range messages {
		logger := p.logger.With("outbox_id", msg.ID, "session_id", msg.SessionID.String())
		key := msg.PartitionKey()
		if _, ok := blocked[key]; ok {
			logger.Debug("Outbox message deferred behind a failed one", "partition_key", key)
			continue
		}

		if err := p.publisher.PublishSessionEvent(ctx, msg); err != nil {
			blocked[key] = struct{}{}
			p.recordFailure(ctx, logger, msg, err)
			continue
		}
		relayed++
		logger.Debug("Outbox message relayed", "type", string(msg.EventType))
	}

	p.logger.Info("Outbox batch relayed", "fetched", len(messages), "relayed", relayed)
	return nil
}

// recordFailure counts the attempt and parks the message once the retry budget is spent
func (p *Poller) recordFailure(ctx context.Context, logger *slog.Logger, msg *outbox.Message, cause error) {
	logger.Error("Failed to relay outbox message", "attempts", msg.Attempts, "error", cause)

	if err := p.outboxRepo.IncrementAttempts(ctx, msg.ID); err != nil {
		logger.Error("Failed to record outbox attempt", "error", err)
		return
	}
	if !msg.RecordFailedAttempt(p.maxRetryAttempts) {
		return
	}

	logger.Warn("Outbox message exceeded its retry budget", "attempts", msg.Attempts, "status", string(msg.Status))
	if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, msg.Status); err != nil {
		logger.Error("Failed to park outbox message", "error", err)
	}
}
