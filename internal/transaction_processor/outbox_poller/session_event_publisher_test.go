package outbox_poller

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/shared"
)

func TestSessionEventPublisher_PublishSessionEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes keyed by account and marks processed", func(t *testing.T) {
		repo := &MockOutboxRepo{}
		producer := &MockMessagePublisher{}
		msg := newOutboxMessage(7, "SAV-001", 0)

		producer.On("Publish", ctx, "SAV-001", mock.MatchedBy(func(e *reconciliation.SessionEvent) bool {
			return e.SessionID == msg.SessionID && e.Type == reconciliation.EventTypeCompleted && e.ClosingBalance == 30000000
		})).Return(nil)
		repo.On("UpdateStatus", ctx, int64(7), shared.OutboxStatusProcessed).Return(nil)

		err := NewSessionEventPublisher(repo, producer, slog.Default()).PublishSessionEvent(ctx, msg)
		assert.NoError(t, err)
		producer.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("publish failure leaves message pending", func(t *testing.T) {
		repo := &MockOutboxRepo{}
		producer := &MockMessagePublisher{}
		msg := newOutboxMessage(8, "SAV-001", 0)
		producer.On("Publish", ctx, "SAV-001", mock.Anything).Return(errors.New("broker unavailable"))

		err := NewSessionEventPublisher(repo, producer, slog.Default()).PublishSessionEvent(ctx, msg)
		assert.ErrorContains(t, err, "failed to publish session event")
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("corrupt payload marked failed", func(t *testing.T) {
		repo := &MockOutboxRepo{}
		producer := &MockMessagePublisher{}
		msg := newOutboxMessage(9, "SAV-001", 0)
		msg.Payload = []byte("{not json")
		repo.On("UpdateStatus", ctx, int64(9), shared.OutboxStatusFailedToPublish).Return(nil)

		err := NewSessionEventPublisher(repo, producer, slog.Default()).PublishSessionEvent(ctx, msg)
		assert.ErrorContains(t, err, "unmarshal payload")
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("status update failure reported", func(t *testing.T) {
		repo := &MockOutboxRepo{}
		producer := &MockMessagePublisher{}
		msg := newOutboxMessage(10, "SAV-001", 0)
		producer.On("Publish", ctx, "SAV-001", mock.Anything).Return(nil)
		repo.On("UpdateStatus", ctx, int64(10), shared.OutboxStatusProcessed).Return(errors.New("conn lost"))

		err := NewSessionEventPublisher(repo, producer, slog.Default()).PublishSessionEvent(ctx, msg)
		assert.ErrorContains(t, err, "failed to mark outbox 10 as PROCESSED")
	})
}
