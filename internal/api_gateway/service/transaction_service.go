package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	eventRepo txlog.Repository
	producer  producers.MessagePublisher
	logger    *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(logger *slog.Logger, eventRepo txlog.Repository, producer producers.MessagePublisher) TransactionService {
	return &TransactionServiceImpl{
		eventRepo: eventRepo,
		producer:  producer,
		logger:    logger,
	}
}

// Submit publishes a SUBMIT command, supporting idempotency via the idempotency key.
// Returns event ID, the existing event (if found via idempotency key), and any error
func (s *TransactionServiceImpl) Submit(ctx context.Context, cmd *shared.TransactionCommand) (string, *txlog.Event, error) {
	if cmd.IdempotencyKey != "" {
		existing, err := s.eventRepo.GetByIdempotencyKey(ctx, cmd.IdempotencyKey)
		if err != nil {
			s.logger.Error("Failed to check for existing transaction with idempotency key",
				"idempotency_key", cmd.IdempotencyKey,
				"error", err,
			)
			return "", nil, err
		}

		if existing != nil {
			s.logger.Info("Found existing transaction with idempotency key",
				"idempotency_key", cmd.IdempotencyKey,
				"event_id", existing.ID.String(),
				"status", string(existing.Status),
			)
			return existing.ID.String(), existing, nil
		}
	}

	if err := s.publish(ctx, cmd); err != nil {
		return "", nil, err
	}
	return cmd.EventID.String(), nil, nil
}

// Decide checks the event is still pending and publishes the decision keyed by its account
func (s *TransactionServiceImpl) Decide(ctx context.Context, cmd *shared.TransactionCommand) error {
	event, err := s.eventRepo.GetByID(ctx, cmd.EventID)
	if err != nil {
		return err
	}
	if event.Status.IsTerminal() {
		return txlog.ErrStatusImmutable{EventID: event.ID, Status: event.Status}
	}

	cmd.AccountRef = event.AccountRef
	return s.publish(ctx, cmd)
}

// Resubmit checks the original is rejected and publishes the correction keyed by its account
func (s *TransactionServiceImpl) Resubmit(ctx context.Context, cmd *shared.TransactionCommand) error {
	if cmd.ResubmissionOf == nil {
		return shared.ErrMissingOriginal
	}
	original, err := s.eventRepo.GetByID(ctx, *cmd.ResubmissionOf)
	if err != nil {
		return err
	}
	if original.Status != shared.EventStatusRejected {
		return txlog.ErrResubmitUndecided
	}

	cmd.AccountRef = original.AccountRef
	return s.publish(ctx, cmd)
}

func (s *TransactionServiceImpl) publish(ctx context.Context, cmd *shared.TransactionCommand) error {
	if err := s.producer.Publish(ctx, cmd.Key(), cmd); err != nil {
		s.logger.Error("Failed to publish transaction command",
			"event_id", cmd.EventID.String(),
			"type", string(cmd.Type),
			"account_ref", cmd.AccountRef,
			"error", err,
		)
		return err
	}

	s.logger.Info("Transaction command published",
		"event_id", cmd.EventID.String(),
		"type", string(cmd.Type),
		"account_ref", cmd.AccountRef,
		"amount", cmd.Amount,
	)
	return nil
}

// GetTransactionByID retrieves an event by its ID. Returns nil if not found
func (s *TransactionServiceImpl) GetTransactionByID(ctx context.Context, eventID uuid.UUID) (*txlog.Event, error) {
	res, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, txlog.ErrEventNotFound{}) {
			s.logger.Info("Transaction not found", "event_id", eventID.String())
			return nil, nil
		}
		s.logger.Error("Failed to get transaction by ID", "event_id", eventID.String(), "error", err)
		return nil, err
	}
	return res, nil
}

// GetTransactionsByAccount retrieves a paginated list of events for an account.
// Returns events, total count, and any error
func (s *TransactionServiceImpl) GetTransactionsByAccount(ctx context.Context, accountRef string, page, perPage int) ([]*txlog.Event, int64, error) {
	offset := (page - 1) * perPage

	events, err := s.eventRepo.GetByAccountPaged(ctx, accountRef, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.eventRepo.CountByAccount(ctx, accountRef)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
