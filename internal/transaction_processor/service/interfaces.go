package service

import (
	"context"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// ProcessingService defines the interface for applying transaction commands to the log.
type ProcessingService interface {
	ProcessCommand(ctx context.Context, cmd *shared.TransactionCommand) error
}

// CommandValidator validates commands before they touch the log
type CommandValidator interface {
	Validate(ctx context.Context, cmd *shared.TransactionCommand) error
	CheckIdempotency(ctx context.Context, cmd *shared.TransactionCommand) (bool, error)
}

// EventWriter applies a validated command to the transaction log
type EventWriter interface {
	Submit(ctx context.Context, cmd *shared.TransactionCommand) (*txlog.Event, error)
	Resubmit(ctx context.Context, cmd *shared.TransactionCommand) (*txlog.Event, error)
	Decide(ctx context.Context, cmd *shared.TransactionCommand) error
}

// FailureRecorder handles recording commands that can never be applied
type FailureRecorder interface {
	RecordFailure(ctx context.Context, cmd *shared.TransactionCommand, failureReason string) error
}
