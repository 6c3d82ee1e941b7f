package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

type MockCommandValidator struct {
	mock.Mock
}

func (m *MockCommandValidator) Validate(ctx context.Context, cmd *shared.TransactionCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *MockCommandValidator) CheckIdempotency(ctx context.Context, cmd *shared.TransactionCommand) (bool, error) {
	args := m.Called(ctx, cmd)
	return args.Bool(0), args.Error(1)
}

type MockEventWriter struct {
	mock.Mock
}

func (m *MockEventWriter) Submit(ctx context.Context, cmd *shared.TransactionCommand) (*txlog.Event, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockEventWriter) Resubmit(ctx context.Context, cmd *shared.TransactionCommand) (*txlog.Event, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockEventWriter) Decide(ctx context.Context, cmd *shared.TransactionCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, cmd *shared.TransactionCommand, failureReason string) error {
	args := m.Called(ctx, cmd, failureReason)
	return args.Error(0)
}

func TestProcessingService_ProcessCommand(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	eventID := uuid.Must(uuid.NewV7())
	original := uuid.Must(uuid.NewV7())

	submit := &shared.TransactionCommand{
		Type:          shared.CommandTypeSubmit,
		EventID:       eventID,
		AccountRef:    "SAV-001",
		Amount:        10000000,
		Direction:     shared.DirectionCredit,
		CorrelationID: "corr-1",
	}
	approve := &shared.TransactionCommand{Type: shared.CommandTypeApprove, EventID: eventID, AccountRef: "SAV-001"}
	reject := &shared.TransactionCommand{Type: shared.CommandTypeReject, EventID: eventID, AccountRef: "SAV-001", Reason: "wrong amount"}
	resubmit := &shared.TransactionCommand{Type: shared.CommandTypeResubmit, EventID: uuid.Must(uuid.NewV7()), ResubmissionOf: &original}

	infraErr := errors.New("mongo unavailable")

	tests := []struct {
		name          string
		cmd           *shared.TransactionCommand
		setup         func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder)
		expectedError bool
	}{
		{
			name: "submit appended",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(nil)
				v.On("CheckIdempotency", ctx, submit).Return(false, nil)
				w.On("Submit", ctx, submit).Return(&txlog.Event{ID: eventID}, nil)
			},
		},
		{
			name: "validation failure recorded and acknowledged",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(txlog.ErrInvalidAmount)
				f.On("RecordFailure", ctx, submit, txlog.ErrInvalidAmount.Error()).Return(nil)
			},
		},
		{
			name: "recorder failure still acknowledged",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(shared.ErrInvalidDirection)
				f.On("RecordFailure", ctx, submit, mock.Anything).Return(errors.New("dlq down"))
			},
		},
		{
			name: "idempotency check error retried",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(nil)
				v.On("CheckIdempotency", ctx, submit).Return(false, infraErr)
			},
			expectedError: true,
		},
		{
			name: "already applied skipped",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(nil)
				v.On("CheckIdempotency", ctx, submit).Return(true, nil)
			},
		},
		{
			name: "duplicate append treated as applied",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(nil)
				v.On("CheckIdempotency", ctx, submit).Return(false, nil)
				w.On("Submit", ctx, submit).Return(nil, txlog.ErrDuplicateEvent{EventID: eventID})
			},
		},
		{
			name: "append infrastructure error retried",
			cmd:  submit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, submit).Return(nil)
				v.On("CheckIdempotency", ctx, submit).Return(false, nil)
				w.On("Submit", ctx, submit).Return(nil, infraErr)
			},
			expectedError: true,
		},
		{
			name: "approve decided",
			cmd:  approve,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, approve).Return(nil)
				v.On("CheckIdempotency", ctx, approve).Return(false, nil)
				w.On("Decide", ctx, approve).Return(nil)
			},
		},
		{
			name: "reject of decided event recorded",
			cmd:  reject,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				immutable := txlog.ErrStatusImmutable{EventID: eventID, Status: shared.EventStatusApproved}
				v.On("Validate", ctx, reject).Return(nil)
				v.On("CheckIdempotency", ctx, reject).Return(false, nil)
				w.On("Decide", ctx, reject).Return(immutable)
				f.On("RecordFailure", ctx, reject, immutable.Error()).Return(nil)
			},
		},
		{
			name: "decision on unknown event recorded",
			cmd:  approve,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, approve).Return(nil)
				v.On("CheckIdempotency", ctx, approve).Return(false, nil)
				w.On("Decide", ctx, approve).Return(txlog.ErrEventNotFound{EventID: eventID})
				f.On("RecordFailure", ctx, approve, mock.Anything).Return(nil)
			},
		},
		{
			name: "resubmit of pending event recorded",
			cmd:  resubmit,
			setup: func(v *MockCommandValidator, w *MockEventWriter, f *MockFailureRecorder) {
				v.On("Validate", ctx, resubmit).Return(nil)
				v.On("CheckIdempotency", ctx, resubmit).Return(false, nil)
				w.On("Resubmit", ctx, resubmit).Return(nil, txlog.ErrResubmitUndecided)
				f.On("RecordFailure", ctx, resubmit, txlog.ErrResubmitUndecided.Error()).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &MockCommandValidator{}
			writer := &MockEventWriter{}
			recorder := &MockFailureRecorder{}
			tt.setup(validator, writer, recorder)

			svc := NewProcessingService(validator, writer, recorder, logger)
			err := svc.ProcessCommand(ctx, tt.cmd)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			validator.AssertExpectations(t)
			writer.AssertExpectations(t)
			recorder.AssertExpectations(t)
		})
	}
}

func TestIsBusinessError(t *testing.T) {
	assert.True(t, isBusinessError(txlog.ErrInvalidDecision{Status: shared.EventStatusPending}))
	assert.True(t, isBusinessError(shared.ErrMissingReason))
	assert.True(t, isBusinessError(txlog.ErrEventNotFound{EventID: uuid.New()}))
	assert.False(t, isBusinessError(context.DeadlineExceeded))
	assert.False(t, isBusinessError(errors.New("connection reset")))
}
