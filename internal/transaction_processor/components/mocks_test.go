package components

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/cooperative-ledger/internal/domain/txlog"
)

// MockEventRepo for testing
type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) Append(ctx context.Context, event *txlog.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*txlog.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockEventRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*txlog.Event, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockEventRepo) ListByAccount(ctx context.Context, accountRef string) ([]*txlog.Event, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*txlog.Event), args.Error(1)
}

func (m *MockEventRepo) ListByAccountUntil(ctx context.Context, accountRef string, until time.Time) ([]*txlog.Event, error) {
	args := m.Called(ctx, accountRef, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*txlog.Event), args.Error(1)
}

func (m *MockEventRepo) GetByAccountPaged(ctx context.Context, accountRef string, limit, offset int) ([]*txlog.Event, error) {
	args := m.Called(ctx, accountRef, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*txlog.Event), args.Error(1)
}

func (m *MockEventRepo) CountByAccount(ctx context.Context, accountRef string) (int64, error) {
	args := m.Called(ctx, accountRef)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepo) Decide(ctx context.Context, decision *txlog.Decision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}

// MockDeadLetterPublisher for testing
type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
