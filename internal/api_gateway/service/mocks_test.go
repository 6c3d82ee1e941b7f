package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/cooperative-ledger/internal/domain/bankaccount"
	"github.com/cooperative-ledger/internal/domain/outbox"
	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Append(ctx context.Context, event *txlog.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*txlog.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockEventRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*txlog.Event, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockEventRepository) ListByAccount(ctx context.Context, accountRef string) ([]*txlog.Event, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*txlog.Event), args.Error(1)
}

func (m *MockEventRepository) ListByAccountUntil(ctx context.Context, accountRef string, until time.Time) ([]*txlog.Event, error) {
	args := m.Called(ctx, accountRef, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*txlog.Event), args.Error(1)
}

func (m *MockEventRepository) GetByAccountPaged(ctx context.Context, accountRef string, limit, offset int) ([]*txlog.Event, error) {
	args := m.Called(ctx, accountRef, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*txlog.Event), args.Error(1)
}

func (m *MockEventRepository) CountByAccount(ctx context.Context, accountRef string) (int64, error) {
	args := m.Called(ctx, accountRef)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepository) Decide(ctx context.Context, decision *txlog.Decision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}

type MockMessagingProducer struct {
	mock.Mock
}

func (m *MockMessagingProducer) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagingProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) GetHistory(ctx context.Context, accountRef string) (plan.History, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(plan.History), args.Error(1)
}

type MockBankAccountRepository struct {
	mock.Mock
}

func (m *MockBankAccountRepository) GetByRef(ctx context.Context, accountRef string) (*bankaccount.Account, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bankaccount.Account), args.Error(1)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *reconciliation.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) getSession(args mock.Arguments) (*reconciliation.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Session), args.Error(1)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*reconciliation.Session, error) {
	return m.getSession(m.Called(ctx, id))
}

func (m *MockSessionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*reconciliation.Session, error) {
	return m.getSession(m.Called(ctx, id))
}

func (m *MockSessionRepository) GetActiveByAccount(ctx context.Context, accountRef string) (*reconciliation.Session, error) {
	return m.getSession(m.Called(ctx, accountRef))
}

func (m *MockSessionRepository) GetLatestCompleted(ctx context.Context, accountRef string) (*reconciliation.Session, error) {
	return m.getSession(m.Called(ctx, accountRef))
}

func (m *MockSessionRepository) ListByAccount(ctx context.Context, accountRef string) ([]*reconciliation.Session, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reconciliation.Session), args.Error(1)
}

func (m *MockSessionRepository) AddMatch(ctx context.Context, sessionID uuid.UUID, line reconciliation.Line) error {
	args := m.Called(ctx, sessionID, line)
	return args.Error(0)
}

func (m *MockSessionRepository) RemoveMatch(ctx context.Context, sessionID uuid.UUID, transactionID uuid.UUID) error {
	args := m.Called(ctx, sessionID, transactionID)
	return args.Error(0)
}

func (m *MockSessionRepository) AddExclusions(ctx context.Context, sessionID uuid.UUID, transactionIDs []uuid.UUID) error {
	args := m.Called(ctx, sessionID, transactionIDs)
	return args.Error(0)
}

func (m *MockSessionRepository) ClearLines(ctx context.Context, sessionID uuid.UUID) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockSessionRepository) UpdateClosingBalance(ctx context.Context, sessionID uuid.UUID, closingBalance int64) error {
	args := m.Called(ctx, sessionID, closingBalance)
	return args.Error(0)
}

func (m *MockSessionRepository) UpdateStatus(ctx context.Context, session *reconciliation.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) MarkReconciled(ctx context.Context, session *reconciliation.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) ReconciledIDs(ctx context.Context, accountRef string) (map[uuid.UUID]struct{}, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]struct{}), args.Error(1)
}

func (m *MockSessionRepository) WithTx(tx pgx.Tx) reconciliation.Repository {
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetBySessionEvent(ctx context.Context, sessionID uuid.UUID, eventType reconciliation.EventType) (*outbox.Message, error) {
	args := m.Called(ctx, sessionID, eventType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}

// fakeTxExecutor runs fn without a database and counts commits and rollbacks
type fakeTxExecutor struct {
	commits   int
	rollbacks int
}

func (f *fakeTxExecutor) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}
