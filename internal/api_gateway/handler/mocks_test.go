package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/cooperative-ledger/internal/api_gateway/service"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// PaginatedResponse is a generic version of Response for testing paginated data
type PaginatedResponse[T any] struct {
	Data          []T        `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

// TypedResponse decodes the envelope with a concrete data type
type TypedResponse[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

var testLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return serve(router, req)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func sampleEvent() *txlog.Event {
	slot := 1
	return &txlog.Event{
		ID:         uuid.New(),
		AccountRef: "SAV-001",
		Amount:     10000050,
		Direction:  shared.DirectionCredit,
		Source:     shared.EventSourceMemberPayment,
		OccurredAt: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		Status:     shared.EventStatusPending,
		SlotIndex:  &slot,
		CreatedAt:  time.Now().UTC(),
	}
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) Submit(ctx context.Context, cmd *shared.TransactionCommand) (string, *txlog.Event, error) {
	args := m.Called(ctx, cmd)
	var event *txlog.Event
	if args.Get(1) != nil {
		event = args.Get(1).(*txlog.Event)
	}
	return args.String(0), event, args.Error(2)
}

func (m *MockTransactionService) Decide(ctx context.Context, cmd *shared.TransactionCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *MockTransactionService) Resubmit(ctx context.Context, cmd *shared.TransactionCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *MockTransactionService) GetTransactionByID(ctx context.Context, eventID uuid.UUID) (*txlog.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*txlog.Event), args.Error(1)
}

func (m *MockTransactionService) GetTransactionsByAccount(ctx context.Context, accountRef string, page, perPage int) ([]*txlog.Event, int64, error) {
	args := m.Called(ctx, accountRef, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*txlog.Event), args.Get(1).(int64), args.Error(2)
}

type MockScheduleService struct {
	mock.Mock
}

func (m *MockScheduleService) GetScheduleStatus(ctx context.Context, accountRef string, upToSlot *int) (*service.ScheduleStatus, error) {
	args := m.Called(ctx, accountRef, upToSlot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ScheduleStatus), args.Error(1)
}

type MockReconciliationService struct {
	mock.Mock
}

func sessionResult(args mock.Arguments) (*reconciliation.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Session), args.Error(1)
}

func (m *MockReconciliationService) Start(ctx context.Context, accountRef string, statementEndDate time.Time, closingBalance int64) (*reconciliation.Session, error) {
	return sessionResult(m.Called(ctx, accountRef, statementEndDate, closingBalance))
}

func (m *MockReconciliationService) ToggleMatch(ctx context.Context, sessionID, transactionID uuid.UUID) (*reconciliation.Session, error) {
	return sessionResult(m.Called(ctx, sessionID, transactionID))
}

func (m *MockReconciliationService) UpdateClosingBalance(ctx context.Context, sessionID uuid.UUID, closingBalance int64) (*reconciliation.Session, error) {
	return sessionResult(m.Called(ctx, sessionID, closingBalance))
}

func (m *MockReconciliationService) RemoveItems(ctx context.Context, sessionID uuid.UUID, transactionIDs []uuid.UUID) (*reconciliation.Session, error) {
	return sessionResult(m.Called(ctx, sessionID, transactionIDs))
}

func (m *MockReconciliationService) Complete(ctx context.Context, sessionID uuid.UUID, correlationID string) (*reconciliation.Session, error) {
	return sessionResult(m.Called(ctx, sessionID, correlationID))
}

func (m *MockReconciliationService) Cancel(ctx context.Context, sessionID uuid.UUID, correlationID string) (*reconciliation.Session, error) {
	return sessionResult(m.Called(ctx, sessionID, correlationID))
}

func (m *MockReconciliationService) GetOverview(ctx context.Context, accountRef string) (*service.ReconciliationOverview, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReconciliationOverview), args.Error(1)
}

func (m *MockReconciliationService) ListCandidates(ctx context.Context, sessionID uuid.UUID) (*service.SessionView, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SessionView), args.Error(1)
}
