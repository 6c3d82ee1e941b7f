package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cooperative-ledger/internal/domain/bankaccount"
	"github.com/cooperative-ledger/internal/domain/outbox"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

type reconciliationFixture struct {
	db          *fakeTxExecutor
	sessionRepo *MockSessionRepository
	outboxRepo  *MockOutboxRepository
	eventRepo   *MockEventRepository
	accountRepo *MockBankAccountRepository
	service     ReconciliationService
}

func newReconciliationFixture(epsilon int64) *reconciliationFixture {
	f := &reconciliationFixture{
		db:          &fakeTxExecutor{},
		sessionRepo: new(MockSessionRepository),
		outboxRepo:  new(MockOutboxRepository),
		eventRepo:   new(MockEventRepository),
		accountRepo: new(MockBankAccountRepository),
	}
	f.service = NewReconciliationService(testLogger(), f.db, f.sessionRepo, f.outboxRepo, f.eventRepo, f.accountRepo, epsilon)
	return f
}

var statementEnd = time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)

func activeSession(t *testing.T, starting, closing int64) *reconciliation.Session {
	t.Helper()
	s, err := reconciliation.NewSession("BANK-001", statementEnd, starting, closing)
	require.NoError(t, err)
	return s
}

func bankLine(amount int64, direction shared.Direction, status shared.EventStatus) *txlog.Event {
	return &txlog.Event{
		ID:         uuid.New(),
		AccountRef: "BANK-001",
		Amount:     amount,
		Direction:  direction,
		Source:     shared.EventSourceBankStatement,
		OccurredAt: time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC),
		Status:     status,
	}
}

// expectCandidates stubs the candidate query for a session
func (f *reconciliationFixture) expectCandidates(ctx context.Context, events []*txlog.Event) {
	f.eventRepo.On("ListByAccountUntil", ctx, "BANK-001", mock.AnythingOfType("time.Time")).Return(events, nil)
	f.sessionRepo.On("ReconciledIDs", ctx, "BANK-001").Return(map[uuid.UUID]struct{}{}, nil)
}

func TestReconciliationServiceImpl_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("SeededFromPreviousSession", func(t *testing.T) {
		f := newReconciliationFixture(0)
		previous := activeSession(t, 0, 750000)
		previous.Status = reconciliation.StatusCompleted

		f.sessionRepo.On("GetLatestCompleted", ctx, "BANK-001").Return(previous, nil).Once()
		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil).Once()

		session, err := f.service.Start(ctx, "BANK-001", statementEnd, 900000)

		require.NoError(t, err)
		assert.Equal(t, int64(750000), session.StartingBalance)
		assert.Equal(t, int64(900000), session.ClosingBalance)
		assert.Equal(t, reconciliation.StatusActive, session.Status)
		f.accountRepo.AssertNotCalled(t, "GetByRef", mock.Anything, mock.Anything)
	})

	t.Run("FirstSessionUsesOpeningBalance", func(t *testing.T) {
		f := newReconciliationFixture(0)

		f.sessionRepo.On("GetLatestCompleted", ctx, "BANK-001").Return(nil, nil).Once()
		f.accountRepo.On("GetByRef", ctx, "BANK-001").
			Return(&bankaccount.Account{AccountRef: "BANK-001", OpeningBalance: 125000, Currency: "IDR"}, nil).Once()
		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil).Once()

		session, err := f.service.Start(ctx, "BANK-001", statementEnd, 125000)

		require.NoError(t, err)
		assert.Equal(t, int64(125000), session.StartingBalance)
		assert.Zero(t, session.Difference())
	})

	t.Run("AlreadyActive", func(t *testing.T) {
		f := newReconciliationFixture(0)

		f.sessionRepo.On("GetLatestCompleted", ctx, "BANK-001").Return(nil, nil).Once()
		f.accountRepo.On("GetByRef", ctx, "BANK-001").
			Return(&bankaccount.Account{AccountRef: "BANK-001", Currency: "IDR"}, nil).Once()
		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).
			Return(reconciliation.ErrSessionAlreadyActive{AccountRef: "BANK-001"}).Once()

		session, err := f.service.Start(ctx, "BANK-001", statementEnd, 0)

		assert.Nil(t, session)
		assert.ErrorIs(t, err, reconciliation.ErrSessionAlreadyActive{})
	})

	t.Run("ConcurrentStartsForSameAccount", func(t *testing.T) {
		f := newReconciliationFixture(0)

		f.sessionRepo.On("GetLatestCompleted", ctx, "BANK-001").Return(nil, nil).Times(2)
		f.accountRepo.On("GetByRef", ctx, "BANK-001").
			Return(&bankaccount.Account{AccountRef: "BANK-001", OpeningBalance: 125000, Currency: "IDR"}, nil).Times(2)
		// The partial unique index lets exactly one insert through
		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).Return(nil).Once()
		f.sessionRepo.On("Create", ctx, mock.AnythingOfType("*reconciliation.Session")).
			Return(reconciliation.ErrSessionAlreadyActive{AccountRef: "BANK-001"}).Once()

		var wg sync.WaitGroup
		sessions := make([]*reconciliation.Session, 2)
		errs := make([]error, 2)
		for i := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sessions[i], errs[i] = f.service.Start(ctx, "BANK-001", statementEnd, 125000)
			}()
		}
		wg.Wait()

		started, rejected := 0, 0
		for i := range 2 {
			switch {
			case errs[i] == nil:
				started++
				assert.Equal(t, reconciliation.StatusActive, sessions[i].Status)
			case errors.Is(errs[i], reconciliation.ErrSessionAlreadyActive{}):
				rejected++
				assert.Nil(t, sessions[i])
			default:
				t.Errorf("unexpected error: %v", errs[i])
			}
		}
		assert.Equal(t, 1, started)
		assert.Equal(t, 1, rejected)
		f.sessionRepo.AssertNumberOfCalls(t, "Create", 2)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		f := newReconciliationFixture(0)

		f.sessionRepo.On("GetLatestCompleted", ctx, "BANK-404").Return(nil, nil).Once()
		f.accountRepo.On("GetByRef", ctx, "BANK-404").
			Return(nil, bankaccount.ErrAccountNotFound{AccountRef: "BANK-404"}).Once()

		_, err := f.service.Start(ctx, "BANK-404", statementEnd, 0)

		assert.ErrorIs(t, err, bankaccount.ErrAccountNotFound{})
		f.sessionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestReconciliationServiceImpl_ToggleMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("MatchThenUnmatch", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 100000, 150000)
		credit := bankLine(50000, shared.DirectionCredit, shared.EventStatusApproved)
		line := reconciliation.LineFromEvent(credit)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil)
		f.expectCandidates(ctx, []*txlog.Event{credit})
		f.sessionRepo.On("AddMatch", ctx, session.ID, line).Return(nil).Once()
		f.sessionRepo.On("RemoveMatch", ctx, session.ID, credit.ID).Return(nil).Once()

		updated, err := f.service.ToggleMatch(ctx, session.ID, credit.ID)
		require.NoError(t, err)
		assert.True(t, updated.IsMatched(credit.ID))
		assert.Equal(t, int64(150000), updated.MatchedBalance())
		assert.Zero(t, updated.Difference())

		updated, err = f.service.ToggleMatch(ctx, session.ID, credit.ID)
		require.NoError(t, err)
		assert.False(t, updated.IsMatched(credit.ID))
		assert.Equal(t, int64(50000), updated.Difference())

		assert.Equal(t, 2, f.db.commits)
		f.sessionRepo.AssertExpectations(t)
	})

	t.Run("RejectedEventIsNotACandidate", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 0, 0)
		rejected := bankLine(50000, shared.DirectionCredit, shared.EventStatusRejected)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
		f.expectCandidates(ctx, []*txlog.Event{rejected})

		_, err := f.service.ToggleMatch(ctx, session.ID, rejected.ID)

		assert.ErrorIs(t, err, reconciliation.ErrUnknownTransaction{TransactionID: rejected.ID})
		assert.Equal(t, 1, f.db.rollbacks)
		f.sessionRepo.AssertNotCalled(t, "AddMatch", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SessionNotActive", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 0, 0)
		require.NoError(t, session.Cancel())

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()

		_, err := f.service.ToggleMatch(ctx, session.ID, uuid.New())

		assert.ErrorIs(t, err, reconciliation.ErrSessionNotActive{})
	})

	t.Run("SessionNotFound", func(t *testing.T) {
		f := newReconciliationFixture(0)
		id := uuid.New()

		f.sessionRepo.On("LockForUpdate", ctx, id).Return(nil, reconciliation.ErrSessionNotFound{SessionID: id}).Once()

		_, err := f.service.ToggleMatch(ctx, id, uuid.New())

		assert.ErrorIs(t, err, reconciliation.ErrSessionNotFound{})
	})
}

func TestReconciliationServiceImpl_UpdateClosingBalanceAndRemoveItems(t *testing.T) {
	ctx := context.Background()
	f := newReconciliationFixture(0)
	session := activeSession(t, 100000, 150000)
	debit := bankLine(20000, shared.DirectionDebit, shared.EventStatusApproved)
	session.Matched[debit.ID] = reconciliation.LineFromEvent(debit)

	f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil)
	f.sessionRepo.On("UpdateClosingBalance", ctx, session.ID, int64(80000)).Return(nil).Once()
	f.sessionRepo.On("AddExclusions", ctx, session.ID, []uuid.UUID{debit.ID}).Return(nil).Once()

	updated, err := f.service.UpdateClosingBalance(ctx, session.ID, 80000)
	require.NoError(t, err)
	assert.Zero(t, updated.Difference())

	updated, err = f.service.RemoveItems(ctx, session.ID, []uuid.UUID{debit.ID})
	require.NoError(t, err)
	assert.False(t, updated.IsMatched(debit.ID))
	assert.True(t, updated.IsExcluded(debit.ID))
	assert.Equal(t, int64(-20000), updated.Difference())
	f.sessionRepo.AssertExpectations(t)
}

func TestReconciliationServiceImpl_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("Balanced", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 100000, 150000)
		credit := bankLine(50000, shared.DirectionCredit, shared.EventStatusApproved)
		session.Matched[credit.ID] = reconciliation.LineFromEvent(credit)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
		f.expectCandidates(ctx, []*txlog.Event{credit})
		f.sessionRepo.On("UpdateStatus", ctx, session).Return(nil).Once()
		f.sessionRepo.On("MarkReconciled", ctx, session).Return(nil).Once()
		f.outboxRepo.On("Create", ctx, mock.MatchedBy(func(m *outbox.Message) bool {
			return m.SessionID == session.ID &&
				m.AccountRef == "BANK-001" &&
				m.EventType == reconciliation.EventTypeCompleted
		})).Return(nil).Once()

		completed, err := f.service.Complete(ctx, session.ID, "corr-1")

		require.NoError(t, err)
		assert.Equal(t, reconciliation.StatusCompleted, completed.Status)
		assert.NotNil(t, completed.CompletedAt)
		f.sessionRepo.AssertExpectations(t)
		f.outboxRepo.AssertExpectations(t)
	})

	t.Run("Unbalanced", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 100000, 150000)
		credit := bankLine(30000, shared.DirectionCredit, shared.EventStatusApproved)
		session.Matched[credit.ID] = reconciliation.LineFromEvent(credit)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
		f.expectCandidates(ctx, []*txlog.Event{credit})

		_, err := f.service.Complete(ctx, session.ID, "corr-1")

		var unbalanced reconciliation.ErrUnbalanced
		require.ErrorAs(t, err, &unbalanced)
		assert.Equal(t, int64(20000), unbalanced.Difference)
		assert.Equal(t, reconciliation.StatusActive, session.Status)
		f.sessionRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
		f.outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("WithinTolerance", func(t *testing.T) {
		f := newReconciliationFixture(100)
		session := activeSession(t, 0, 50050)
		credit := bankLine(50000, shared.DirectionCredit, shared.EventStatusApproved)
		session.Matched[credit.ID] = reconciliation.LineFromEvent(credit)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
		f.expectCandidates(ctx, []*txlog.Event{credit})
		f.sessionRepo.On("UpdateStatus", ctx, session).Return(nil).Once()
		f.sessionRepo.On("MarkReconciled", ctx, session).Return(nil).Once()
		f.outboxRepo.On("Create", ctx, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()

		completed, err := f.service.Complete(ctx, session.ID, "")

		require.NoError(t, err)
		assert.Equal(t, reconciliation.StatusCompleted, completed.Status)
	})

	t.Run("DefaultToleranceBoundary", func(t *testing.T) {
		tests := []struct {
			name     string
			closing  int64
			balanced bool
		}{
			{"off by one minor unit", 150001, true},
			{"off by two minor units", 150002, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newReconciliationFixture(1)
				session := activeSession(t, 100000, tt.closing)
				credit := bankLine(50000, shared.DirectionCredit, shared.EventStatusApproved)
				session.Matched[credit.ID] = reconciliation.LineFromEvent(credit)

				f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
				f.expectCandidates(ctx, []*txlog.Event{credit})
				if tt.balanced {
					f.sessionRepo.On("UpdateStatus", ctx, session).Return(nil).Once()
					f.sessionRepo.On("MarkReconciled", ctx, session).Return(nil).Once()
					f.outboxRepo.On("Create", ctx, mock.AnythingOfType("*outbox.Message")).Return(nil).Once()
				}

				completed, err := f.service.Complete(ctx, session.ID, "")

				if tt.balanced {
					require.NoError(t, err)
					assert.Equal(t, reconciliation.StatusCompleted, completed.Status)
					return
				}
				var unbalanced reconciliation.ErrUnbalanced
				require.ErrorAs(t, err, &unbalanced)
				assert.Equal(t, int64(2), unbalanced.Difference)
				assert.Equal(t, reconciliation.StatusActive, session.Status)
				f.outboxRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("MatchedEventRejectedSinceMatching", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 0, 50000)
		credit := bankLine(50000, shared.DirectionCredit, shared.EventStatusRejected)
		session.Matched[credit.ID] = reconciliation.LineFromEvent(credit)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
		f.expectCandidates(ctx, []*txlog.Event{credit})

		_, err := f.service.Complete(ctx, session.ID, "corr-1")

		assert.ErrorIs(t, err, reconciliation.ErrUnknownTransaction{})
		assert.Equal(t, reconciliation.StatusActive, session.Status)
	})

	t.Run("DuplicateOutboxMessageIsIgnored", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 0, 0)

		f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
		f.sessionRepo.On("UpdateStatus", ctx, session).Return(nil).Once()
		f.sessionRepo.On("MarkReconciled", ctx, session).Return(nil).Once()
		f.outboxRepo.On("Create", ctx, mock.AnythingOfType("*outbox.Message")).
			Return(outbox.ErrDuplicateMessage{SessionID: session.ID}).Once()
		f.outboxRepo.On("GetBySessionEvent", ctx, session.ID, reconciliation.EventTypeCompleted).
			Return(&outbox.Message{ID: 7, SessionID: session.ID, Status: shared.OutboxStatusProcessed}, nil).Once()

		_, err := f.service.Complete(ctx, session.ID, "")

		assert.NoError(t, err)
		assert.Equal(t, 1, f.db.commits)
		f.outboxRepo.AssertExpectations(t)
	})
}

func TestReconciliationServiceImpl_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newReconciliationFixture(0)
	session := activeSession(t, 0, 50000)
	credit := bankLine(50000, shared.DirectionCredit, shared.EventStatusApproved)
	session.Matched[credit.ID] = reconciliation.LineFromEvent(credit)

	f.sessionRepo.On("LockForUpdate", ctx, session.ID).Return(session, nil).Once()
	f.sessionRepo.On("ClearLines", ctx, session.ID).Return(nil).Once()
	f.sessionRepo.On("UpdateStatus", ctx, session).Return(nil).Once()
	f.outboxRepo.On("Create", ctx, mock.MatchedBy(func(m *outbox.Message) bool {
		return m.EventType == reconciliation.EventTypeCancelled
	})).Return(nil).Once()

	cancelled, err := f.service.Cancel(ctx, session.ID, "corr-2")

	require.NoError(t, err)
	assert.Equal(t, reconciliation.StatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.Matched)
	f.sessionRepo.AssertExpectations(t)
	f.outboxRepo.AssertExpectations(t)
	f.sessionRepo.AssertNotCalled(t, "MarkReconciled", mock.Anything, mock.Anything)
}

func TestReconciliationServiceImpl_Queries(t *testing.T) {
	ctx := context.Background()

	t.Run("GetOverview", func(t *testing.T) {
		f := newReconciliationFixture(0)
		active := activeSession(t, 0, 0)
		history := []*reconciliation.Session{active}

		f.sessionRepo.On("GetActiveByAccount", ctx, "BANK-001").Return(active, nil).Once()
		f.sessionRepo.On("ListByAccount", ctx, "BANK-001").Return(history, nil).Once()

		overview, err := f.service.GetOverview(ctx, "BANK-001")

		require.NoError(t, err)
		assert.Equal(t, active, overview.Active)
		assert.Equal(t, history, overview.History)
	})

	t.Run("ListCandidates", func(t *testing.T) {
		f := newReconciliationFixture(0)
		session := activeSession(t, 0, 0)
		matched := bankLine(10000, shared.DirectionCredit, shared.EventStatusApproved)
		pending := bankLine(5000, shared.DirectionDebit, shared.EventStatusPending)
		late := bankLine(7000, shared.DirectionCredit, shared.EventStatusApproved)
		late.OccurredAt = statementEnd.AddDate(0, 0, 1).Add(time.Hour)
		session.Matched[matched.ID] = reconciliation.LineFromEvent(matched)

		f.sessionRepo.On("GetByID", ctx, session.ID).Return(session, nil).Once()
		f.expectCandidates(ctx, []*txlog.Event{matched, pending, late})

		view, err := f.service.ListCandidates(ctx, session.ID)

		require.NoError(t, err)
		require.Len(t, view.Candidates, 2)
		assert.True(t, view.Candidates[0].IsMatched)
		assert.False(t, view.Candidates[1].IsMatched)
		assert.Equal(t, pending.ID, view.Candidates[1].Event.ID)
	})
}
