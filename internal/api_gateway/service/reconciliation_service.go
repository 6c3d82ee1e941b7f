package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cooperative-ledger/internal/domain/bankaccount"
	"github.com/cooperative-ledger/internal/domain/outbox"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/txlog"
	"github.com/cooperative-ledger/internal/platform/persistence"
)

// ReconciliationServiceImpl implements the ReconciliationService interface
type ReconciliationServiceImpl struct {
	db          persistence.TxExecutor
	sessionRepo reconciliation.Repository
	outboxRepo  outbox.Repository
	eventRepo   txlog.Repository
	accountRepo bankaccount.Repository
	epsilon     int64
	logger      *slog.Logger
}

// NewReconciliationService creates a new reconciliation service. epsilon is the tolerated
// |difference| on completion in minor units.
func NewReconciliationService(
	logger *slog.Logger,
	db persistence.TxExecutor,
	sessionRepo reconciliation.Repository,
	outboxRepo outbox.Repository,
	eventRepo txlog.Repository,
	accountRepo bankaccount.Repository,
	epsilon int64,
) ReconciliationService {
	return &ReconciliationServiceImpl{
		db:          db,
		sessionRepo: sessionRepo,
		outboxRepo:  outboxRepo,
		eventRepo:   eventRepo,
		accountRepo: accountRepo,
		epsilon:     epsilon,
		logger:      logger,
	}
}

// Start opens a session seeded with the previous closing balance, or the account's
// opening balance for the first reconciliation
func (s *ReconciliationServiceImpl) Start(ctx context.Context, accountRef string, statementEndDate time.Time, closingBalance int64) (*reconciliation.Session, error) {
	startingBalance, err := s.startingBalance(ctx, accountRef)
	if err != nil {
		return nil, err
	}

	session, err := reconciliation.NewSession(accountRef, statementEndDate, startingBalance, closingBalance)
	if err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		if errors.Is(err, reconciliation.ErrSessionAlreadyActive{}) {
			s.logger.Info("Reconciliation already in progress", "account_ref", accountRef)
		}
		return nil, err
	}

	s.logger.Info("Reconciliation session started",
		"session_id", session.ID.String(),
		"account_ref", accountRef,
		"starting_balance", startingBalance,
		"closing_balance", closingBalance,
	)
	return session, nil
}

func (s *ReconciliationServiceImpl) startingBalance(ctx context.Context, accountRef string) (int64, error) {
	latest, err := s.sessionRepo.GetLatestCompleted(ctx, accountRef)
	if err != nil {
		return 0, err
	}
	if latest != nil {
		return latest.ClosingBalance, nil
	}

	account, err := s.accountRepo.GetByRef(ctx, accountRef)
	if err != nil {
		return 0, err
	}
	return account.OpeningBalance, nil
}

// ToggleMatch flips a candidate in or out of the matched set
func (s *ReconciliationServiceImpl) ToggleMatch(ctx context.Context, sessionID, transactionID uuid.UUID) (*reconciliation.Session, error) {
	return s.mutate(ctx, sessionID, func(tx pgx.Tx, repo reconciliation.Repository, session *reconciliation.Session) error {
		candidates, err := s.candidates(ctx, repo, session)
		if err != nil {
			return err
		}
		candidate, err := reconciliation.FindCandidate(candidates, transactionID)
		if err != nil {
			return err
		}

		line := reconciliation.LineFromEvent(candidate.Event)
		matched, err := session.ToggleMatch(line)
		if err != nil {
			return err
		}
		if matched {
			return repo.AddMatch(ctx, sessionID, line)
		}
		return repo.RemoveMatch(ctx, sessionID, transactionID)
	})
}

// UpdateClosingBalance replaces the session's target closing balance
func (s *ReconciliationServiceImpl) UpdateClosingBalance(ctx context.Context, sessionID uuid.UUID, closingBalance int64) (*reconciliation.Session, error) {
	return s.mutate(ctx, sessionID, func(tx pgx.Tx, repo reconciliation.Repository, session *reconciliation.Session) error {
		if err := session.UpdateClosingBalance(closingBalance); err != nil {
			return err
		}
		return repo.UpdateClosingBalance(ctx, sessionID, closingBalance)
	})
}

// RemoveItems unmatches the transactions and excludes them from this session
func (s *ReconciliationServiceImpl) RemoveItems(ctx context.Context, sessionID uuid.UUID, transactionIDs []uuid.UUID) (*reconciliation.Session, error) {
	return s.mutate(ctx, sessionID, func(tx pgx.Tx, repo reconciliation.Repository, session *reconciliation.Session) error {
		if err := session.RemoveItems(transactionIDs); err != nil {
			return err
		}
		return repo.AddExclusions(ctx, sessionID, transactionIDs)
	})
}

// Complete closes a balanced session, stamps its matches as reconciled and stages the
// completion event in the outbox, all in one transaction
func (s *ReconciliationServiceImpl) Complete(ctx context.Context, sessionID uuid.UUID, correlationID string) (*reconciliation.Session, error) {
	return s.mutate(ctx, sessionID, func(tx pgx.Tx, repo reconciliation.Repository, session *reconciliation.Session) error {
		if err := s.ensureStillCandidates(ctx, repo, session); err != nil {
			return err
		}
		if err := session.Complete(s.epsilon); err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, session); err != nil {
			return err
		}
		if err := repo.MarkReconciled(ctx, session); err != nil {
			return err
		}
		return s.stageEvent(ctx, tx, session, correlationID)
	})
}

// Cancel abandons the session. The transaction events are untouched.
func (s *ReconciliationServiceImpl) Cancel(ctx context.Context, sessionID uuid.UUID, correlationID string) (*reconciliation.Session, error) {
	return s.mutate(ctx, sessionID, func(tx pgx.Tx, repo reconciliation.Repository, session *reconciliation.Session) error {
		if err := session.Cancel(); err != nil {
			return err
		}
		if err := repo.ClearLines(ctx, sessionID); err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, session); err != nil {
			return err
		}
		return s.stageEvent(ctx, tx, session, correlationID)
	})
}

// GetOverview returns the active session with its lines and all sessions of the account
func (s *ReconciliationServiceImpl) GetOverview(ctx context.Context, accountRef string) (*ReconciliationOverview, error) {
	active, err := s.sessionRepo.GetActiveByAccount(ctx, accountRef)
	if err != nil {
		return nil, err
	}
	history, err := s.sessionRepo.ListByAccount(ctx, accountRef)
	if err != nil {
		return nil, err
	}
	return &ReconciliationOverview{Active: active, History: history}, nil
}

// ListCandidates returns the session with the transactions it may match
func (s *ReconciliationServiceImpl) ListCandidates(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx, s.sessionRepo, session)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: session, Candidates: candidates}, nil
}

type sessionMutation func(tx pgx.Tx, repo reconciliation.Repository, session *reconciliation.Session) error

// mutate runs fn against the locked session. Concurrent mutations of one session queue on
// the row lock; a failed fn rolls back every write it made.
func (s *ReconciliationServiceImpl) mutate(ctx context.Context, sessionID uuid.UUID, fn sessionMutation) (*reconciliation.Session, error) {
	var result *reconciliation.Session
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := s.sessionRepo.WithTx(tx)
		session, err := repo.LockForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status.IsTerminal() {
			return reconciliation.ErrSessionNotActive{SessionID: session.ID, Status: session.Status}
		}
		if err := fn(tx, repo, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Reconciliation session updated",
		"session_id", result.ID.String(),
		"status", string(result.Status),
		"matched_balance", result.MatchedBalance(),
		"difference", result.Difference(),
	)
	return result, nil
}

func (s *ReconciliationServiceImpl) candidates(ctx context.Context, repo reconciliation.Repository, session *reconciliation.Session) ([]reconciliation.Candidate, error) {
	// Candidates trims to the end of the statement day; the extra day keeps late-in-day
	// events in the query window
	events, err := s.eventRepo.ListByAccountUntil(ctx, session.AccountRef, session.StatementEndDate.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	reconciled, err := repo.ReconciledIDs(ctx, session.AccountRef)
	if err != nil {
		return nil, err
	}
	return reconciliation.Candidates(session, events, reconciled), nil
}

// ensureStillCandidates rejects completion when a matched transaction was rejected after
// it was matched
func (s *ReconciliationServiceImpl) ensureStillCandidates(ctx context.Context, repo reconciliation.Repository, session *reconciliation.Session) error {
	if len(session.Matched) == 0 {
		return nil
	}
	candidates, err := s.candidates(ctx, repo, session)
	if err != nil {
		return err
	}
	for _, id := range session.MatchedIDs() {
		if _, err := reconciliation.FindCandidate(candidates, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReconciliationServiceImpl) stageEvent(ctx context.Context, tx pgx.Tx, session *reconciliation.Session, correlationID string) error {
	msg, err := outbox.NewMessage(reconciliation.NewSessionEvent(session, correlationID))
	if err != nil {
		return fmt.Errorf("failed to build outbox message for session %s: %w", session.ID, err)
	}
	repo := s.outboxRepo.WithTx(tx)
	err = repo.Create(ctx, msg)
	var duplicate outbox.ErrDuplicateMessage
	if !errors.As(err, &duplicate) {
		return err
	}

	existing, err := repo.GetBySessionEvent(ctx, session.ID, msg.EventType)
	if err != nil {
		return err
	}
	s.logger.Info("Session event already staged",
		"session_id", session.ID.String(),
		"event_type", string(msg.EventType),
		"outbox_id", existing.ID,
		"outbox_status", string(existing.Status),
	)
	return nil
}
