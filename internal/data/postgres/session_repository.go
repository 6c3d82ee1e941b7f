package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/platform/persistence"
)

const (
	sessionColumns = `id, account_ref, statement_end_date, starting_balance, closing_balance, status, created_at, updated_at, completed_at, cancelled_at`

	// activeSessionIndex guards the one-active-session-per-account rule
	activeSessionIndex = "uq_reconciliation_sessions_active"
)

// SessionRepository implements the reconciliation.Repository interface for PostgreSQL
type SessionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSessionRepository creates a new PostgreSQL reconciliation session repository
func NewSessionRepository(logger *slog.Logger, db *persistence.PostgresDB) reconciliation.Repository {
	return &SessionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx. LockForUpdate only holds its lock inside a transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) reconciliation.Repository {
	return &SessionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *SessionRepository) Create(ctx context.Context, s *reconciliation.Session) error {
	query := `
		INSERT INTO reconciliation_sessions (id, account_ref, statement_end_date, starting_balance, closing_balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		s.ID,
		s.AccountRef,
		s.StatementEndDate,
		s.StartingBalance,
		s.ClosingBalance,
		s.Status,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, activeSessionIndex) {
			return reconciliation.ErrSessionAlreadyActive{AccountRef: s.AccountRef}
		}
		r.logger.Error("Failed to create reconciliation session",
			"session_id", s.ID.String(),
			"account_ref", s.AccountRef,
			"error", err,
		)
		return fmt.Errorf("failed to create reconciliation session: %w", err)
	}

	return nil
}

// GetByID loads the session with its matched and excluded lines
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*reconciliation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions WHERE id = $1`
	return r.getWithLines(ctx, query, id)
}

// LockForUpdate is GetByID with a row lock. Concurrent mutations of one session serialize here.
func (r *SessionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*reconciliation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions WHERE id = $1 FOR UPDATE`
	return r.getWithLines(ctx, query, id)
}

func (r *SessionRepository) getWithLines(ctx context.Context, query string, id uuid.UUID) (*reconciliation.Session, error) {
	s, err := scanSession(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconciliation.ErrSessionNotFound{SessionID: id}
		}
		r.logger.Error("Failed to get reconciliation session", "session_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get reconciliation session: %w", err)
	}

	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetActiveByAccount returns the account's active session with its lines, or nil if none
func (r *SessionRepository) GetActiveByAccount(ctx context.Context, accountRef string) (*reconciliation.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions WHERE account_ref = $1 AND status = $2`

	s, err := scanSession(r.querier.QueryRow(ctx, query, accountRef, reconciliation.StatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get active reconciliation session", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to get active reconciliation session: %w", err)
	}

	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetLatestCompleted returns the most recently completed session without its lines, or nil
func (r *SessionRepository) GetLatestCompleted(ctx context.Context, accountRef string) (*reconciliation.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM reconciliation_sessions
		WHERE account_ref = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`

	s, err := scanSession(r.querier.QueryRow(ctx, query, accountRef, reconciliation.StatusCompleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get latest completed session", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to get latest completed session: %w", err)
	}
	return s, nil
}

// ListByAccount returns the account's sessions, newest first, without their lines
func (r *SessionRepository) ListByAccount(ctx context.Context, accountRef string) ([]*reconciliation.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM reconciliation_sessions
		WHERE account_ref = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, accountRef)
	if err != nil {
		r.logger.Error("Failed to list reconciliation sessions", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to list reconciliation sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*reconciliation.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reconciliation sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) AddMatch(ctx context.Context, sessionID uuid.UUID, line reconciliation.Line) error {
	query := `
		INSERT INTO reconciliation_matches (session_id, transaction_id, amount, direction)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, transaction_id) DO NOTHING
	`
	if _, err := r.querier.Exec(ctx, query, sessionID, line.TransactionID, line.Amount, line.Direction); err != nil {
		r.logger.Error("Failed to add match",
			"session_id", sessionID.String(),
			"transaction_id", line.TransactionID.String(),
			"error", err)
		return fmt.Errorf("failed to add match: %w", err)
	}
	return nil
}

func (r *SessionRepository) RemoveMatch(ctx context.Context, sessionID uuid.UUID, transactionID uuid.UUID) error {
	query := `DELETE FROM reconciliation_matches WHERE session_id = $1 AND transaction_id = $2`
	if _, err := r.querier.Exec(ctx, query, sessionID, transactionID); err != nil {
		r.logger.Error("Failed to remove match",
			"session_id", sessionID.String(),
			"transaction_id", transactionID.String(),
			"error", err)
		return fmt.Errorf("failed to remove match: %w", err)
	}
	return nil
}

// AddExclusions unmatches each transaction and records it as removed from the session
func (r *SessionRepository) AddExclusions(ctx context.Context, sessionID uuid.UUID, transactionIDs []uuid.UUID) error {
	for _, id := range transactionIDs {
		if err := r.RemoveMatch(ctx, sessionID, id); err != nil {
			return err
		}

		query := `
			INSERT INTO reconciliation_exclusions (session_id, transaction_id)
			VALUES ($1, $2)
			ON CONFLICT (session_id, transaction_id) DO NOTHING
		`
		if _, err := r.querier.Exec(ctx, query, sessionID, id); err != nil {
			r.logger.Error("Failed to add exclusion",
				"session_id", sessionID.String(),
				"transaction_id", id.String(),
				"error", err)
			return fmt.Errorf("failed to add exclusion: %w", err)
		}
	}
	return nil
}

// ClearLines drops the session's matches and exclusions
func (r *SessionRepository) ClearLines(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := r.querier.Exec(ctx, `DELETE FROM reconciliation_matches WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}
	if _, err := r.querier.Exec(ctx, `DELETE FROM reconciliation_exclusions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear exclusions: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateClosingBalance(ctx context.Context, sessionID uuid.UUID, closingBalance int64) error {
	query := `
		UPDATE reconciliation_sessions
		SET closing_balance = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.querier.Exec(ctx, query, closingBalance, time.Now().UTC(), sessionID, reconciliation.StatusActive)
	if err != nil {
		r.logger.Error("Failed to update closing balance", "session_id", sessionID.String(), "error", err)
		return fmt.Errorf("failed to update closing balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reconciliation.ErrSessionNotFound{SessionID: sessionID}
	}
	return nil
}

// UpdateStatus persists a transition out of ACTIVE. The status guard makes a second
// transition of the same session fail with ErrSessionNotActive.
func (r *SessionRepository) UpdateStatus(ctx context.Context, s *reconciliation.Session) error {
	query := `
		UPDATE reconciliation_sessions
		SET status = $1, updated_at = $2, completed_at = $3, cancelled_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.querier.Exec(ctx, query,
		s.Status,
		s.UpdatedAt,
		s.CompletedAt,
		s.CancelledAt,
		s.ID,
		reconciliation.StatusActive,
	)
	if err != nil {
		r.logger.Error("Failed to update session status",
			"session_id", s.ID.String(),
			"status", string(s.Status),
			"error", err)
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reconciliation.ErrSessionNotActive{SessionID: s.ID, Status: s.Status}
	}
	return nil
}

// MarkReconciled stamps every matched transaction with the session that reconciled it
func (r *SessionRepository) MarkReconciled(ctx context.Context, s *reconciliation.Session) error {
	query := `
		INSERT INTO reconciled_transactions (transaction_id, session_id, account_ref, reconciled_at)
		VALUES ($1, $2, $3, $4)
	`
	reconciledAt := time.Now().UTC()
	if s.CompletedAt != nil {
		reconciledAt = *s.CompletedAt
	}

	for _, id := range s.MatchedIDs() {
		if _, err := r.querier.Exec(ctx, query, id, s.ID, s.AccountRef, reconciledAt); err != nil {
			if persistence.IsUniqueViolation(err, "") {
				return fmt.Errorf("transaction %s is already reconciled: %w", id, err)
			}
			r.logger.Error("Failed to mark transaction reconciled",
				"session_id", s.ID.String(),
				"transaction_id", id.String(),
				"error", err)
			return fmt.Errorf("failed to mark transaction reconciled: %w", err)
		}
	}
	return nil
}

// ReconciledIDs returns the transactions of the account stamped by completed sessions
func (r *SessionRepository) ReconciledIDs(ctx context.Context, accountRef string) (map[uuid.UUID]struct{}, error) {
	rows, err := r.querier.Query(ctx, `SELECT transaction_id FROM reconciled_transactions WHERE account_ref = $1`, accountRef)
	if err != nil {
		r.logger.Error("Failed to get reconciled transactions", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to get reconciled transactions: %w", err)
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reconciled transaction: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over reconciled transactions: %w", err)
	}
	return ids, nil
}

func (r *SessionRepository) loadLines(ctx context.Context, s *reconciliation.Session) error {
	rows, err := r.querier.Query(ctx,
		`SELECT transaction_id, amount, direction FROM reconciliation_matches WHERE session_id = $1`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load matches: %w", err)
	}
	for rows.Next() {
		var line reconciliation.Line
		if err := rows.Scan(&line.TransactionID, &line.Amount, &line.Direction); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan match: %w", err)
		}
		s.Matched[line.TransactionID] = line
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over matches: %w", err)
	}

	rows, err = r.querier.Query(ctx,
		`SELECT transaction_id FROM reconciliation_exclusions WHERE session_id = $1`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load exclusions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan exclusion: %w", err)
		}
		s.Excluded[id] = struct{}{}
	}
	return rows.Err()
}

func scanSession(row pgx.Row) (*reconciliation.Session, error) {
	s := reconciliation.Session{
		Matched:  make(map[uuid.UUID]reconciliation.Line),
		Excluded: make(map[uuid.UUID]struct{}),
	}
	if err := row.Scan(
		&s.ID,
		&s.AccountRef,
		&s.StatementEndDate,
		&s.StartingBalance,
		&s.ClosingBalance,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
		&s.CancelledAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
