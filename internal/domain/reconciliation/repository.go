package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines session persistence. The matched and excluded sets are stored as
// rows so concurrent operators toggling different lines never overwrite each other.
type Repository interface {
	// Create inserts an active session. Returns ErrSessionAlreadyActive when the account
	// already has one.
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// LockForUpdate loads the session with its lines and holds a row lock until the
	// surrounding transaction ends
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Session, error)
	GetActiveByAccount(ctx context.Context, accountRef string) (*Session, error)
	GetLatestCompleted(ctx context.Context, accountRef string) (*Session, error)
	ListByAccount(ctx context.Context, accountRef string) ([]*Session, error)

	AddMatch(ctx context.Context, sessionID uuid.UUID, line Line) error
	RemoveMatch(ctx context.Context, sessionID uuid.UUID, transactionID uuid.UUID) error
	AddExclusions(ctx context.Context, sessionID uuid.UUID, transactionIDs []uuid.UUID) error
	ClearLines(ctx context.Context, sessionID uuid.UUID) error

	UpdateClosingBalance(ctx context.Context, sessionID uuid.UUID, closingBalance int64) error
	UpdateStatus(ctx context.Context, session *Session) error

	// MarkReconciled stamps transactions as reconciled in the session
	MarkReconciled(ctx context.Context, session *Session) error
	ReconciledIDs(ctx context.Context, accountRef string) (map[uuid.UUID]struct{}, error)

	WithTx(tx pgx.Tx) Repository
}
