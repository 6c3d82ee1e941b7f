// Package reconciliation models a bank reconciliation: an operator matches statement lines
// against a closing balance until the difference is within tolerance.
package reconciliation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// Status defines the session lifecycle
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether no transition out of s exists
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Line is a matched transaction as it counts towards the matched balance
type Line struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	Amount        int64            `json:"amount"`
	Direction     shared.Direction `json:"direction"`
}

// LineFromEvent captures the amount and direction of a transaction event
func LineFromEvent(e *txlog.Event) Line {
	return Line{TransactionID: e.ID, Amount: e.Amount, Direction: e.Direction}
}

// Signed returns the line amount with debits negated
func (l Line) Signed() int64 {
	if l.Direction == shared.DirectionDebit {
		return -l.Amount
	}
	return l.Amount
}

// Session is one reconciliation of a bank account up to a statement end date.
// All balances are minor units.
type Session struct {
	ID               uuid.UUID              `json:"id"`
	AccountRef       string                 `json:"account_ref"`
	StatementEndDate time.Time              `json:"statement_end_date"`
	StartingBalance  int64                  `json:"starting_balance"`
	ClosingBalance   int64                  `json:"closing_balance"`
	Status           Status                 `json:"status"`
	Matched          map[uuid.UUID]Line     `json:"-"`
	Excluded         map[uuid.UUID]struct{} `json:"-"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	CancelledAt      *time.Time             `json:"cancelled_at,omitempty"`
}

// NewSession creates an active session with an empty matched set
func NewSession(accountRef string, statementEndDate time.Time, startingBalance, closingBalance int64) (*Session, error) {
	if accountRef == "" {
		return nil, ErrEmptyAccountRef
	}
	if statementEndDate.IsZero() {
		return nil, ErrMissingStatementDate
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		ID:               id,
		AccountRef:       accountRef,
		StatementEndDate: statementEndDate.UTC(),
		StartingBalance:  startingBalance,
		ClosingBalance:   closingBalance,
		Status:           StatusActive,
		Matched:          make(map[uuid.UUID]Line),
		Excluded:         make(map[uuid.UUID]struct{}),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *Session) ensureActive() error {
	if s.Status != StatusActive {
		return ErrSessionNotActive{SessionID: s.ID, Status: s.Status}
	}
	return nil
}

// IsMatched reports whether the transaction is in the matched set
func (s *Session) IsMatched(id uuid.UUID) bool {
	_, ok := s.Matched[id]
	return ok
}

// IsExcluded reports whether the transaction was removed from this session
func (s *Session) IsExcluded(id uuid.UUID) bool {
	_, ok := s.Excluded[id]
	return ok
}

// ToggleMatch flips the line's membership in the matched set and reports whether it is
// now matched.
func (s *Session) ToggleMatch(line Line) (bool, error) {
	if err := s.ensureActive(); err != nil {
		return false, err
	}
	if s.IsExcluded(line.TransactionID) {
		return false, ErrUnknownTransaction{TransactionID: line.TransactionID}
	}

	s.UpdatedAt = time.Now().UTC()
	if s.IsMatched(line.TransactionID) {
		delete(s.Matched, line.TransactionID)
		return false, nil
	}
	s.Matched[line.TransactionID] = line
	return true, nil
}

// MatchedBalance is the starting balance plus matched credits minus matched debits
func (s *Session) MatchedBalance() int64 {
	balance := s.StartingBalance
	for _, l := range s.Matched {
		balance += l.Signed()
	}
	return balance
}

// Difference is the closing balance minus the matched balance
func (s *Session) Difference() int64 {
	return s.ClosingBalance - s.MatchedBalance()
}

// IsBalanced reports whether |Difference| <= epsilon
func (s *Session) IsBalanced(epsilon int64) bool {
	d := s.Difference()
	if d < 0 {
		d = -d
	}
	return d <= epsilon
}

// UpdateClosingBalance replaces the operator-entered closing balance
func (s *Session) UpdateClosingBalance(closingBalance int64) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	s.ClosingBalance = closingBalance
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveItems unmatches the transactions and hides them from this session's candidates.
// The events themselves are untouched.
func (s *Session) RemoveItems(ids []uuid.UUID) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.Matched, id)
		s.Excluded[id] = struct{}{}
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete closes a balanced session. An unbalanced session stays active.
func (s *Session) Complete(epsilon int64) error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	if !s.IsBalanced(epsilon) {
		return ErrUnbalanced{Difference: s.Difference()}
	}
	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel abandons the session and discards its matches and exclusions
func (s *Session) Cancel() error {
	if err := s.ensureActive(); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.Status = StatusCancelled
	s.Matched = make(map[uuid.UUID]Line)
	s.Excluded = make(map[uuid.UUID]struct{})
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// MatchedIDs returns the matched transaction ids in a stable order
func (s *Session) MatchedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Matched))
	for id := range s.Matched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
