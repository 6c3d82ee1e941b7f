package reconciliation

import (
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// Candidate is a transaction the operator may match in a session
type Candidate struct {
	Event     *txlog.Event `json:"event"`
	IsMatched bool         `json:"is_matched"`
}

// Candidates filters an account's events down to what the session may match: dated on or
// before the statement end date, not rejected, not reconciled by an earlier session and
// not removed from this one.
func Candidates(s *Session, events []*txlog.Event, reconciled map[uuid.UUID]struct{}) []Candidate {
	cutoff := endOfDay(s.StatementEndDate)
	out := make([]Candidate, 0, len(events))
	for _, e := range events {
		if e.AccountRef != s.AccountRef || e.OccurredAt.After(cutoff) {
			continue
		}
		if e.Status == shared.EventStatusRejected {
			continue
		}
		if _, done := reconciled[e.ID]; done {
			continue
		}
		if s.IsExcluded(e.ID) {
			continue
		}
		out = append(out, Candidate{Event: e, IsMatched: s.IsMatched(e.ID)})
	}
	return out
}

// FindCandidate returns the candidate with the given id or ErrUnknownTransaction
func FindCandidate(candidates []Candidate, id uuid.UUID) (Candidate, error) {
	for _, c := range candidates {
		if c.Event.ID == id {
			return c, nil
		}
	}
	return Candidate{}, ErrUnknownTransaction{TransactionID: id}
}

// endOfDay returns the last instant of t's calendar day in UTC
func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
