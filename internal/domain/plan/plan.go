// Package plan holds the per-slot obligation contracts a schedule is measured against.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyHistory      = errors.New("plan history is empty")
	ErrNonPositiveAmount = errors.New("required amount per slot must be positive")
	ErrInvalidTotalSlots = errors.New("total slots must be positive when set")
)

// Plan is one version of an account's installment contract. An upgrade is a new Plan with
// a later EffectiveFrom.
type Plan struct {
	ID                    uuid.UUID  `json:"id" yaml:"id"`
	AccountRef            string     `json:"account_ref" yaml:"account_ref"`
	RequiredAmountPerSlot int64      `json:"required_amount_per_slot" yaml:"required_amount_per_slot"` // Stored in minor units
	TotalSlots            *int       `json:"total_slots,omitempty" yaml:"total_slots,omitempty"`
	EffectiveFrom         time.Time  `json:"effective_from" yaml:"effective_from"`
	RetroactiveFrom       *time.Time `json:"retroactive_from,omitempty" yaml:"retroactive_from,omitempty"`
	CreatedAt             time.Time  `json:"created_at" yaml:"-"`
}

// IsOpenEnded reports whether the plan has no fixed number of slots
func (p *Plan) IsOpenEnded() bool {
	return p.TotalSlots == nil
}

// History is an account's plans ordered by EffectiveFrom
type History []*Plan

// NewHistory sorts plans by EffectiveFrom and validates them
func NewHistory(plans []*Plan) (History, error) {
	h := make(History, len(plans))
	copy(h, plans)
	sort.SliceStable(h, func(i, j int) bool {
		return h[i].EffectiveFrom.Before(h[j].EffectiveFrom)
	})
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks that the history can drive a schedule
func (h History) Validate() error {
	if len(h) == 0 {
		return ErrEmptyHistory
	}
	for i, p := range h {
		if p.RequiredAmountPerSlot <= 0 {
			return fmt.Errorf("plan %s: %w", p.ID, ErrNonPositiveAmount)
		}
		if p.TotalSlots != nil && *p.TotalSlots < 1 {
			return fmt.Errorf("plan %s: %w", p.ID, ErrInvalidTotalSlots)
		}
		if i > 0 && p.EffectiveFrom.Before(h[i-1].EffectiveFrom) {
			return fmt.Errorf("plan %s is out of order", p.ID)
		}
	}
	return nil
}

// Anchor is the nominal due date of slot 1
func (h History) Anchor() time.Time {
	return h[0].EffectiveFrom
}

// Current is the latest plan in the history
func (h History) Current() *Plan {
	return h[len(h)-1]
}

// TotalSlots returns the slot count of the current plan, nil for open-ended schedules
func (h History) TotalSlots() *int {
	return h.Current().TotalSlots
}

// ActiveAt returns the plan in effect at t. Dates before the first plan resolve to it.
func (h History) ActiveAt(t time.Time) *Plan {
	active := h[0]
	for _, p := range h[1:] {
		if p.EffectiveFrom.After(t) {
			break
		}
		active = p
	}
	return active
}

// DueDate returns the nominal due date of slot (1-based): anchor + (slot-1) months.
// Anchor days past the end of a shorter month land on that month's last day.
func (h History) DueDate(slot int) time.Time {
	anchor := h.Anchor()
	first := time.Date(anchor.Year(), anchor.Month(), 1, anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location()).
		AddDate(0, slot-1, 0)
	day := min(anchor.Day(), daysIn(first.Year(), first.Month()))
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstSlotOnOrAfter returns the first slot whose due date is not before t
func (h History) FirstSlotOnOrAfter(t time.Time) int {
	anchor := h.Anchor()
	if !t.After(anchor) {
		return 1
	}
	months := (t.Year()-anchor.Year())*12 + int(t.Month()-anchor.Month())
	slot := months + 1
	if slot < 1 {
		slot = 1
	}
	for h.DueDate(slot).Before(t) {
		slot++
	}
	for slot > 1 && !h.DueDate(slot-1).Before(t) {
		slot--
	}
	return slot
}

// RateAt returns the required amount per slot effective at the slot's due date
func (h History) RateAt(slot int) int64 {
	return h.ActiveAt(h.DueDate(slot)).RequiredAmountPerSlot
}

// Repository provides read-only access to plan master data
type Repository interface {
	GetHistory(ctx context.Context, accountRef string) (History, error)
}

// ErrPlanNotFound indicates that no plan exists for the account
type ErrPlanNotFound struct {
	AccountRef string
}

func (e ErrPlanNotFound) Error() string {
	return "no plan found for account: " + e.AccountRef
}

// Is implements the errors.Is interface for ErrPlanNotFound
func (e ErrPlanNotFound) Is(target error) bool {
	t, ok := target.(ErrPlanNotFound)
	if !ok {
		return false
	}
	if t.AccountRef == "" {
		return true
	}
	return e.AccountRef == t.AccountRef
}
