package schedule

import (
	"errors"
	"fmt"

	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// NextAction is the suggested next payment for a schedule
type NextAction struct {
	Slot                  int    `json:"slot"`
	SuggestedAmount       int64  `json:"suggested_amount"`
	IsPartialContinuation bool   `json:"is_partial_continuation"`
	IsUpgradeAdjusted     bool   `json:"is_upgrade_adjusted"`
	Description           string `json:"description"`
	RejectedSlots         []int  `json:"rejected_slots"`
	PendingSlots          []int  `json:"pending_slots"`
	ScheduleComplete      bool   `json:"schedule_complete"`
}

// Resolver suggests the next slot to pay and how much
type Resolver struct {
	projector *Projector
	currency  string
}

// NewResolver creates a resolver that formats descriptions in currency
func NewResolver(projector *Projector, currency string) *Resolver {
	if currency == "" {
		currency = shared.DefaultCurrency
	}
	return &Resolver{projector: projector, currency: currency}
}

// NextAction projects the schedule and resolves the next action from it
func (r *Resolver) NextAction(events []*txlog.Event, history plan.History) (NextAction, error) {
	slots, err := r.projector.ProjectSlots(events, history, nil)
	if err != nil {
		return NextAction{}, err
	}
	return r.Resolve(slots, history)
}

// Resolve derives the next action from already projected slots. Slots are filled in
// order: a Paid slot after a gap does not advance the schedule.
func (r *Resolver) Resolve(slots []SlotStatus, history plan.History) (NextAction, error) {
	action := NextAction{
		RejectedSlots: []int{},
		PendingSlots:  []int{},
	}

	lastResolved := 0
	for _, s := range slots {
		switch s.Status {
		case StatusRejected:
			action.RejectedSlots = append(action.RejectedSlots, s.Slot)
		case StatusPending:
			action.PendingSlots = append(action.PendingSlots, s.Slot)
		}
		if s.Status == StatusPaid && s.Slot == lastResolved+1 {
			lastResolved = s.Slot
		}
	}

	action.Slot = lastResolved + 1

	if total := history.TotalSlots(); total != nil && action.Slot > *total {
		// An upgrade past the end of the schedule cannot be billed on any slot
		if _, err := r.projector.compensator.CompensationFor(action.Slot, history); errors.Is(err, ErrNoRemainingSlots) {
			return NextAction{}, err
		}
		action.ScheduleComplete = true
		action.Description = "Seluruh periode setoran telah lunas"
		return action, nil
	}

	var next SlotStatus
	if action.Slot <= len(slots) {
		next = slots[action.Slot-1]
	} else {
		comp, err := r.projector.compensator.CompensationFor(action.Slot, history)
		if err != nil {
			return NextAction{}, err
		}
		next = SlotStatus{
			Slot:            action.Slot,
			Status:          StatusUnpaid,
			BaseAmount:      comp.BaseAmount,
			Compensation:    comp.CompensationPerSlot,
			RequiredAmount:  comp.TotalExpected,
			RemainingAmount: comp.TotalExpected,
		}
	}

	action.IsPartialContinuation = next.Status == StatusPartiallyPaid
	action.IsUpgradeAdjusted = next.IsUpgradeAdjusted()
	// Only a partially paid slot is topped up; any other slot is paid again in full
	action.SuggestedAmount = next.RequiredAmount
	if action.IsPartialContinuation {
		action.SuggestedAmount = next.RemainingAmount
	}
	action.Description = r.describe(action, next)
	return action, nil
}

func (r *Resolver) describe(action NextAction, slot SlotStatus) string {
	amount := shared.Display(action.SuggestedAmount, r.currency)
	var desc string
	if action.IsPartialContinuation {
		desc = fmt.Sprintf("Kekurangan setoran periode %d: %s", action.Slot, amount)
	} else {
		desc = fmt.Sprintf("Setoran periode %d: %s", action.Slot, amount)
	}
	if action.IsUpgradeAdjusted {
		desc += fmt.Sprintf(" (termasuk kompensasi upgrade %s)", shared.Display(slot.Compensation, r.currency))
	}
	return desc
}
