package schedule

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// Projector turns a transaction log into per-slot status. It is safe for concurrent use.
type Projector struct {
	compensator *Compensator
}

// NewProjector creates a projector that prices slots with the given compensator
func NewProjector(compensator *Compensator) *Projector {
	return &Projector{compensator: compensator}
}

// ProjectSlots derives the status of slots 1..upToSlot. A nil upToSlot projects the whole
// schedule; for open-ended plans that is one slot past the highest paid-into slot, but at
// least the configured floor.
//
// Events without a slot index (bank lines) are ignored.
func (p *Projector) ProjectSlots(events []*txlog.Event, history plan.History, upToSlot *int) ([]SlotStatus, error) {
	if err := history.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	total := history.TotalSlots()

	bySlot, maxSlot, err := groupBySlot(events, total)
	if err != nil {
		return nil, err
	}

	n, err := p.slotCount(total, maxSlot, upToSlot)
	if err != nil {
		return nil, err
	}

	slots := make([]SlotStatus, 0, n)
	for s := 1; s <= n; s++ {
		comp, err := p.compensator.CompensationFor(s, history)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", s, err)
		}
		slots = append(slots, projectSlot(s, bySlot[s], comp, history))
	}
	return slots, nil
}

func (p *Projector) slotCount(total *int, maxSlot int, upToSlot *int) (int, error) {
	if upToSlot != nil {
		if *upToSlot < 0 {
			return 0, fmt.Errorf("%w: negative slot range %d", ErrInvalidPlan, *upToSlot)
		}
		if total != nil && *upToSlot > *total {
			return 0, fmt.Errorf("%w: slot %d exceeds total slots %d", ErrInvalidPlan, *upToSlot, *total)
		}
		return *upToSlot, nil
	}
	if total != nil {
		return *total, nil
	}
	n := maxSlot + 1
	if floor := p.compensator.Policy().OpenEndedSlotFloor; n < floor {
		n = floor
	}
	return n, nil
}

func groupBySlot(events []*txlog.Event, total *int) (map[int][]*txlog.Event, int, error) {
	bySlot := make(map[int][]*txlog.Event)
	maxSlot := 0
	for _, e := range events {
		if e.SlotIndex == nil {
			continue
		}
		s := *e.SlotIndex
		if s < 1 {
			return nil, 0, fmt.Errorf("%w: event %s references slot %d", ErrInconsistentEvent, e.ID, s)
		}
		if total != nil && s > *total {
			return nil, 0, fmt.Errorf("%w: event %s references slot %d beyond total slots %d", ErrInconsistentEvent, e.ID, s, *total)
		}
		if e.Direction != shared.DirectionCredit {
			return nil, 0, fmt.Errorf("%w: event %s is a %s against slot %d", ErrInconsistentEvent, e.ID, e.Direction, s)
		}
		bySlot[s] = append(bySlot[s], e)
		if s > maxSlot {
			maxSlot = s
		}
	}
	return bySlot, maxSlot, nil
}

func projectSlot(s int, events []*txlog.Event, comp Compensation, history plan.History) SlotStatus {
	status := SlotStatus{
		Slot:               s,
		Status:             StatusUnpaid,
		BaseAmount:         comp.BaseAmount,
		Compensation:       comp.CompensationPerSlot,
		RequiredAmount:     comp.TotalExpected,
		DueDate:            history.DueDate(s),
		ContributingEvents: make([]uuid.UUID, 0, len(events)),
	}

	var latest *txlog.Event
	for _, e := range events {
		status.ContributingEvents = append(status.ContributingEvents, e.ID)
		if e.Status == shared.EventStatusApproved {
			status.TotalPaidApproved += e.Amount
		}
		if latest == nil || e.NewerThan(latest) {
			latest = e
		}
	}

	status.RemainingAmount = status.RequiredAmount - status.TotalPaidApproved
	if status.RemainingAmount < 0 {
		status.RemainingAmount = 0
	}

	if latest == nil {
		return status
	}
	status.Status = latestWins(latest.Status, status.TotalPaidApproved, status.RequiredAmount)
	return status
}

// latestWins derives the slot status. The most recent attempt decides the label:
// a rejected or pending latest attempt masks earlier approved credit in the status,
// while TotalPaidApproved keeps counting it.
func latestWins(latest shared.EventStatus, totalPaidApproved, required int64) Status {
	switch {
	case latest == shared.EventStatusRejected:
		return StatusRejected
	case latest == shared.EventStatusPending:
		return StatusPending
	case totalPaidApproved >= required:
		return StatusPaid
	case totalPaidApproved > 0:
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}
