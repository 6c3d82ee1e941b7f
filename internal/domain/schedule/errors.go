package schedule

import "errors"

var (
	// ErrInvalidPlan is returned when the plan history cannot drive a schedule or the
	// requested range lies outside it.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrInconsistentEvent is returned when an event references a slot the schedule cannot hold.
	ErrInconsistentEvent = errors.New("inconsistent event")

	// ErrNoRemainingSlots is returned when an upgrade shortfall has no slot left to absorb it.
	ErrNoRemainingSlots = errors.New("no remaining slots to absorb upgrade compensation")
)
