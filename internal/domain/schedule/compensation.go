package schedule

import (
	"fmt"

	"github.com/cooperative-ledger/internal/domain/plan"
)

// CompensationMode selects how a mid-schedule upgrade is billed
type CompensationMode string

const (
	// CompensationRetroactive recovers the old-rate shortfall over the remaining slots
	CompensationRetroactive CompensationMode = "retroactive"
	// CompensationProspective applies the new rate from the upgrade slot onwards only
	CompensationProspective CompensationMode = "prospective"
)

// Valid reports whether m is a known mode
func (m CompensationMode) Valid() bool {
	return m == CompensationRetroactive || m == CompensationProspective
}

// Policy configures the schedule engine
type Policy struct {
	Mode CompensationMode
	// RoundingUnit is the minor-unit step compensation is rounded up to
	RoundingUnit int64
	// OpenEndedSlotFloor is the slot count assumed for plans without TotalSlots
	OpenEndedSlotFloor int
}

// DefaultPolicy is retroactive compensation rounded up to 100 minor units with a 12 slot floor
func DefaultPolicy() Policy {
	return Policy{
		Mode:               CompensationRetroactive,
		RoundingUnit:       100,
		OpenEndedSlotFloor: 12,
	}
}

func (p Policy) normalized() Policy {
	if !p.Mode.Valid() {
		p.Mode = CompensationRetroactive
	}
	if p.RoundingUnit < 1 {
		p.RoundingUnit = 1
	}
	if p.OpenEndedSlotFloor < 1 {
		p.OpenEndedSlotFloor = DefaultPolicy().OpenEndedSlotFloor
	}
	return p
}

// Compensation is the expected amount for one slot
type Compensation struct {
	BaseAmount          int64 `json:"base_amount"`
	CompensationPerSlot int64 `json:"compensation_per_slot"`
	TotalExpected       int64 `json:"total_expected"`
}

// Compensator computes the upgrade compensation owed on a slot
type Compensator struct {
	policy Policy
}

// NewCompensator creates a compensator for the given policy
func NewCompensator(policy Policy) *Compensator {
	return &Compensator{policy: policy.normalized()}
}

// Policy returns the effective policy
func (c *Compensator) Policy() Policy {
	return c.policy
}

// upgrade is one plan change resolved onto slot indices
type upgrade struct {
	index       int // position in the history
	slot        int // first slot billed at the new rate
	windowStart int // first slot that retroactively counts at the new rate
	remaining   int // slots the shortfall is spread over
	shortfall   int64
}

// CompensationFor returns the base amount, the compensation and their sum for slot.
// Compensation of several upgrades accumulates.
func (c *Compensator) CompensationFor(slot int, history plan.History) (Compensation, error) {
	if err := history.Validate(); err != nil {
		return Compensation{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if slot < 1 {
		return Compensation{}, fmt.Errorf("%w: slot %d", ErrInvalidPlan, slot)
	}

	base := history.RateAt(slot)
	result := Compensation{BaseAmount: base, TotalExpected: base}
	if c.policy.Mode == CompensationProspective || len(history) < 2 {
		return result, nil
	}

	for _, up := range c.upgrades(history) {
		if slot < up.slot || up.shortfall == 0 {
			continue
		}
		if up.remaining < 1 {
			return Compensation{}, fmt.Errorf("%w: upgrade at slot %d leaves a shortfall of %d", ErrNoRemainingSlots, up.slot, up.shortfall)
		}
		if slot >= up.slot+up.remaining {
			continue
		}
		result.CompensationPerSlot += c.spread(up.shortfall, up.remaining)
	}

	result.TotalExpected = base + result.CompensationPerSlot
	return result, nil
}

// upgrades resolves every plan change after the first onto slot indices
func (c *Compensator) upgrades(history plan.History) []upgrade {
	ups := make([]upgrade, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		next := history[i]
		up := upgrade{
			index:       i,
			slot:        history.FirstSlotOnOrAfter(next.EffectiveFrom),
			windowStart: c.windowStart(history, i),
		}

		if next.IsOpenEnded() {
			up.remaining = c.policy.OpenEndedSlotFloor
		} else {
			up.remaining = *next.TotalSlots - up.slot + 1
		}

		for s := up.windowStart; s < up.slot; s++ {
			if diff := next.RequiredAmountPerSlot - c.obligationRate(history, ups, s); diff > 0 {
				up.shortfall += diff
			}
		}
		ups = append(ups, up)
	}
	return ups
}

func (c *Compensator) windowStart(history plan.History, i int) int {
	if history[i].RetroactiveFrom == nil {
		return 1
	}
	return history.FirstSlotOnOrAfter(*history[i].RetroactiveFrom)
}

// obligationRate is the rate slot s already owes after the upgrades resolved so far.
// An earlier retroactive upgrade lifts the slots in its window to its own rate.
func (c *Compensator) obligationRate(history plan.History, earlier []upgrade, s int) int64 {
	rate := history.RateAt(s)
	for _, up := range earlier {
		if s >= up.windowStart {
			if r := history[up.index].RequiredAmountPerSlot; r > rate {
				rate = r
			}
		}
	}
	return rate
}

// spread divides shortfall over n slots, rounding up to the policy rounding unit
func (c *Compensator) spread(shortfall int64, n int) int64 {
	step := c.policy.RoundingUnit * int64(n)
	units := (shortfall + step - 1) / step
	return units * c.policy.RoundingUnit
}
