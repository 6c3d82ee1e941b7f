package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

const rupiah = int64(100) // minor units per rupiah

func intPtr(v int) *int { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func singlePlan(t *testing.T, perSlot int64, total *int) plan.History {
	t.Helper()
	h, err := plan.NewHistory([]*plan.Plan{{
		ID:                    uuid.New(),
		AccountRef:            "SAV-001",
		RequiredAmountPerSlot: perSlot,
		TotalSlots:            total,
		EffectiveFrom:         date(2024, time.January, 1),
	}})
	require.NoError(t, err)
	return h
}

// upgradeAtSlot4 is Rp 50,000 for a 12 slot schedule upgraded to Rp 80,000 from slot 4,
// recovering the shortfall of slot 3.
func upgradeAtSlot4(t *testing.T) plan.History {
	t.Helper()
	retro := date(2024, time.March, 1)
	h, err := plan.NewHistory([]*plan.Plan{
		{ID: uuid.New(), AccountRef: "SAV-001", RequiredAmountPerSlot: 50000 * rupiah, TotalSlots: intPtr(12), EffectiveFrom: date(2024, time.January, 1)},
		{ID: uuid.New(), AccountRef: "SAV-001", RequiredAmountPerSlot: 80000 * rupiah, TotalSlots: intPtr(12), EffectiveFrom: date(2024, time.April, 1), RetroactiveFrom: &retro},
	})
	require.NoError(t, err)
	return h
}

type eventBuilder struct {
	seq int
}

func (b *eventBuilder) event(slot int, amount int64, status shared.EventStatus, day int) *txlog.Event {
	b.seq++
	s := slot
	return &txlog.Event{
		ID:         uuid.MustParse("018e0000-0000-7000-8000-" + twelveDigits(b.seq)),
		AccountRef: "SAV-001",
		Amount:     amount,
		Direction:  shared.DirectionCredit,
		Source:     shared.EventSourceMemberPayment,
		OccurredAt: date(2024, time.January, day),
		Status:     status,
		SlotIndex:  &s,
	}
}

func twelveDigits(n int) string {
	const digits = "0123456789"
	out := []byte("000000000000")
	for i := len(out) - 1; i >= 0 && n > 0; i-- {
		out[i] = digits[n%10]
		n /= 10
	}
	return string(out)
}

func newEngine(policy Policy) (*Projector, *Resolver) {
	projector := NewProjector(NewCompensator(policy))
	return projector, NewResolver(projector, "IDR")
}
