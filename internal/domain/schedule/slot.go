// Package schedule derives per-slot payment status, upgrade compensation and the next
// expected payment from a transaction log and an explicit plan history. Everything in
// this package is a pure function of its inputs.
package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived state of one installment slot
type Status string

const (
	StatusUnpaid        Status = "UNPAID"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPending       Status = "PENDING"
	StatusPaid          Status = "PAID"
	StatusRejected      Status = "REJECTED"
)

// SlotStatus is the derived view of slot Slot. It is never persisted.
type SlotStatus struct {
	Slot               int         `json:"slot"`
	Status             Status      `json:"status"`
	TotalPaidApproved  int64       `json:"total_paid_approved"`
	BaseAmount         int64       `json:"base_amount"`
	Compensation       int64       `json:"compensation"`
	RequiredAmount     int64       `json:"required_amount"`
	RemainingAmount    int64       `json:"remaining_amount"`
	DueDate            time.Time   `json:"due_date"`
	ContributingEvents []uuid.UUID `json:"contributing_events"`
}

// IsUpgradeAdjusted reports whether the required amount includes upgrade compensation
func (s SlotStatus) IsUpgradeAdjusted() bool {
	return s.Compensation > 0
}
