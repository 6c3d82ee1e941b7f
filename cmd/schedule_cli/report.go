package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/cooperative-ledger/internal/domain/schedule"
	"github.com/cooperative-ledger/internal/domain/shared"
)

// Report is the projected schedule of one account
type Report struct {
	AccountRef string       `yaml:"account_ref"`
	Currency   string       `yaml:"currency"`
	Slots      []SlotRow    `yaml:"slots"`
	NextAction NextStepView `yaml:"next_action"`
}

type SlotRow struct {
	Slot              int    `yaml:"slot"`
	DueDate           string `yaml:"due_date"`
	Status            string `yaml:"status"`
	Required          string `yaml:"required"`
	Compensation      string `yaml:"compensation,omitempty"`
	PaidApproved      string `yaml:"paid_approved"`
	Remaining         string `yaml:"remaining"`
	ContributingCount int    `yaml:"contributing_events"`
}

type NextStepView struct {
	Slot                  int    `yaml:"slot,omitempty"`
	SuggestedAmount       string `yaml:"suggested_amount,omitempty"`
	IsPartialContinuation bool   `yaml:"is_partial_continuation"`
	IsUpgradeAdjusted     bool   `yaml:"is_upgrade_adjusted"`
	Description           string `yaml:"description,omitempty"`
	RejectedSlots         []int  `yaml:"rejected_slots,flow"`
	PendingSlots          []int  `yaml:"pending_slots,flow"`
	ScheduleComplete      bool   `yaml:"schedule_complete"`
}

// NewReport renders projected slots and the next action with display amounts
func NewReport(accountRef, currency string, slots []schedule.SlotStatus, next schedule.NextAction) Report {
	r := Report{
		AccountRef: accountRef,
		Currency:   currency,
		Slots:      make([]SlotRow, 0, len(slots)),
		NextAction: NextStepView{
			Slot:                  next.Slot,
			IsPartialContinuation: next.IsPartialContinuation,
			IsUpgradeAdjusted:     next.IsUpgradeAdjusted,
			Description:           next.Description,
			RejectedSlots:         next.RejectedSlots,
			PendingSlots:          next.PendingSlots,
			ScheduleComplete:      next.ScheduleComplete,
		},
	}
	if !next.ScheduleComplete {
		r.NextAction.SuggestedAmount = shared.Display(next.SuggestedAmount, currency)
	}

	for _, s := range slots {
		row := SlotRow{
			Slot:              s.Slot,
			DueDate:           s.DueDate.Format("2006-01-02"),
			Status:            string(s.Status),
			Required:          shared.Display(s.RequiredAmount, currency),
			PaidApproved:      shared.Display(s.TotalPaidApproved, currency),
			Remaining:         shared.Display(s.RemainingAmount, currency),
			ContributingCount: len(s.ContributingEvents),
		}
		if s.IsUpgradeAdjusted() {
			row.Compensation = shared.Display(s.Compensation, currency)
		}
		r.Slots = append(r.Slots, row)
	}
	return r
}

// WriteTable prints the report as aligned columns followed by the next action
func (r Report) WriteTable(w io.Writer) error {
	fmt.Fprintf(w, "Schedule for %s (%s)\n\n", r.AccountRef, r.Currency)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tDUE\tSTATUS\tREQUIRED\tCOMPENSATION\tPAID\tREMAINING")
	for _, row := range r.Slots {
		comp := row.Compensation
		if comp == "" {
			comp = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Slot, row.DueDate, row.Status, row.Required, comp, row.PaidApproved, row.Remaining)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	if r.NextAction.ScheduleComplete {
		_, err := fmt.Fprintln(w, "Next action: schedule complete")
		return err
	}
	_, err := fmt.Fprintf(w, "Next action: %s\n", r.NextAction.Description)
	return err
}

// WriteYAML prints the report as YAML
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
