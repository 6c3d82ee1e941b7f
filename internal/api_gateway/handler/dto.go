package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/api_gateway/service"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/schedule"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

var (
	errMissingAmount     = errors.New("either amount or amount_minor is required")
	errConflictingAmount = errors.New("amount and amount_minor disagree")
)

// SubmitTransactionRequest represents a member payment or bank statement line.
// Amount is a decimal string in the bookkeeping currency; AmountMinor is the same value in
// minor units. Either one may be sent.
type SubmitTransactionRequest struct {
	AccountRef     string `json:"account_ref" binding:"required"`
	Amount         string `json:"amount,omitempty"`
	AmountMinor    *int64 `json:"amount_minor,omitempty" binding:"omitempty,gte=0"`
	Direction      string `json:"direction" binding:"required,oneof=CREDIT DEBIT"`
	Source         string `json:"source,omitempty" binding:"omitempty,oneof=MEMBER_PAYMENT BANK_STATEMENT"`
	SlotIndex      *int   `json:"slot_index,omitempty" binding:"omitempty,min=1"`
	OccurredAt     string `json:"occurred_at,omitempty"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RejectTransactionRequest carries the mandatory rejection reason
type RejectTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResubmitTransactionRequest corrects a rejected event. Omitted fields are inherited, so a
// zero amount cannot be set here.
type ResubmitTransactionRequest struct {
	Amount         string `json:"amount,omitempty"`
	AmountMinor    *int64 `json:"amount_minor,omitempty" binding:"omitempty,gt=0"`
	SlotIndex      *int   `json:"slot_index,omitempty" binding:"omitempty,min=1"`
	OccurredAt     string `json:"occurred_at,omitempty"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransactionResponse represents a transaction event in API responses
type TransactionResponse struct {
	EventID         string `json:"event_id"`
	AccountRef      string `json:"account_ref"`
	Amount          string `json:"amount"`
	AmountMinor     int64  `json:"amount_minor"`
	Direction       string `json:"direction"`
	Source          string `json:"source"`
	Status          string `json:"status"`
	SlotIndex       *int   `json:"slot_index,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	ResubmissionOf  string `json:"resubmission_of,omitempty"`
	Description     string `json:"description,omitempty"`
	OccurredAt      string `json:"occurred_at"`
	CreatedAt       string `json:"created_at"`
	DecidedAt       string `json:"decided_at,omitempty"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

// ScheduleStatusQuery optionally truncates the projected range
type ScheduleStatusQuery struct {
	UpToSlot *int `form:"up_to_slot" binding:"omitempty,min=0"`
}

// SlotStatusResponse is one projected slot
type SlotStatusResponse struct {
	Slot                   int      `json:"slot"`
	Status                 string   `json:"status"`
	DueDate                string   `json:"due_date"`
	TotalPaidApproved      string   `json:"total_paid_approved"`
	TotalPaidApprovedMinor int64    `json:"total_paid_approved_minor"`
	BaseAmount             string   `json:"base_amount"`
	BaseAmountMinor        int64    `json:"base_amount_minor"`
	Compensation           string   `json:"compensation"`
	CompensationMinor      int64    `json:"compensation_minor"`
	RequiredAmount         string   `json:"required_amount"`
	RequiredAmountMinor    int64    `json:"required_amount_minor"`
	RemainingAmount        string   `json:"remaining_amount"`
	RemainingAmountMinor   int64    `json:"remaining_amount_minor"`
	IsUpgradeAdjusted      bool     `json:"is_upgrade_adjusted"`
	ContributingEvents     []string `json:"contributing_events"`
}

// NextActionResponse is the suggested next payment
type NextActionResponse struct {
	Slot                  int    `json:"slot"`
	SuggestedAmount       string `json:"suggested_amount"`
	SuggestedAmountMinor  int64  `json:"suggested_amount_minor"`
	IsPartialContinuation bool   `json:"is_partial_continuation"`
	IsUpgradeAdjusted     bool   `json:"is_upgrade_adjusted"`
	Description           string `json:"description"`
	RejectedSlots         []int  `json:"rejected_slots"`
	PendingSlots          []int  `json:"pending_slots"`
	ScheduleComplete      bool   `json:"schedule_complete"`
}

// ScheduleStatusResponse is the projected schedule of an account
type ScheduleStatusResponse struct {
	AccountRef string               `json:"account_ref"`
	Currency   string               `json:"currency"`
	Slots      []SlotStatusResponse `json:"slots"`
	NextAction NextActionResponse   `json:"next_action"`
}

// StartReconciliationRequest opens a session for a bank account
type StartReconciliationRequest struct {
	AccountRef          string `json:"account_ref" binding:"required"`
	StatementEndDate    string `json:"statement_end_date" binding:"required"`
	ClosingBalance      string `json:"closing_balance,omitempty"`
	ClosingBalanceMinor *int64 `json:"closing_balance_minor,omitempty"`
}

// ToggleMatchRequest flips one transaction in or out of the matched set
type ToggleMatchRequest struct {
	SessionID     string `json:"session_id" binding:"required,uuid"`
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
}

// UpdateClosingBalanceRequest replaces the session's target balance
type UpdateClosingBalanceRequest struct {
	SessionID           string `json:"session_id" binding:"required,uuid"`
	ClosingBalance      string `json:"closing_balance,omitempty"`
	ClosingBalanceMinor *int64 `json:"closing_balance_minor,omitempty"`
}

// RemoveItemsRequest excludes transactions from a session
type RemoveItemsRequest struct {
	SessionID      string   `json:"session_id" binding:"required,uuid"`
	TransactionIDs []string `json:"transaction_ids" binding:"required,min=1,dive,uuid"`
}

// SessionActionRequest targets a session for complete or cancel
type SessionActionRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
}

// SessionResponse represents a reconciliation session with its running balances
type SessionResponse struct {
	ID                    string   `json:"id"`
	AccountRef            string   `json:"account_ref"`
	StatementEndDate      string   `json:"statement_end_date"`
	Status                string   `json:"status"`
	StartingBalance       string   `json:"starting_balance"`
	StartingBalanceMinor  int64    `json:"starting_balance_minor"`
	ClosingBalance        string   `json:"closing_balance"`
	ClosingBalanceMinor   int64    `json:"closing_balance_minor"`
	MatchedBalance        string   `json:"matched_balance"`
	MatchedBalanceMinor   int64    `json:"matched_balance_minor"`
	Difference            string   `json:"difference"`
	DifferenceMinor       int64    `json:"difference_minor"`
	MatchedTransactionIDs []string `json:"matched_transaction_ids"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
	CompletedAt           string   `json:"completed_at,omitempty"`
	CancelledAt           string   `json:"cancelled_at,omitempty"`
}

// CandidateResponse is a transaction the operator may match
type CandidateResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	IsMatched   bool                `json:"is_matched"`
}

// SessionCandidatesResponse is a session with its candidate list
type SessionCandidatesResponse struct {
	Session    SessionResponse     `json:"session"`
	Candidates []CandidateResponse `json:"candidates"`
}

// ReconciliationOverviewResponse is an account's active session and session history
type ReconciliationOverviewResponse struct {
	Active  *SessionResponse  `json:"active"`
	History []SessionResponse `json:"history"`
}

// UnbalancedResponse accompanies a refused completion
type UnbalancedResponse struct {
	Difference      string `json:"difference"`
	DifferenceMinor int64  `json:"difference_minor"`
}

// resolveAmount reconciles the decimal and minor-unit forms of a positive amount.
// When both are sent they must agree.
func resolveAmount(decimal string, minor *int64, currency string) (int64, error) {
	if decimal == "" {
		if minor == nil {
			return 0, errMissingAmount
		}
		return *minor, nil
	}
	parsed, err := shared.ParseMinor(decimal, currency)
	if err != nil {
		return 0, err
	}
	if minor != nil && *minor != parsed {
		return 0, errConflictingAmount
	}
	return parsed, nil
}

// resolveBalance is resolveAmount for balances, which may be negative
func resolveBalance(decimal string, minor *int64, currency string) (int64, error) {
	negative := strings.HasPrefix(decimal, "-")
	if negative {
		decimal = strings.TrimPrefix(decimal, "-")
		if minor != nil {
			flipped := -*minor
			minor = &flipped
		}
	}
	v, err := resolveAmount(decimal, minor, currency)
	if err != nil {
		return 0, err
	}
	if negative {
		return -v, nil
	}
	return v, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func mapEventToResponse(e *txlog.Event, currency string) TransactionResponse {
	response := TransactionResponse{
		EventID:         e.ID.String(),
		AccountRef:      e.AccountRef,
		Amount:          shared.FormatMinor(e.Amount, currency),
		AmountMinor:     e.Amount,
		Direction:       string(e.Direction),
		Source:          string(e.Source),
		Status:          string(e.Status),
		SlotIndex:       e.SlotIndex,
		RejectionReason: e.RejectionReason,
		Description:     e.Description,
		OccurredAt:      e.OccurredAt.UTC().Format(time.RFC3339),
		CreatedAt:       e.CreatedAt.UTC().Format(time.RFC3339),
		DecidedAt:       formatTime(e.DecidedAt),
	}
	if e.ResubmissionOf != nil {
		response.ResubmissionOf = e.ResubmissionOf.String()
	}
	return response
}

func mapScheduleToResponse(status *service.ScheduleStatus) ScheduleStatusResponse {
	c := status.Currency
	slots := make([]SlotStatusResponse, 0, len(status.Slots))
	for _, s := range status.Slots {
		slots = append(slots, mapSlotToResponse(s, c))
	}

	next := status.NextAction
	return ScheduleStatusResponse{
		AccountRef: status.AccountRef,
		Currency:   c,
		Slots:      slots,
		NextAction: NextActionResponse{
			Slot:                  next.Slot,
			SuggestedAmount:       shared.FormatMinor(next.SuggestedAmount, c),
			SuggestedAmountMinor:  next.SuggestedAmount,
			IsPartialContinuation: next.IsPartialContinuation,
			IsUpgradeAdjusted:     next.IsUpgradeAdjusted,
			Description:           next.Description,
			RejectedSlots:         next.RejectedSlots,
			PendingSlots:          next.PendingSlots,
			ScheduleComplete:      next.ScheduleComplete,
		},
	}
}

func mapSlotToResponse(s schedule.SlotStatus, currency string) SlotStatusResponse {
	events := make([]string, 0, len(s.ContributingEvents))
	for _, id := range s.ContributingEvents {
		events = append(events, id.String())
	}
	return SlotStatusResponse{
		Slot:                   s.Slot,
		Status:                 string(s.Status),
		DueDate:                s.DueDate.Format(DateLayout),
		TotalPaidApproved:      shared.FormatMinor(s.TotalPaidApproved, currency),
		TotalPaidApprovedMinor: s.TotalPaidApproved,
		BaseAmount:             shared.FormatMinor(s.BaseAmount, currency),
		BaseAmountMinor:        s.BaseAmount,
		Compensation:           shared.FormatMinor(s.Compensation, currency),
		CompensationMinor:      s.Compensation,
		RequiredAmount:         shared.FormatMinor(s.RequiredAmount, currency),
		RequiredAmountMinor:    s.RequiredAmount,
		RemainingAmount:        shared.FormatMinor(s.RemainingAmount, currency),
		RemainingAmountMinor:   s.RemainingAmount,
		IsUpgradeAdjusted:      s.IsUpgradeAdjusted(),
		ContributingEvents:     events,
	}
}

func mapSessionToResponse(s *reconciliation.Session, currency string) SessionResponse {
	matched := make([]string, 0, len(s.Matched))
	for _, id := range s.MatchedIDs() {
		matched = append(matched, id.String())
	}
	return SessionResponse{
		ID:                    s.ID.String(),
		AccountRef:            s.AccountRef,
		StatementEndDate:      s.StatementEndDate.Format(DateLayout),
		Status:                string(s.Status),
		StartingBalance:       shared.FormatMinor(s.StartingBalance, currency),
		StartingBalanceMinor:  s.StartingBalance,
		ClosingBalance:        shared.FormatMinor(s.ClosingBalance, currency),
		ClosingBalanceMinor:   s.ClosingBalance,
		MatchedBalance:        shared.FormatMinor(s.MatchedBalance(), currency),
		MatchedBalanceMinor:   s.MatchedBalance(),
		Difference:            shared.FormatMinor(s.Difference(), currency),
		DifferenceMinor:       s.Difference(),
		MatchedTransactionIDs: matched,
		CreatedAt:             s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             s.UpdatedAt.UTC().Format(time.RFC3339),
		CompletedAt:           formatTime(s.CompletedAt),
		CancelledAt:           formatTime(s.CancelledAt),
	}
}
