package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/api_gateway/middleware"
	"github.com/cooperative-ledger/internal/api_gateway/service"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// TransactionHandler handles HTTP requests for transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	currency           string
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler. Decimal amounts are read and
// written in currency.
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService, currency string) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		currency:           currency,
		logger:             logger,
	}
}

// Submit records a member payment or bank statement line as a PENDING event, with
// idempotency support
func (h *TransactionHandler) Submit(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := resolveAmount(req.Amount, req.AmountMinor, h.currency)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	if amount < 0 {
		RespondBadRequest(c, txlog.ErrInvalidAmount.Error())
		return
	}

	now := time.Now().UTC()
	occurredAt := now
	if req.OccurredAt != "" {
		if occurredAt, err = parseDate(req.OccurredAt); err != nil {
			RespondBadRequest(c, "Invalid occurred_at, expected "+DateLayout)
			return
		}
	}

	source := shared.EventSource(req.Source)
	if source == "" {
		source = shared.EventSourceMemberPayment
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		RespondInternalError(c)
		return
	}

	cmd := &shared.TransactionCommand{
		Type:           shared.CommandTypeSubmit,
		EventID:        eventID,
		AccountRef:     req.AccountRef,
		Amount:         amount,
		Direction:      shared.Direction(req.Direction),
		Source:         source,
		SlotIndex:      req.SlotIndex,
		OccurredAt:     occurredAt,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
		Timestamp:      now,
	}

	id, existing, err := h.transactionService.Submit(c.Request.Context(), cmd)
	if err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}
	if existing != nil {
		RespondOK(c, mapEventToResponse(existing, h.currency))
		return
	}

	RespondAccepted(c, gin.H{
		"event_id": id,
		"status":   string(shared.EventStatusPending),
	})
}

// Approve requests approval of a pending event
func (h *TransactionHandler) Approve(c *gin.Context) {
	h.decide(c, shared.CommandTypeApprove, "")
}

// Reject requests rejection of a pending event. A reason is mandatory.
func (h *TransactionHandler) Reject(c *gin.Context) {
	var req RejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, shared.ErrMissingReason.Error())
		return
	}
	h.decide(c, shared.CommandTypeReject, req.Reason)
}

func (h *TransactionHandler) decide(c *gin.Context, commandType shared.CommandType, reason string) {
	eventID, ok := h.parseEventID(c)
	if !ok {
		return
	}

	cmd := &shared.TransactionCommand{
		Type:          commandType,
		EventID:       eventID,
		Reason:        reason,
		CorrelationID: middleware.GetCorrelationID(c),
		Timestamp:     time.Now().UTC(),
	}
	if err := h.transactionService.Decide(c.Request.Context(), cmd); err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}

	RespondAccepted(c, gin.H{
		"event_id": eventID.String(),
		"decision": string(commandType),
	})
}

// Resubmit submits a corrected event in place of a rejected one
func (h *TransactionHandler) Resubmit(c *gin.Context) {
	originalID, ok := h.parseEventID(c)
	if !ok {
		return
	}

	var req ResubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	// Zero inherits the original amount
	var amount int64
	if req.Amount != "" || req.AmountMinor != nil {
		var err error
		if amount, err = resolveAmount(req.Amount, req.AmountMinor, h.currency); err != nil {
			RespondBadRequest(c, err.Error())
			return
		}
	}

	now := time.Now().UTC()
	var occurredAt time.Time
	if req.OccurredAt != "" {
		var err error
		if occurredAt, err = parseDate(req.OccurredAt); err != nil {
			RespondBadRequest(c, "Invalid occurred_at, expected "+DateLayout)
			return
		}
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		RespondInternalError(c)
		return
	}

	cmd := &shared.TransactionCommand{
		Type:           shared.CommandTypeResubmit,
		EventID:        eventID,
		Amount:         amount,
		SlotIndex:      req.SlotIndex,
		OccurredAt:     occurredAt,
		Description:    req.Description,
		ResubmissionOf: &originalID,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
		Timestamp:      now,
	}
	if err := h.transactionService.Resubmit(c.Request.Context(), cmd); err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}

	RespondAccepted(c, gin.H{
		"event_id":        eventID.String(),
		"resubmission_of": originalID.String(),
		"status":          string(shared.EventStatusPending),
	})
}

// GetByID retrieves an event by its ID, returns 404 if not found
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := h.parseEventID(c)
	if !ok {
		return
	}

	event, err := h.transactionService.GetTransactionByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}
	if event == nil {
		RespondNotFound(c, "Transaction not found")
		return
	}

	RespondOK(c, mapEventToResponse(event, h.currency))
}

// GetByAccount retrieves paginated transaction history for an account
func (h *TransactionHandler) GetByAccount(c *gin.Context) {
	accountRef := c.Param("accountRef")

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Error("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	events, total, err := h.transactionService.GetTransactionsByAccount(
		c.Request.Context(),
		accountRef,
		pagination.Page,
		pagination.PerPage,
	)
	if err != nil {
		h.logger.Error("Failed to get transactions", "account_ref", accountRef, "error", err)
		RespondInternalError(c)
		return
	}

	transactions := make([]TransactionResponse, 0, len(events))
	for _, event := range events {
		transactions = append(transactions, mapEventToResponse(event, h.currency))
	}

	RespondWithPaginatedData(c, http.StatusOK, transactions, pagination.Page, pagination.PerPage, int(total))
}

func (h *TransactionHandler) parseEventID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid transaction ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	return id, true
}
