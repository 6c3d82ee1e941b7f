package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cooperative-ledger/internal/api_gateway/middleware"
	"github.com/cooperative-ledger/internal/api_gateway/service"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
)

// ReconciliationHandler handles HTTP requests for reconciliation sessions
type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	currency              string
	logger                *slog.Logger
}

func NewReconciliationHandler(logger *slog.Logger, reconciliationService service.ReconciliationService, currency string) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		currency:              currency,
		logger:                logger,
	}
}

// Start opens a session for a bank account and statement end date
func (h *ReconciliationHandler) Start(c *gin.Context) {
	var req StartReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	statementEnd, err := parseDate(req.StatementEndDate)
	if err != nil {
		RespondBadRequest(c, "Invalid statement_end_date, expected "+DateLayout)
		return
	}
	closing, err := resolveBalance(req.ClosingBalance, req.ClosingBalanceMinor, h.currency)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	session, err := h.reconciliationService.Start(c.Request.Context(), req.AccountRef, statementEnd, closing)
	if err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}

	RespondCreated(c, mapSessionToResponse(session, h.currency))
}

// ToggleMatch flips a transaction in or out of the matched set
func (h *ReconciliationHandler) ToggleMatch(c *gin.Context) {
	var req ToggleMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.reconciliationService.ToggleMatch(c.Request.Context(), uuid.MustParse(req.SessionID), uuid.MustParse(req.TransactionID))
	h.respondSession(c, session, err)
}

// UpdateClosingBalance replaces the session's target closing balance
func (h *ReconciliationHandler) UpdateClosingBalance(c *gin.Context) {
	var req UpdateClosingBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	closing, err := resolveBalance(req.ClosingBalance, req.ClosingBalanceMinor, h.currency)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	session, err := h.reconciliationService.UpdateClosingBalance(c.Request.Context(), uuid.MustParse(req.SessionID), closing)
	h.respondSession(c, session, err)
}

// RemoveItems excludes transactions from the session
func (h *ReconciliationHandler) RemoveItems(c *gin.Context) {
	var req RemoveItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	ids, err := parseUUIDs(req.TransactionIDs)
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	session, err := h.reconciliationService.RemoveItems(c.Request.Context(), uuid.MustParse(req.SessionID), ids)
	h.respondSession(c, session, err)
}

// Complete closes a balanced session. An unbalanced session answers 409 with the difference.
func (h *ReconciliationHandler) Complete(c *gin.Context) {
	var req SessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.reconciliationService.Complete(c.Request.Context(), uuid.MustParse(req.SessionID), middleware.GetCorrelationID(c))
	h.respondSession(c, session, err)
}

// Cancel abandons the session
func (h *ReconciliationHandler) Cancel(c *gin.Context) {
	var req SessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.reconciliationService.Cancel(c.Request.Context(), uuid.MustParse(req.SessionID), middleware.GetCorrelationID(c))
	h.respondSession(c, session, err)
}

// GetOverview returns the account's active session, if any, and its session history
func (h *ReconciliationHandler) GetOverview(c *gin.Context) {
	accountRef := c.Param("accountRef")

	overview, err := h.reconciliationService.GetOverview(c.Request.Context(), accountRef)
	if err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}

	response := ReconciliationOverviewResponse{History: make([]SessionResponse, 0, len(overview.History))}
	if overview.Active != nil {
		active := mapSessionToResponse(overview.Active, h.currency)
		response.Active = &active
	}
	for _, s := range overview.History {
		response.History = append(response.History, mapSessionToResponse(s, h.currency))
	}
	RespondOK(c, response)
}

// ListCandidates returns the transactions the session may match
func (h *ReconciliationHandler) ListCandidates(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid session ID")
		return
	}

	view, err := h.reconciliationService.ListCandidates(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}

	candidates := make([]CandidateResponse, 0, len(view.Candidates))
	for _, candidate := range view.Candidates {
		candidates = append(candidates, CandidateResponse{
			Transaction: mapEventToResponse(candidate.Event, h.currency),
			IsMatched:   candidate.IsMatched,
		})
	}
	RespondOK(c, SessionCandidatesResponse{
		Session:    mapSessionToResponse(view.Session, h.currency),
		Candidates: candidates,
	})
}

func (h *ReconciliationHandler) respondSession(c *gin.Context, session *reconciliation.Session, err error) {
	if err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}
	RespondOK(c, mapSessionToResponse(session, h.currency))
}
