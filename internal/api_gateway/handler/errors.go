package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cooperative-ledger/internal/api_gateway/middleware"
	"github.com/cooperative-ledger/internal/domain/bankaccount"
	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/reconciliation"
	"github.com/cooperative-ledger/internal/domain/schedule"
	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// respondServiceError maps domain errors to 4xx responses. Anything unrecognised is an
// infrastructure failure: it is logged and answered with 500.
func respondServiceError(c *gin.Context, logger *slog.Logger, currency string, err error) {
	var unbalanced reconciliation.ErrUnbalanced
	if errors.As(err, &unbalanced) {
		RespondWithErrorData(c, http.StatusConflict, CodeUnbalanced, err.Error(), UnbalancedResponse{
			Difference:      shared.FormatMinor(unbalanced.Difference, currency),
			DifferenceMinor: unbalanced.Difference,
		})
		return
	}

	switch {
	case errors.Is(err, reconciliation.ErrSessionNotFound{}),
		errors.Is(err, txlog.ErrEventNotFound{}),
		errors.Is(err, plan.ErrPlanNotFound{}),
		errors.Is(err, bankaccount.ErrAccountNotFound{}):
		RespondNotFound(c, err.Error())

	case errors.Is(err, reconciliation.ErrSessionAlreadyActive{}):
		RespondWithError(c, http.StatusConflict, CodeSessionActive, err.Error())
	case errors.Is(err, reconciliation.ErrSessionNotActive{}):
		RespondWithError(c, http.StatusConflict, CodeSessionNotActive, err.Error())
	case errors.Is(err, txlog.ErrStatusImmutable{}):
		RespondWithError(c, http.StatusConflict, CodeStatusImmutable, err.Error())
	case errors.Is(err, txlog.ErrResubmitUndecided):
		RespondWithError(c, http.StatusConflict, CodeResubmitUndecided, err.Error())
	case errors.Is(err, txlog.ErrDuplicateEvent{}):
		RespondConflict(c, err.Error())

	case errors.Is(err, reconciliation.ErrUnknownTransaction{}):
		RespondWithError(c, http.StatusUnprocessableEntity, CodeUnknownTransaction, err.Error())
	case errors.Is(err, schedule.ErrInvalidPlan),
		errors.Is(err, schedule.ErrInconsistentEvent),
		errors.Is(err, schedule.ErrNoRemainingSlots):
		RespondWithError(c, http.StatusUnprocessableEntity, CodeScheduleConflict, err.Error())

	case errors.Is(err, reconciliation.ErrEmptyAccountRef),
		errors.Is(err, reconciliation.ErrMissingStatementDate),
		errors.Is(err, shared.ErrMissingOriginal):
		RespondBadRequest(c, err.Error())

	default:
		logger.Error("Request failed", "path", c.FullPath(), "correlation_id", middleware.GetCorrelationID(c), "error", err)
		RespondInternalError(c)
	}
}
