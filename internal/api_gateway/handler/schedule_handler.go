package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cooperative-ledger/internal/api_gateway/service"
)

// ScheduleHandler serves the projected installment schedule
type ScheduleHandler struct {
	scheduleService service.ScheduleService
	currency        string
	logger          *slog.Logger
}

func NewScheduleHandler(logger *slog.Logger, scheduleService service.ScheduleService, currency string) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
		currency:        currency,
		logger:          logger,
	}
}

// GetStatus returns per-slot status and the next action for an account.
// The optional up_to_slot query parameter truncates the slot list.
func (h *ScheduleHandler) GetStatus(c *gin.Context) {
	accountRef := c.Param("accountRef")

	var query ScheduleStatusQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid up_to_slot")
		return
	}

	status, err := h.scheduleService.GetScheduleStatus(c.Request.Context(), accountRef, query.UpToSlot)
	if err != nil {
		respondServiceError(c, h.logger, h.currency, err)
		return
	}

	RespondOK(c, mapScheduleToResponse(status))
}
