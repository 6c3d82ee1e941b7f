package api_gateway

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cooperative-ledger/internal/api_gateway/handler"
	"github.com/cooperative-ledger/internal/api_gateway/middleware"
)

type routeHandlers struct {
	schedule       *handler.ScheduleHandler
	reconciliation *handler.ReconciliationHandler
	transactions   *handler.TransactionHandler
	health         gin.HandlerFunc
}

// setupRouter installs the middleware chain and every route of the gateway
func setupRouter(logger *slog.Logger, r *gin.Engine, h routeHandlers) {
	r.Use(
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.CorrelationID(),
	)

	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	v1.GET("/schedule-status/:accountRef", h.schedule.GetStatus)

	rec := v1.Group("/reconciliation")
	{
		rec.POST("/start", h.reconciliation.Start)
		rec.POST("/toggle-match", h.reconciliation.ToggleMatch)
		rec.POST("/update-closing-balance", h.reconciliation.UpdateClosingBalance)
		rec.POST("/remove-items", h.reconciliation.RemoveItems)
		rec.POST("/complete", h.reconciliation.Complete)
		rec.POST("/cancel", h.reconciliation.Cancel)
		rec.GET("/:accountRef", h.reconciliation.GetOverview)
		rec.GET("/sessions/:id/candidates", h.reconciliation.ListCandidates)
	}

	// Writes are queued as commands and answered with 202
	tx := v1.Group("/transactions")
	{
		tx.POST("", h.transactions.Submit)
		tx.GET("/:id", h.transactions.GetByID)
		tx.POST("/:id/approve", h.transactions.Approve)
		tx.POST("/:id/reject", h.transactions.Reject)
		tx.POST("/:id/resubmit", h.transactions.Resubmit)
	}
	v1.GET("/accounts/:accountRef/transactions", h.transactions.GetByAccount)
}
