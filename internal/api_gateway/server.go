package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cooperative-ledger/internal/api_gateway/handler"
	"github.com/cooperative-ledger/internal/api_gateway/service"
	"github.com/cooperative-ledger/internal/config"
)

// Services are the application services exposed over HTTP
type Services struct {
	Schedule       service.ScheduleService
	Reconciliation service.ReconciliationService
	Transactions   service.TransactionService
}

// Server is the REST front of the schedule and reconciliation engine
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer builds the handlers and routes. deps are pinged by GET /health.
func NewServer(log *slog.Logger, cfg *config.Config, services Services, deps map[string]Pinger) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	currency := cfg.Schedule.Currency
	handlers := routeHandlers{
		schedule:       handler.NewScheduleHandler(log, services.Schedule, currency),
		reconciliation: handler.NewReconciliationHandler(log, services.Reconciliation, currency),
		transactions:   handler.NewTransactionHandler(log, services.Transactions, currency),
		health:         healthHandler(deps, cfg.Server.HealthTimeout),
	}

	engine := gin.New()
	setupRouter(log, engine, handlers)

	return &Server{
		logger: log,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
}

// Start blocks serving requests until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Listening for HTTP requests", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("failed to start HTTP server: %w", err)
}

// Stop drains open requests, bounded by ctx
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
