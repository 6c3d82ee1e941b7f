package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cooperative-ledger/internal/api_gateway"
	"github.com/cooperative-ledger/internal/api_gateway/service"
	"github.com/cooperative-ledger/internal/config"
	"github.com/cooperative-ledger/internal/data/mongo"
	"github.com/cooperative-ledger/internal/data/postgres"
	"github.com/cooperative-ledger/internal/logger"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
	"github.com/cooperative-ledger/internal/platform/persistence"
)

func main() {
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// no logger yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	if err := run(log, cfg); err != nil {
		log.Error("API gateway stopped with errors", "error", err)
		os.Exit(1)
	}
	log.Info("API gateway stopped")
}

func run(log *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer postgresDB.Close()

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := mongoDB.Close(closeCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}()

	// The gateway only reads the event log; writes go through the command topic
	commandProducer, err := producers.NewCommandProducer(ctx, log, &cfg.Kafka)
	if err != nil {
		return fmt.Errorf("command producer: %w", err)
	}
	defer func() {
		if err := commandProducer.Close(); err != nil {
			log.Error("Error closing command producer", "error", err)
		}
	}()

	eventRepo := mongo.NewEventRepository(log, mongoDB.Database())
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("event log indexes: %w", err)
	}

	services := api_gateway.Services{
		Schedule: service.NewScheduleService(log,
			postgres.NewPlanRepository(log, postgresDB),
			eventRepo,
			&cfg.Schedule,
		),
		Reconciliation: service.NewReconciliationService(log,
			postgresDB,
			postgres.NewSessionRepository(log, postgresDB),
			postgres.NewOutboxRepository(log, postgresDB),
			eventRepo,
			postgres.NewBankAccountRepository(log, postgresDB),
			cfg.Reconciliation.EpsilonMinor,
		),
		Transactions: service.NewTransactionService(log, eventRepo, commandProducer),
	}
	server := api_gateway.NewServer(log, cfg, services, map[string]api_gateway.Pinger{
		"postgres": postgresDB,
		"mongodb":  mongoDB,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}
