package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cooperative-ledger/internal/config"
	"github.com/cooperative-ledger/internal/data/mongo"
	"github.com/cooperative-ledger/internal/data/postgres"
	"github.com/cooperative-ledger/internal/logger"
	"github.com/cooperative-ledger/internal/platform/messaging/consumers"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
	"github.com/cooperative-ledger/internal/platform/persistence"
	"github.com/cooperative-ledger/internal/transaction_processor/components"
	"github.com/cooperative-ledger/internal/transaction_processor/consumer"
	"github.com/cooperative-ledger/internal/transaction_processor/outbox_poller"
	"github.com/cooperative-ledger/internal/transaction_processor/service"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig("transaction_processor")
	if err != nil {
		// no logger yet
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting transaction processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	if err := run(log, cfg); err != nil {
		log.Error("Transaction processor stopped with errors", "error", err)
		os.Exit(1)
	}
	log.Info("Transaction processor stopped")
}

// run wires the command consumer and the outbox relay, then blocks until a signal or a
// fatal consumer error. Resources are released in reverse order of acquisition.
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
	defer closeWithTimeout(log, "MongoDB connection", mongoDB.Close)

	eventRepo := mongo.NewEventRepository(log, mongoDB.Database())
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("event log indexes: %w", err)
	}
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	dlqProducer, err := producers.NewDLQProducer(ctx, log, &cfg.Kafka)
	if err != nil {
		return fmt.Errorf("dlq producer: %w", err)
	}
	// nil when no DLQ topic is configured; keep the interface nil too
	var dlq producers.DeadLetterPublisher
	if dlqProducer != nil {
		dlq = dlqProducer
		defer closeLogged(log, "DLQ producer", dlqProducer.Close)
	}

	sessionEventProducer, err := producers.NewSessionEventProducer(ctx, log, &cfg.Kafka)
	if err != nil {
		return fmt.Errorf("session event producer: %w", err)
	}
	defer closeLogged(log, "session event producer", sessionEventProducer.Close)

	kafkaConsumer := consumers.NewKafkaConsumer(ctx, log, &cfg.Kafka)
	defer closeLogged(log, "Kafka consumer", kafkaConsumer.Close)

	processingService := components.CreateProcessingService(eventRepo, dlq, log, cfg)
	if pool, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		defer pool.Shutdown(drainTimeout)
	}
	commandHandler := consumer.NewCommandHandler(log, processingService, dlq)

	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		outbox_poller.NewSessionEventPublisher(outboxRepo, sessionEventProducer, log),
		log,
	)

	var wg sync.WaitGroup
	consumeErr := make(chan error, 1)

	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Info("Consuming transaction commands",
			"topic", cfg.Kafka.CommandTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(ctx, cfg.Kafka.CommandTopic, cfg.Kafka.ConsumerGroup, commandHandler.HandleMessage); err != nil {
			consumeErr <- err
		}
	}()
	go func() {
		defer wg.Done()
		log.Info("Relaying reconciliation session events",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-consumeErr:
		runErr = fmt.Errorf("kafka consumer: %w", runErr)
	}
	stop()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		log.Warn("Consumer and outbox relay did not stop in time", "timeout", drainTimeout.String())
	}
	return runErr
}

func closeLogged(log *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error("Error closing "+name, "error", err)
	}
}

func closeWithTimeout(log *slog.Logger, name string, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		log.Error("Error closing "+name, "error", err)
	}
}
