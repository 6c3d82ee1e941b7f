package components

import (
	"log/slog"

	"github.com/cooperative-ledger/internal/config"
	"github.com/cooperative-ledger/internal/domain/txlog"
	"github.com/cooperative-ledger/internal/platform/messaging/producers"
	"github.com/cooperative-ledger/internal/transaction_processor/service"
)

// CreateProcessingService creates a new ProcessingService with all its dependencies.
func CreateProcessingService(
	eventRepo txlog.Repository,
	dlq producers.DeadLetterPublisher,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	validator := NewCommandValidator(eventRepo, logger)
	writer := NewEventWriter(eventRepo, logger)
	failureRecorder := NewFailureRecorder(dlq, logger)

	baseService := service.NewProcessingService(
		validator,
		writer,
		failureRecorder,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Worker pool unavailable, processing commands inline", "pool_size", cfg.WorkerPool.Size, "error", err)
		return baseService
	}

	logger.Info("Processing commands on worker pool", "capacity", workerPoolService.Capacity())
	return workerPoolService
}
