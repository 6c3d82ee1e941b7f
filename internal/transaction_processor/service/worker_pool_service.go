package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/cooperative-ledger/internal/domain/shared"
)

// WorkerPoolProcessingService runs commands on a bounded goroutine pool
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
	mu          sync.Mutex
	inFlight    map[string]int // commands in flight per event ID
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		inFlight:    make(map[string]int),
	}, nil
}

// ProcessCommand submits the command to the pool and waits for its result, so the
// caller commits offsets in the order it fetched them.
func (s *WorkerPoolProcessingService) ProcessCommand(ctx context.Context, cmd *shared.TransactionCommand) error {
	logger := s.logger
	if cmd.CorrelationID != "" {
		logger = s.logger.With("correlation_id", cmd.CorrelationID)
	}

	logger.Debug("Submitting transaction command to worker pool",
		"event_id", cmd.EventID.String(),
		"type", cmd.Type,
	)

	resultChan := make(chan error, 1)
	eventID := cmd.EventID.String()
	s.track(eventID, 1)

	cmdCopy := *cmd

	err := s.pool.Submit(func() {
		defer s.track(eventID, -1)
		resultChan <- s.baseService.ProcessCommand(ctx, &cmdCopy)
	})
	if err != nil {
		s.track(eventID, -1)
		logger.Error("Failed to submit transaction command to worker pool",
			"event_id", eventID,
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WorkerPoolProcessingService) track(eventID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[eventID] += delta
	if s.inFlight[eventID] <= 0 {
		delete(s.inFlight, eventID)
	}
}

// InFlight returns the number of distinct events currently being processed.
func (s *WorkerPoolProcessingService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Shutdown releases the pool, waiting up to timeout for running commands to finish
func (s *WorkerPoolProcessingService) Shutdown(timeout time.Duration) {
	s.logger.Info("Shutting down worker pool",
		"running_workers", s.pool.Running(),
		"in_flight_events", s.InFlight(),
	)
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		s.logger.Warn("Worker pool did not drain before timeout", "in_flight_events", s.InFlight(), "error", err)
	}
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
