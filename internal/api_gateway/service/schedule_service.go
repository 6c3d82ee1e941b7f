package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cooperative-ledger/internal/config"
	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/domain/schedule"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

// ScheduleServiceImpl implements the ScheduleService interface
type ScheduleServiceImpl struct {
	planRepo  plan.Repository
	eventRepo txlog.Repository
	projector *schedule.Projector
	resolver  *schedule.Resolver
	currency  string
	logger    *slog.Logger
}

// NewScheduleService builds the projector and resolver from the schedule configuration
func NewScheduleService(logger *slog.Logger, planRepo plan.Repository, eventRepo txlog.Repository, cfg *config.ScheduleConfig) ScheduleService {
	policy := schedule.Policy{
		Mode:               schedule.CompensationMode(cfg.CompensationMode),
		RoundingUnit:       cfg.RoundingUnit,
		OpenEndedSlotFloor: cfg.OpenEndedSlotFloor,
	}
	projector := schedule.NewProjector(schedule.NewCompensator(policy))

	return &ScheduleServiceImpl{
		planRepo:  planRepo,
		eventRepo: eventRepo,
		projector: projector,
		resolver:  schedule.NewResolver(projector, cfg.Currency),
		currency:  cfg.Currency,
		logger:    logger,
	}
}

// GetScheduleStatus loads the plan history and the account's events and projects them
func (s *ScheduleServiceImpl) GetScheduleStatus(ctx context.Context, accountRef string, upToSlot *int) (*ScheduleStatus, error) {
	history, err := s.planRepo.GetHistory(ctx, accountRef)
	if err != nil {
		return nil, err
	}

	events, err := s.eventRepo.ListByAccount(ctx, accountRef)
	if err != nil {
		return nil, err
	}

	slots, err := s.projector.ProjectSlots(events, history, upToSlot)
	if err != nil {
		s.logger.Warn("Failed to project schedule", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("project schedule for %s: %w", accountRef, err)
	}

	// The next action needs the full default range, not a truncated view
	var next schedule.NextAction
	if upToSlot == nil {
		next, err = s.resolver.Resolve(slots, history)
	} else {
		next, err = s.resolver.NextAction(events, history)
	}
	if err != nil {
		s.logger.Warn("Failed to resolve next action", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("resolve next action for %s: %w", accountRef, err)
	}

	return &ScheduleStatus{
		AccountRef: accountRef,
		Currency:   s.currency,
		Slots:      slots,
		NextAction: next,
	}, nil
}
