package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/cooperative-ledger/internal/domain/plan"
	"github.com/cooperative-ledger/internal/platform/persistence"
)

const planColumns = `id, account_ref, required_amount_per_slot, total_slots, effective_from, retroactive_from, created_at`

var _ plan.Repository = (*PlanRepository)(nil)

// PlanRepository reads installment plan versions from PostgreSQL
type PlanRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPlanRepository(logger *slog.Logger, db *persistence.PostgresDB) *PlanRepository {
	return &PlanRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetHistory returns every plan version of the account, validated and ordered by
// effective date. Returns ErrPlanNotFound when the account has none.
func (r *PlanRepository) GetHistory(ctx context.Context, accountRef string) (plan.History, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE account_ref = $1
		ORDER BY effective_from ASC
	`

	rows, err := r.querier.Query(ctx, query, accountRef)
	if err != nil {
		r.logger.Error("Failed to get plan history", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to get plan history: %w", err)
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over plans: %w", err)
	}

	if len(plans) == 0 {
		return nil, plan.ErrPlanNotFound{AccountRef: accountRef}
	}

	return plan.NewHistory(plans)
}

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	if err := row.Scan(
		&p.ID,
		&p.AccountRef,
		&p.RequiredAmountPerSlot,
		&p.TotalSlots,
		&p.EffectiveFrom,
		&p.RetroactiveFrom,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
