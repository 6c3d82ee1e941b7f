// Package postgres provides PostgreSQL implementations of the plan, bank account,
// reconciliation session and outbox repositories.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/cooperative-ledger/internal/domain/bankaccount"
	"github.com/cooperative-ledger/internal/platform/persistence"
)

var _ bankaccount.Repository = (*BankAccountRepository)(nil)

// BankAccountRepository reads bank account master data
type BankAccountRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewBankAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) *BankAccountRepository {
	return &BankAccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetByRef returns ErrAccountNotFound when the reference is unknown
func (r *BankAccountRepository) GetByRef(ctx context.Context, accountRef string) (*bankaccount.Account, error) {
	query := `
		SELECT account_ref, name, opening_balance, currency, opened_at, created_at, updated_at
		FROM bank_accounts
		WHERE account_ref = $1
	`

	var acc bankaccount.Account
	err := r.querier.QueryRow(ctx, query, accountRef).Scan(
		&acc.AccountRef,
		&acc.Name,
		&acc.OpeningBalance,
		&acc.Currency,
		&acc.OpenedAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bankaccount.ErrAccountNotFound{AccountRef: accountRef}
		}
		r.logger.Error("Failed to get bank account", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}

	return &acc, nil
}
