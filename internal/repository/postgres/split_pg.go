// internal/repository/postgres/split_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
)

// SplitContractRepository implements repository.SplitContractRepository.
type SplitContractRepository struct{}

// NewSplitContractRepository creates a new SplitContractRepository.
func NewSplitContractRepository() *SplitContractRepository {
	return &SplitContractRepository{}
}

var _ repository.SplitContractRepository = (*SplitContractRepository)(nil)

func (r *SplitContractRepository) CreateContract(ctx context.Context, q repository.DBExecutor, c *domain.SplitContract) error {
	query := q.Rebind(`INSERT INTO split_contracts (id, name, parties, rules, status, currency, total_amount_cents,
		distributed_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		c.ID, c.Name, c.Parties, c.Rules, c.Status, c.Currency,
		c.TotalAmountCents, c.DistributedCents, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create split contract %s: %w", c.ID, util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create split contract %s: %w", c.ID, err)
	}
	return nil
}

func (r *SplitContractRepository) GetContract(ctx context.Context, q repository.DBExecutor, id string) (*domain.SplitContract, error) {
	var c domain.SplitContract
	query := q.Rebind(`SELECT id, name, parties, rules, status, currency, total_amount_cents, distributed_cents,
		created_at, updated_at FROM split_contracts WHERE id = ?`)
	if err := q.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get split contract %s: %w", id, err)
	}
	return &c, nil
}

// UpdateContract persists the mutable fields of a contract.
func (r *SplitContractRepository) UpdateContract(ctx context.Context, q repository.DBExecutor, c *domain.SplitContract) error {
	query := q.Rebind(`UPDATE split_contracts SET status = ?, distributed_cents = ?, updated_at = ? WHERE id = ?`)
	result, err := q.ExecContext(ctx, query, c.Status, c.DistributedCents, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update split contract %s: %w", c.ID, err)
	}
	return requireOneRow(result, "split contract", c.ID)
}

// IncrementDistributed bumps distributed_cents in a single conditional update,
// so concurrent distributions cannot overshoot the contract total.
func (r *SplitContractRepository) IncrementDistributed(ctx context.Context, q repository.DBExecutor, id string, amountCents int64, at time.Time) error {
	query := q.Rebind(`UPDATE split_contracts
		SET distributed_cents = distributed_cents + ?, updated_at = ?
		WHERE id = ? AND status = ? AND (total_amount_cents = 0 OR distributed_cents + ? <= total_amount_cents)`)
	result, err := q.ExecContext(ctx, query, amountCents, at, id, domain.SplitStatusActive, amountCents)
	if err != nil {
		return fmt.Errorf("failed to record distribution on split contract %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for split contract %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("split contract %s is not active or would exceed its total: %w", id, util.ErrSplitInvalid)
	}
	return nil
}
