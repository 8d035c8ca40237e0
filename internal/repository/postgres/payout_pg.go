// internal/repository/postgres/payout_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
)

// PayoutRepository implements repository.PayoutRepository.
type PayoutRepository struct{}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository() *PayoutRepository {
	return &PayoutRepository{}
}

var _ repository.PayoutRepository = (*PayoutRepository)(nil)

func (r *PayoutRepository) CreatePayout(ctx context.Context, q repository.DBExecutor, p *domain.PayoutRequest) error {
	query := q.Rebind(`INSERT INTO payout_requests (id, account_id, amount_cents, currency, status, correlation_id,
		failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		p.ID, p.AccountID, p.AmountCents, p.Currency, p.Status,
		nullIfEmpty(p.CorrelationID), nullIfEmpty(p.FailureReason), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payout request for %s: %w", p.AccountID, err)
	}
	return nil
}

func (r *PayoutRepository) GetPayout(ctx context.Context, q repository.DBExecutor, id string) (*domain.PayoutRequest, error) {
	var p domain.PayoutRequest
	query := q.Rebind(`SELECT id, account_id, amount_cents, currency, status,
		COALESCE(correlation_id, '') AS correlation_id, COALESCE(failure_reason, '') AS failure_reason,
		created_at, updated_at FROM payout_requests WHERE id = ?`)
	if err := q.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payout request %s: %w", id, err)
	}
	return &p, nil
}

func (r *PayoutRepository) UpdatePayout(ctx context.Context, q repository.DBExecutor, p *domain.PayoutRequest) error {
	query := q.Rebind(`UPDATE payout_requests SET status = ?, correlation_id = ?, failure_reason = ?, updated_at = ?
		WHERE id = ?`)
	result, err := q.ExecContext(ctx, query,
		p.Status, nullIfEmpty(p.CorrelationID), nullIfEmpty(p.FailureReason), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payout request %s: %w", p.ID, err)
	}
	return requireOneRow(result, "payout request", p.ID)
}

func (r *PayoutRepository) SumOpenPayouts(ctx context.Context, q repository.DBExecutor, accountID, currency string) (int64, error) {
	var total int64
	query := q.Rebind(`SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) FROM payout_requests
		WHERE account_id = ? AND currency = ? AND status IN (?, ?, ?)`)
	err := q.GetContext(ctx, &total, query, accountID, currency,
		domain.PayoutStatusPending, domain.PayoutStatusApproved, domain.PayoutStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to sum open payouts for %s: %w", accountID, err)
	}
	return total, nil
}
