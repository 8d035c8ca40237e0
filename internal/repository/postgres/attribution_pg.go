// internal/repository/postgres/attribution_pg.go
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

// AttributionRepository implements repository.AttributionRepository.
type AttributionRepository struct{}

// NewAttributionRepository creates a new AttributionRepository.
func NewAttributionRepository() *AttributionRepository {
	return &AttributionRepository{}
}

var _ repository.AttributionRepository = (*AttributionRepository)(nil)

func (r *AttributionRepository) CreateAttribution(ctx context.Context, q repository.DBExecutor, a *domain.AttributionEntry) error {
	query := q.Rebind(`INSERT INTO attribution_entries (id, referrer_id, referred_user_id, source_correlation_id,
		amount_cents, currency, status, settlement_correlation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		a.ID, a.ReferrerID, a.ReferredUserID, a.SourceCorrelationID, a.AmountCents, a.Currency, a.Status,
		nullIfEmpty(a.SettlementCorrelationID), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create attribution for %s: %w", a.ReferrerID, err)
	}
	return nil
}

func (r *AttributionRepository) GetAttribution(ctx context.Context, q repository.DBExecutor, id string) (*domain.AttributionEntry, error) {
	var a domain.AttributionEntry
	query := q.Rebind(`SELECT id, referrer_id, referred_user_id, source_correlation_id, amount_cents, currency, status,
		COALESCE(settlement_correlation_id, '') AS settlement_correlation_id, created_at, updated_at
		FROM attribution_entries WHERE id = ?`)
	if err := q.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attribution %s: %w", id, err)
	}
	return &a, nil
}

func (r *AttributionRepository) UpdateAttribution(ctx context.Context, q repository.DBExecutor, a *domain.AttributionEntry) error {
	query := q.Rebind(`UPDATE attribution_entries SET status = ?, settlement_correlation_id = ?, updated_at = ? WHERE id = ?`)
	result, err := q.ExecContext(ctx, query, a.Status, nullIfEmpty(a.SettlementCorrelationID), a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update attribution %s: %w", a.ID, err)
	}
	return requireOneRow(result, "attribution", a.ID)
}
