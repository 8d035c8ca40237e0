// internal/repository/postgres/journal_pg.go
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

// JournalRepository implements repository.JournalRepository for SQL databases.
type JournalRepository struct{}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository() *JournalRepository {
	return &JournalRepository{}
}

var _ repository.JournalRepository = (*JournalRepository)(nil)

// CreateEntry appends a journal entry.
func (r *JournalRepository) CreateEntry(ctx context.Context, q repository.DBExecutor, entry *domain.JournalEntry) error {
	query := q.Rebind(`INSERT INTO audit_journal (id, user_id, wallet_id, event_type, event_category, correlation_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		nullIfEmpty(entry.WalletID),
		entry.EventType,
		entry.EventCategory,
		entry.CorrelationID,
		entry.Metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create journal entry for %s: %w", entry.CorrelationID, err)
	}
	return nil
}

// GetEntryByCorrelationID returns the oldest journal entry recorded for a transaction.
func (r *JournalRepository) GetEntryByCorrelationID(ctx context.Context, q repository.DBExecutor, correlationID string) (*domain.JournalEntry, error) {
	var entry domain.JournalEntry
	query := q.Rebind(`SELECT id, user_id, COALESCE(wallet_id, '') AS wallet_id, event_type, event_category,
		correlation_id, metadata, created_at
		FROM audit_journal WHERE correlation_id = ? ORDER BY created_at LIMIT 1`)
	if err := q.GetContext(ctx, &entry, query, correlationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get journal entry for %s: %w", correlationID, err)
	}
	return &entry, nil
}
