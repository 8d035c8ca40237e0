// internal/repository/journal_repo.go
package repository

import (
	"context"

	"encore-ledger/internal/domain"
)

// JournalRepository defines data operations on the audit journal.
type JournalRepository interface {
	// CreateEntry appends a journal entry.
	CreateEntry(ctx context.Context, q DBExecutor, entry *domain.JournalEntry) error
	// GetEntryByCorrelationID returns the oldest journal entry for a transaction.
	GetEntryByCorrelationID(ctx context.Context, q DBExecutor, correlationID string) (*domain.JournalEntry, error)
}
