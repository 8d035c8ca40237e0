// internal/journal/linker.go
package journal

import (
	"context"
	"fmt"
	"log/slog"

	"encore-ledger/internal/repository"
)

// LinkTarget identifies the ledger rows to annotate after a journal write.
type LinkTarget struct {
	CorrelationID  string
	JournalEntryID string
	UserID         string // Rows of this account get WalletID when theirs is unset
	WalletID       string
}

// Linker backfills journal and wallet references onto ledger entries.
// Only unset columns are written, so repeated calls are harmless.
type Linker struct {
	db         repository.DBExecutor
	ledgerRepo repository.LedgerRepository
	logger     *slog.Logger
}

// NewLinker creates a new Linker.
func NewLinker(db repository.DBExecutor, ledgerRepo repository.LedgerRepository, logger *slog.Logger) *Linker {
	return &Linker{db: db, ledgerRepo: ledgerRepo, logger: logger}
}

// Link is a no-op when target.JournalEntryID is empty.
func (l *Linker) Link(ctx context.Context, target LinkTarget) error {
	if target.JournalEntryID == "" || target.CorrelationID == "" {
		return nil
	}

	linked, err := l.ledgerRepo.LinkJournalEntry(ctx, l.db, target.CorrelationID, target.JournalEntryID)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	var backfilled int64
	if target.UserID != "" && target.WalletID != "" {
		backfilled, err = l.ledgerRepo.BackfillWalletID(ctx, l.db, target.CorrelationID, target.UserID, target.WalletID)
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
	}

	l.logger.Debug("Linked ledger entries to journal",
		"correlation_id", target.CorrelationID,
		"journal_entry_id", target.JournalEntryID,
		"linked", linked,
		"wallets_backfilled", backfilled)
	return nil
}
