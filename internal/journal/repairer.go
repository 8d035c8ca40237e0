// internal/journal/repairer.go
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
)

const defaultRepairBatch = 100

var errJournalUnavailable = errors.New("journal entry could not be written")

// WalletDeriver derives wallet ids for accounts touched by a transaction.
type WalletDeriver interface {
	DeriveWalletID(userID string) string
}

// RepairStats summarizes one repair pass.
type RepairStats struct {
	Scanned  int `json:"scanned"`
	Relinked int `json:"relinked"`
	Failed   int `json:"failed"`
}

// Repairer finds committed transactions whose journal step never completed
// and retries it. Transactions younger than grace are left to the live path.
type Repairer struct {
	db          repository.DBExecutor
	ledgerRepo  repository.LedgerRepository
	journalRepo repository.JournalRepository
	journal     *Logger
	linker      *Linker
	deriver     WalletDeriver
	grace       time.Duration
	interval    time.Duration
	batchSize   int
	logger      *slog.Logger
}

// NewRepairer creates a new Repairer.
func NewRepairer(
	db repository.DBExecutor,
	ledgerRepo repository.LedgerRepository,
	journalRepo repository.JournalRepository,
	journal *Logger,
	linker *Linker,
	deriver WalletDeriver,
	grace, interval time.Duration,
	logger *slog.Logger,
) *Repairer {
	return &Repairer{
		db:          db,
		ledgerRepo:  ledgerRepo,
		journalRepo: journalRepo,
		journal:     journal,
		linker:      linker,
		deriver:     deriver,
		grace:       grace,
		interval:    interval,
		batchSize:   defaultRepairBatch,
		logger:      logger,
	}
}

// Run repeats RunOnce every interval until ctx is cancelled.
func (r *Repairer) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Journal repair job disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Journal repair job started", "interval", r.interval.String(), "grace", r.grace.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Journal repair job stopped")
			return
		case <-ticker.C:
			stats, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("Journal repair pass failed", "error", err)
				continue
			}
			if stats.Scanned > 0 {
				r.logger.Info("Journal repair pass finished",
					"scanned", stats.Scanned, "relinked", stats.Relinked, "failed", stats.Failed)
			}
		}
	}
}

// RunOnce scans one batch of unlinked transactions. A transaction that already
// has a journal entry is linked to it; otherwise a new entry is logged first.
func (r *Repairer) RunOnce(ctx context.Context) (RepairStats, error) {
	var stats RepairStats

	cutoff := time.Now().UTC().Add(-r.grace)
	txs, err := r.ledgerRepo.ListUnlinkedTransactions(ctx, r.db, cutoff, r.batchSize)
	if err != nil {
		return stats, fmt.Errorf("repair: %w", err)
	}

	for i := range txs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++
		if err := r.repair(ctx, &txs[i]); err != nil {
			stats.Failed++
			r.logger.Warn("Failed to repair journal link", "correlation_id", txs[i].CorrelationID, "error", err)
			continue
		}
		stats.Relinked++
		metrics.JournalRepairsTotal.Inc()
	}
	return stats, nil
}

func (r *Repairer) repair(ctx context.Context, tx *domain.Transaction) error {
	journalID := ""
	existing, err := r.journalRepo.GetEntryByCorrelationID(ctx, r.db, tx.CorrelationID)
	switch {
	case err == nil:
		journalID = existing.ID
	case util.IsError(err, util.ErrNotFound):
		journalID = r.journal.LogEvent(ctx, domain.JournalEvent{
			UserID:        tx.UserID,
			WalletID:      tx.WalletID,
			CorrelationID: tx.CorrelationID,
			Type:          tx.Type,
			AmountCents:   tx.AmountCents,
			Currency:      tx.Currency,
			Metadata:      domain.Metadata{"transaction_type": string(tx.Type), "repaired": "true"},
		})
		if journalID == "" {
			return errJournalUnavailable
		}
	default:
		return err
	}

	if err := r.linker.Link(ctx, LinkTarget{
		CorrelationID:  tx.CorrelationID,
		JournalEntryID: journalID,
		UserID:         tx.UserID,
		WalletID:       tx.WalletID,
	}); err != nil {
		return err
	}
	return r.backfillWallets(ctx, tx.CorrelationID)
}

// backfillWallets fills wallet ids left empty on any side of the transaction.
func (r *Repairer) backfillWallets(ctx context.Context, correlationID string) error {
	if r.deriver == nil {
		return nil
	}
	entries, err := r.ledgerRepo.GetEntriesByCorrelationID(ctx, r.db, correlationID)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if e.WalletID != "" || seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		if _, err := r.ledgerRepo.BackfillWalletID(ctx, r.db, correlationID, e.UserID, r.deriver.DeriveWalletID(e.UserID)); err != nil {
			return err
		}
	}
	return nil
}
