// internal/repository/postgres/ledger_pg.go
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

// Queries are written with '?' placeholders and rebound per driver, so the same
// repository runs on PostgreSQL (lib/pq or pgx) and SQLite.
const (
	transactionColumns = `correlation_id, COALESCE(idempotency_key, '') AS idempotency_key, user_id, wallet_id,
		counterparty_id, type, amount_cents, currency, status,
		COALESCE(original_correlation_id, '') AS original_correlation_id, created_at`

	entryColumns = `id, user_id, COALESCE(wallet_id, '') AS wallet_id, amount_cents, currency, type, event_source,
		COALESCE(reference_id, '') AS reference_id, correlation_id,
		COALESCE(journal_entry_id, '') AS journal_entry_id, metadata, created_at`

	creditSum = `CAST(COALESCE(SUM(CASE WHEN type = 'credit' THEN amount_cents ELSE 0 END), 0) AS BIGINT)`
	debitSum  = `CAST(COALESCE(SUM(CASE WHEN type = 'debit' THEN amount_cents ELSE 0 END), 0) AS BIGINT)`
)

// LedgerRepository implements repository.LedgerRepository for SQL databases.
type LedgerRepository struct{}

// NewLedgerRepository creates a new LedgerRepository.
// Methods receive their DBExecutor per call, so the repository holds no connection.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)

// InsertTransaction inserts a transaction header.
func (r *LedgerRepository) InsertTransaction(ctx context.Context, q repository.DBExecutor, tx *domain.Transaction) error {
	query := q.Rebind(`INSERT INTO ledger_transactions (correlation_id, idempotency_key, user_id, wallet_id, counterparty_id,
		type, amount_cents, currency, status, original_correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := q.ExecContext(ctx, query,
		tx.CorrelationID,
		nullIfEmpty(tx.IdempotencyKey),
		tx.UserID,
		tx.WalletID,
		tx.CounterpartyID,
		tx.Type,
		tx.AmountCents,
		tx.Currency,
		tx.Status,
		nullIfEmpty(tx.OriginalCorrelationID),
		tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.CorrelationID, util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", tx.CorrelationID, err)
	}
	return nil
}

// InsertEntry appends one ledger entry.
func (r *LedgerRepository) InsertEntry(ctx context.Context, q repository.DBExecutor, e *domain.LedgerEntry) error {
	query := q.Rebind(`INSERT INTO ledger_entries (id, user_id, wallet_id, amount_cents, currency, type, event_source,
		reference_id, correlation_id, journal_entry_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := q.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		nullIfEmpty(e.WalletID),
		e.AmountCents,
		e.Currency,
		e.Type,
		e.EventSource,
		nullIfEmpty(e.ReferenceID),
		e.CorrelationID,
		nullIfEmpty(e.JournalEntryID),
		e.Metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s entry for %s: %w", e.Type, e.CorrelationID, err)
	}
	return nil
}

// GetTransaction retrieves a transaction header by correlation id.
func (r *LedgerRepository) GetTransaction(ctx context.Context, q repository.DBExecutor, correlationID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := q.Rebind(`SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE correlation_id = ?`)
	if err := q.GetContext(ctx, &tx, query, correlationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", correlationID, err)
	}
	return &tx, nil
}

// GetTransactionByIdempotencyKey retrieves the header recorded under an idempotency key.
func (r *LedgerRepository) GetTransactionByIdempotencyKey(ctx context.Context, q repository.DBExecutor, key string) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := q.Rebind(`SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE idempotency_key = ?`)
	if err := q.GetContext(ctx, &tx, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}
	return &tx, nil
}

// GetEntriesByCorrelationID returns all entries of a transaction, debits first.
func (r *LedgerRepository) GetEntriesByCorrelationID(ctx context.Context, q repository.DBExecutor, correlationID string) ([]domain.LedgerEntry, error) {
	entries := []domain.LedgerEntry{}
	query := q.Rebind(`SELECT ` + entryColumns + ` FROM ledger_entries WHERE correlation_id = ?
		ORDER BY CASE WHEN type = 'debit' THEN 0 ELSE 1 END, created_at, id`)
	if err := q.SelectContext(ctx, &entries, query, correlationID); err != nil {
		return nil, fmt.Errorf("failed to fetch entries for %s: %w", correlationID, err)
	}
	return entries, nil
}

// LockTransaction serializes writers that depend on a header, e.g. concurrent
// refunds of one original. A no-op update is used because SQLite has no FOR UPDATE.
func (r *LedgerRepository) LockTransaction(ctx context.Context, q repository.DBExecutor, correlationID string) error {
	query := q.Rebind(`UPDATE ledger_transactions SET status = status WHERE correlation_id = ?`)
	result, err := q.ExecContext(ctx, query, correlationID)
	if err != nil {
		return fmt.Errorf("failed to lock transaction %s: %w", correlationID, err)
	}
	return requireOneRow(result, "transaction", correlationID)
}

// SumRefunded totals the refunds recorded against an original transaction.
func (r *LedgerRepository) SumRefunded(ctx context.Context, q repository.DBExecutor, originalCorrelationID string) (int64, error) {
	var total int64
	query := q.Rebind(`SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) FROM ledger_transactions
		WHERE original_correlation_id = ? AND type = ?`)
	if err := q.GetContext(ctx, &total, query, originalCorrelationID, domain.TransactionTypeRefund); err != nil {
		return 0, fmt.Errorf("failed to sum refunds for %s: %w", originalCorrelationID, err)
	}
	return total, nil
}

// LinkJournalEntry sets journal_entry_id on the transaction's entries where it is still unset.
func (r *LedgerRepository) LinkJournalEntry(ctx context.Context, q repository.DBExecutor, correlationID, journalEntryID string) (int64, error) {
	query := q.Rebind(`UPDATE ledger_entries SET journal_entry_id = ?
		WHERE correlation_id = ? AND (journal_entry_id IS NULL OR journal_entry_id = '')`)
	result, err := q.ExecContext(ctx, query, journalEntryID, correlationID)
	if err != nil {
		return 0, fmt.Errorf("failed to link journal entry for %s: %w", correlationID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected after linking %s: %w", correlationID, err)
	}
	return rowsAffected, nil
}

// BackfillWalletID sets wallet_id on the user's entries of a transaction where it is still unset.
func (r *LedgerRepository) BackfillWalletID(ctx context.Context, q repository.DBExecutor, correlationID, userID, walletID string) (int64, error) {
	query := q.Rebind(`UPDATE ledger_entries SET wallet_id = ?
		WHERE correlation_id = ? AND user_id = ? AND (wallet_id IS NULL OR wallet_id = '')`)
	result, err := q.ExecContext(ctx, query, walletID, correlationID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill wallet id for %s: %w", correlationID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected after wallet backfill for %s: %w", correlationID, err)
	}
	return rowsAffected, nil
}

// ListUnlinkedTransactions returns headers created before the cutoff that still have
// entries without a journal link, oldest first.
func (r *LedgerRepository) ListUnlinkedTransactions(ctx context.Context, q repository.DBExecutor, before time.Time, limit int) ([]domain.Transaction, error) {
	txs := []domain.Transaction{}
	query := q.Rebind(`SELECT ` + transactionColumns + ` FROM ledger_transactions t
		WHERE t.created_at < ? AND EXISTS (
			SELECT 1 FROM ledger_entries e
			WHERE e.correlation_id = t.correlation_id AND (e.journal_entry_id IS NULL OR e.journal_entry_id = '')
		)
		ORDER BY t.created_at
		LIMIT ?`)
	if err := q.SelectContext(ctx, &txs, query, before.UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list unlinked transactions: %w", err)
	}
	return txs, nil
}

// GetAccountTotals sums the credits and debits of one account.
func (r *LedgerRepository) GetAccountTotals(ctx context.Context, q repository.DBExecutor, accountID string) (int64, int64, error) {
	var totals struct {
		Credits int64 `db:"credits"`
		Debits  int64 `db:"debits"`
	}
	query := q.Rebind(`SELECT ` + creditSum + ` AS credits, ` + debitSum + ` AS debits
		FROM ledger_entries WHERE user_id = ?`)
	if err := q.GetContext(ctx, &totals, query, accountID); err != nil {
		return 0, 0, fmt.Errorf("failed to get totals for account %s: %w", accountID, err)
	}
	return totals.Credits, totals.Debits, nil
}

// GetAccountCurrencyTotals sums credits and debits of one account in one currency.
func (r *LedgerRepository) GetAccountCurrencyTotals(ctx context.Context, q repository.DBExecutor, accountID, currency string) (int64, int64, error) {
	var totals struct {
		Credits int64 `db:"credits"`
		Debits  int64 `db:"debits"`
	}
	query := q.Rebind(`SELECT ` + creditSum + ` AS credits, ` + debitSum + ` AS debits
		FROM ledger_entries WHERE user_id = ? AND currency = ?`)
	if err := q.GetContext(ctx, &totals, query, accountID, currency); err != nil {
		return 0, 0, fmt.Errorf("failed to get %s totals for account %s: %w", currency, accountID, err)
	}
	return totals.Credits, totals.Debits, nil
}

// LockAccount upserts the account's lock row. The row lock is held until the
// surrounding transaction ends, so concurrent callers queue behind it.
func (r *LedgerRepository) LockAccount(ctx context.Context, q repository.DBExecutor, accountID string, at time.Time) error {
	query := q.Rebind(`INSERT INTO account_locks (account_id, locked_at) VALUES (?, ?)
		ON CONFLICT (account_id) DO UPDATE SET locked_at = excluded.locked_at`)
	if _, err := q.ExecContext(ctx, query, accountID, at.UTC()); err != nil {
		return fmt.Errorf("failed to lock account %s: %w", accountID, err)
	}
	return nil
}

// GetCurrencyTotals sums credits and debits across the whole ledger, per currency.
func (r *LedgerRepository) GetCurrencyTotals(ctx context.Context, q repository.DBExecutor) ([]domain.CurrencyTotals, error) {
	totals := []domain.CurrencyTotals{}
	query := `SELECT currency, ` + creditSum + ` AS credits, ` + debitSum + ` AS debits
		FROM ledger_entries GROUP BY currency ORDER BY currency`
	if err := q.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("failed to get ledger totals: %w", err)
	}
	return totals, nil
}

// GetImbalancedTransactions returns every correlation id whose credits and debits differ.
func (r *LedgerRepository) GetImbalancedTransactions(ctx context.Context, q repository.DBExecutor) ([]domain.TransactionImbalance, error) {
	imbalances := []domain.TransactionImbalance{}
	query := `SELECT correlation_id, ` + creditSum + ` AS credits, ` + debitSum + ` AS debits, COUNT(*) AS entry_count
		FROM ledger_entries
		GROUP BY correlation_id
		HAVING SUM(CASE WHEN type = 'credit' THEN amount_cents ELSE -amount_cents END) <> 0
		ORDER BY correlation_id`
	if err := q.SelectContext(ctx, &imbalances, query); err != nil {
		return nil, fmt.Errorf("failed to get imbalanced transactions: %w", err)
	}
	return imbalances, nil
}

// GetLastEntryTime returns the newest entry timestamp of a transaction.
func (r *LedgerRepository) GetLastEntryTime(ctx context.Context, q repository.DBExecutor, correlationID string) (time.Time, error) {
	var last time.Time
	query := q.Rebind(`SELECT created_at FROM ledger_entries WHERE correlation_id = ? ORDER BY created_at DESC LIMIT 1`)
	if err := q.GetContext(ctx, &last, query, correlationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, util.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get last entry time for %s: %w", correlationID, err)
	}
	return last, nil
}

// ListIncompleteTransactions returns headers with fewer than two entries.
func (r *LedgerRepository) ListIncompleteTransactions(ctx context.Context, q repository.DBExecutor) ([]string, error) {
	ids := []string{}
	query := `SELECT t.correlation_id FROM ledger_transactions t
		LEFT JOIN ledger_entries e ON e.correlation_id = t.correlation_id
		GROUP BY t.correlation_id
		HAVING COUNT(e.id) < 2
		ORDER BY t.correlation_id`
	if err := q.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list incomplete transactions: %w", err)
	}
	return ids, nil
}
