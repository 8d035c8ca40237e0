// internal/repository/ledger_repo.go
package repository

import (
	"context"
	"time"

	"encore-ledger/internal/domain"
)

// LedgerRepository defines data operations on transaction headers and ledger entries.
type LedgerRepository interface {
	// InsertTransaction adds a transaction header. Fails with util.ErrDuplicateEntry
	// when the idempotency key is already taken.
	InsertTransaction(ctx context.Context, q DBExecutor, tx *domain.Transaction) error
	// InsertEntry appends one ledger entry.
	InsertEntry(ctx context.Context, q DBExecutor, entry *domain.LedgerEntry) error
	// GetTransaction retrieves a header by correlation id.
	GetTransaction(ctx context.Context, q DBExecutor, correlationID string) (*domain.Transaction, error)
	// GetTransactionByIdempotencyKey retrieves the header recorded under key.
	GetTransactionByIdempotencyKey(ctx context.Context, q DBExecutor, key string) (*domain.Transaction, error)
	// GetEntriesByCorrelationID returns all entries of a transaction, oldest first.
	GetEntriesByCorrelationID(ctx context.Context, q DBExecutor, correlationID string) ([]domain.LedgerEntry, error)
	// LockTransaction takes a row lock on a header for the rest of the DB transaction.
	LockTransaction(ctx context.Context, q DBExecutor, correlationID string) error
	// SumRefunded totals the amount already refunded against an original transaction.
	SumRefunded(ctx context.Context, q DBExecutor, originalCorrelationID string) (int64, error)
	// LinkJournalEntry sets journal_entry_id on every entry of the transaction where it is unset.
	LinkJournalEntry(ctx context.Context, q DBExecutor, correlationID, journalEntryID string) (int64, error)
	// BackfillWalletID sets wallet_id on the user's entries of the transaction where it is unset.
	BackfillWalletID(ctx context.Context, q DBExecutor, correlationID, userID, walletID string) (int64, error)
	// ListUnlinkedTransactions returns headers older than before that still have unlinked entries.
	ListUnlinkedTransactions(ctx context.Context, q DBExecutor, before time.Time, limit int) ([]domain.Transaction, error)
	// GetAccountTotals sums credits and debits of one account across all currencies.
	GetAccountTotals(ctx context.Context, q DBExecutor, accountID string) (credits, debits int64, err error)
	// GetAccountCurrencyTotals sums credits and debits of one account in one currency.
	GetAccountCurrencyTotals(ctx context.Context, q DBExecutor, accountID, currency string) (credits, debits int64, err error)
	// LockAccount serializes balance-dependent writes for an account until the
	// DB transaction ends.
	LockAccount(ctx context.Context, q DBExecutor, accountID string, at time.Time) error
	// GetCurrencyTotals sums credits and debits across the whole ledger, per currency.
	GetCurrencyTotals(ctx context.Context, q DBExecutor) ([]domain.CurrencyTotals, error)
	// GetImbalancedTransactions returns every correlation id whose credits and debits differ.
	GetImbalancedTransactions(ctx context.Context, q DBExecutor) ([]domain.TransactionImbalance, error)
	// GetLastEntryTime returns the newest entry timestamp of a transaction.
	GetLastEntryTime(ctx context.Context, q DBExecutor, correlationID string) (time.Time, error)
	// ListIncompleteTransactions returns headers with fewer than two entries.
	ListIncompleteTransactions(ctx context.Context, q DBExecutor) ([]string, error)
}
