// internal/domain/balance.go
package domain

import "time"

// CurrencyTotals aggregates credits and debits for one currency.
type CurrencyTotals struct {
	Currency     string `db:"currency" json:"currency"`
	CreditsCents int64  `db:"credits" json:"credits_cents"`
	DebitsCents  int64  `db:"debits" json:"debits_cents"`
}

// Imbalance is credits minus debits; zero on a closed-loop ledger.
func (t CurrencyTotals) Imbalance() int64 {
	return t.CreditsCents - t.DebitsCents
}

// TransactionImbalance localizes a discrepancy to one correlation id.
type TransactionImbalance struct {
	CorrelationID string    `db:"correlation_id" json:"correlation_id"`
	CreditsCents  int64     `db:"credits" json:"credits_cents"`
	DebitsCents   int64     `db:"debits" json:"debits_cents"`
	EntryCount    int64     `db:"entry_count" json:"entry_count"`
	LastEntryAt   time.Time `db:"-" json:"last_entry_at"`
	Recheck       bool      `db:"-" json:"recheck"` // Newer than the settle window; may still be in flight
}

// Imbalance is credits minus debits for the transaction.
func (t TransactionImbalance) Imbalance() int64 {
	return t.CreditsCents - t.DebitsCents
}

// BalanceReport is the output of a ledger-wide invariant check.
type BalanceReport struct {
	IsBalanced bool `json:"is_balanced"`

	// TotalImbalance adds up the magnitude of each currency's imbalance.
	// Currencies are never netted against each other; ByCurrency keeps the sign.
	TotalImbalance       int64    `json:"total_imbalance_cents"`
	ImbalancedCurrencies []string `json:"imbalanced_currencies,omitempty"`

	ByCurrency             []CurrencyTotals       `json:"by_currency"`
	PerTransaction         []TransactionImbalance `json:"per_transaction,omitempty"`
	IncompleteTransactions []string               `json:"incomplete_transactions,omitempty"`
	Recheck                bool                   `json:"recheck"`
	CheckedAt              time.Time              `json:"checked_at"`
}
