// pkg/db/schema.go
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is written in the subset of SQL understood by both PostgreSQL and SQLite.
// Amounts are integer minor units; timestamps are stored in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		correlation_id          TEXT PRIMARY KEY,
		idempotency_key         TEXT UNIQUE,
		user_id                 TEXT NOT NULL,
		wallet_id               TEXT NOT NULL,
		counterparty_id         TEXT NOT NULL,
		type                    TEXT NOT NULL,
		amount_cents            BIGINT NOT NULL,
		currency                TEXT NOT NULL,
		status                  TEXT NOT NULL,
		original_correlation_id TEXT,
		created_at              TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_transactions_original ON ledger_transactions (original_correlation_id)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		wallet_id        TEXT,
		amount_cents     BIGINT NOT NULL CHECK (amount_cents > 0),
		currency         TEXT NOT NULL,
		type             TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
		event_source     TEXT NOT NULL,
		reference_id     TEXT,
		correlation_id   TEXT NOT NULL,
		journal_entry_id TEXT,
		metadata         TEXT,
		created_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_correlation ON ledger_entries (correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries (user_id)`,
	`CREATE TABLE IF NOT EXISTS audit_journal (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		wallet_id      TEXT,
		event_type     TEXT NOT NULL,
		event_category TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		metadata       TEXT,
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_journal_correlation ON audit_journal (correlation_id)`,
	`CREATE TABLE IF NOT EXISTS split_contracts (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		parties            TEXT NOT NULL,
		rules              TEXT NOT NULL,
		status             TEXT NOT NULL,
		currency           TEXT NOT NULL,
		total_amount_cents BIGINT NOT NULL,
		distributed_cents  BIGINT NOT NULL,
		created_at         TIMESTAMP NOT NULL,
		updated_at         TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attribution_entries (
		id                        TEXT PRIMARY KEY,
		referrer_id               TEXT NOT NULL,
		referred_user_id          TEXT NOT NULL,
		source_correlation_id     TEXT NOT NULL,
		amount_cents              BIGINT NOT NULL,
		currency                  TEXT NOT NULL,
		status                    TEXT NOT NULL,
		settlement_correlation_id TEXT,
		created_at                TIMESTAMP NOT NULL,
		updated_at                TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS account_locks (
		account_id TEXT PRIMARY KEY,
		locked_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payout_requests (
		id             TEXT PRIMARY KEY,
		account_id     TEXT NOT NULL,
		amount_cents   BIGINT NOT NULL,
		currency       TEXT NOT NULL,
		status         TEXT NOT NULL,
		correlation_id TEXT,
		failure_reason TEXT,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the ledger tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
