// internal/repository/postgres/errors.go
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"encore-ledger/internal/util"
)

const pgUniqueViolation = "23505"

// isUniqueViolation recognizes unique-constraint failures from every supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nullIfEmpty stores empty optional strings as NULL.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// requireOneRow maps an update that touched nothing to util.ErrNotFound.
func requireOneRow(result sql.Result, kind, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating %s %s: %w", kind, id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, util.ErrNotFound)
	}
	return nil
}
