// internal/reconcile/validator_test.go
package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/repository/postgres"
	"encore-ledger/internal/testutil"
	"encore-ledger/internal/util"
	"encore-ledger/pkg/db"
)

func writePair(t *testing.T, conn *sqlx.DB, correlationID, from, to string, amount int64, currency string) {
	t.Helper()
	w := ledger.NewWriter(conn, postgres.NewLedgerRepository(), db.BeginTx, db.CommitTx, db.RollbackTx, time.Second, util.DiscardLogger())
	header := &domain.Transaction{
		CorrelationID:  correlationID,
		UserID:         from,
		WalletID:       "wlt_" + from,
		CounterpartyID: to,
		Type:           domain.TransactionTypeTicket,
		AmountCents:    amount,
		Currency:       currency,
		Status:         domain.TransactionStatusCompleted,
		CreatedAt:      time.Now().UTC(),
	}
	side := func(account string) domain.EntryParams {
		return domain.EntryParams{UserID: account, AmountCents: amount, Currency: currency, EventSource: domain.EventSourceCharge}
	}
	_, err := w.CreatePairedEntries(context.Background(), header, side(from), side(to))
	require.NoError(t, err)
}

// writeUnpaired simulates a half-applied write from before atomic inserts.
func writeUnpaired(t *testing.T, conn *sqlx.DB, correlationID string, amount int64, at time.Time) {
	t.Helper()
	writeOneSided(t, conn, correlationID, domain.EntryTypeDebit, amount, "USD", at)
}

func writeOneSided(t *testing.T, conn *sqlx.DB, correlationID string, side domain.EntryType, amount int64, currency string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	repo := postgres.NewLedgerRepository()
	require.NoError(t, repo.InsertTransaction(ctx, conn, &domain.Transaction{
		CorrelationID:  correlationID,
		UserID:         "fan-9",
		WalletID:       "wlt_fan-9",
		CounterpartyID: "platform-reserve",
		Type:           domain.TransactionTypeTicket,
		AmountCents:    amount,
		Currency:       currency,
		Status:         domain.TransactionStatusCompleted,
		CreatedAt:      at,
	}))
	require.NoError(t, repo.InsertEntry(ctx, conn, domain.NewLedgerEntry(domain.EntryParams{
		UserID: "fan-9", AmountCents: amount, Currency: currency, EventSource: domain.EventSourceCharge,
	}, side, correlationID, at)))
}

func newValidator(conn *sqlx.DB) *Validator {
	return NewValidator(conn, postgres.NewLedgerRepository(), 5*time.Minute, util.DiscardLogger())
}

func TestValidateLedgerBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyLedger", func(t *testing.T) {
		report, err := newValidator(testutil.NewSQLiteDB(t)).ValidateLedgerBalance(ctx, Options{})
		require.NoError(t, err)
		assert.True(t, report.IsBalanced)
		assert.Zero(t, report.TotalImbalance)
		assert.Empty(t, report.ByCurrency)
	})

	t.Run("BalancedAcrossCurrencies", func(t *testing.T) {
		conn := testutil.NewSQLiteDB(t)
		writePair(t, conn, "txn_a", "fan-1", "platform-reserve", 5000, "USD")
		writePair(t, conn, "txn_b", "fan-2", "artist-1", 700, "EUR")

		report, err := newValidator(conn).ValidateLedgerBalance(ctx, Options{PerTransaction: true})
		require.NoError(t, err)
		assert.True(t, report.IsBalanced)
		assert.False(t, report.Recheck)
		assert.Empty(t, report.PerTransaction)
		assert.Empty(t, report.IncompleteTransactions)
		require.Len(t, report.ByCurrency, 2)
		assert.Equal(t, "EUR", report.ByCurrency[0].Currency)
		assert.Equal(t, int64(700), report.ByCurrency[0].CreditsCents)
		assert.Equal(t, int64(5000), report.ByCurrency[1].DebitsCents)
	})

	t.Run("DetectsUnpairedRow", func(t *testing.T) {
		conn := testutil.NewSQLiteDB(t)
		writePair(t, conn, "txn_ok", "fan-1", "platform-reserve", 5000, "USD")
		writeUnpaired(t, conn, "txn_half", 1200, time.Now().UTC().Add(-time.Hour))

		report, err := newValidator(conn).ValidateLedgerBalance(ctx, Options{PerTransaction: true})
		require.NoError(t, err)
		assert.False(t, report.IsBalanced)
		assert.False(t, report.Recheck)
		assert.Equal(t, int64(1200), report.TotalImbalance)
		assert.Equal(t, []string{"USD"}, report.ImbalancedCurrencies)
		assert.Equal(t, []string{"txn_half"}, report.IncompleteTransactions)

		require.Len(t, report.PerTransaction, 1)
		half := report.PerTransaction[0]
		assert.Equal(t, "txn_half", half.CorrelationID)
		assert.Equal(t, int64(-1200), half.Imbalance())
		assert.Equal(t, int64(1), half.EntryCount)
		assert.False(t, half.Recheck)
		assert.False(t, half.LastEntryAt.IsZero())
	})

	t.Run("YoungImbalanceIsRechecked", func(t *testing.T) {
		conn := testutil.NewSQLiteDB(t)
		writeUnpaired(t, conn, "txn_inflight", 300, time.Now().UTC())

		report, err := newValidator(conn).ValidateLedgerBalance(ctx, Options{})
		require.NoError(t, err)
		assert.True(t, report.Recheck)
		assert.Equal(t, int64(300), report.TotalImbalance)
		assert.Empty(t, report.PerTransaction, "per-transaction detail is only returned on request")
	})

	t.Run("CurrenciesDoNotNet", func(t *testing.T) {
		conn := testutil.NewSQLiteDB(t)
		old := time.Now().UTC().Add(-time.Hour)
		writeOneSided(t, conn, "txn_usd", domain.EntryTypeCredit, 101, "USD", old)
		writeOneSided(t, conn, "txn_eur", domain.EntryTypeDebit, 101, "EUR", old)

		report, err := newValidator(conn).ValidateLedgerBalance(ctx, Options{})
		require.NoError(t, err)
		assert.False(t, report.IsBalanced)
		assert.False(t, report.Recheck)
		assert.Equal(t, int64(202), report.TotalImbalance)
		assert.Equal(t, []string{"EUR", "USD"}, report.ImbalancedCurrencies)
		require.Len(t, report.ByCurrency, 2)
		assert.Equal(t, int64(-101), report.ByCurrency[0].Imbalance())
		assert.Equal(t, int64(101), report.ByCurrency[1].Imbalance())
	})
}

func TestGetUserBalance(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteDB(t)
	writePair(t, conn, "txn_1", "u1", "platform-reserve", 5000, "USD")
	writePair(t, conn, "txn_2", "platform-reserve", "u1", 1500, "USD")

	v := newValidator(conn)
	balance, err := v.GetUserBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(-3500), balance)

	reserve, err := v.GetUserBalance(ctx, "platform-reserve")
	require.NoError(t, err)
	assert.Equal(t, int64(3500), reserve)

	unknown, err := v.GetUserBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, unknown)
}
