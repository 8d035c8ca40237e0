// internal/gateway/gateway_test.go
package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/identity"
	"encore-ledger/internal/journal"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/ratelimit"
	"encore-ledger/internal/repository/postgres"
	"encore-ledger/internal/testutil"
	"encore-ledger/internal/util"
	"encore-ledger/pkg/db"
)

const reserve = "platform-reserve"

// MockJournalLogger is a mock implementation of JournalLogger.
type MockJournalLogger struct {
	mock.Mock
}

func (m *MockJournalLogger) LogEvent(ctx context.Context, ev domain.JournalEvent) string {
	args := m.Called(ctx, ev)
	return args.String(0)
}

// MockJournalLinker is a mock implementation of JournalLinker.
type MockJournalLinker struct {
	mock.Mock
}

func (m *MockJournalLinker) Link(ctx context.Context, target journal.LinkTarget) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

type harness struct {
	gw      *Gateway
	conn    *sqlx.DB
	repo    *postgres.LedgerRepository
	deriver *identity.Deriver
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	journal JournalLogger
	linker  JournalLinker
	limiter ratelimit.Limiter
}

func withJournal(j JournalLogger, l JournalLinker) harnessOption {
	return func(c *harnessConfig) { c.journal, c.linker = j, l }
}

func withLimiter(l ratelimit.Limiter) harnessOption {
	return func(c *harnessConfig) { c.limiter = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	conn := testutil.NewSQLiteDB(t)
	log := util.DiscardLogger()
	repo := postgres.NewLedgerRepository()
	deriver, err := identity.NewDeriver("gateway-test-secret-0123456789")
	require.NoError(t, err)

	cfg := harnessConfig{
		journal: journal.NewLogger(conn, postgres.NewJournalRepository(), nil, "", time.Second, log),
		linker:  journal.NewLinker(conn, repo, log),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	writer := ledger.NewWriter(conn, repo, db.BeginTx, db.CommitTx, db.RollbackTx, 5*time.Second, log)
	gw := New(Config{
		ReserveAccount:      reserve,
		MaxAmountCents:      99_999_900,
		SupportedCurrencies: []string{"USD", "EUR", "GBP", "CAD"},
		DefaultCurrency:     "USD",
	}, conn, repo, writer, deriver, cfg.journal, cfg.linker, cfg.limiter, log)

	return &harness{gw: gw, conn: conn, repo: repo, deriver: deriver}
}

func (h *harness) balance(t *testing.T, account string) int64 {
	t.Helper()
	credits, debits, err := h.repo.GetAccountTotals(context.Background(), h.conn, account)
	require.NoError(t, err)
	return credits - debits
}

func (h *harness) entryCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, h.conn.Get(&n, `SELECT COUNT(*) FROM ledger_entries`))
	return n
}

func TestProcessTransactionTicketPurchase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	result := h.gw.ProcessTransaction(ctx, domain.TransactionParams{
		UserID:      "u1",
		AmountCents: 5000,
		Type:        domain.TransactionTypeTicket,
		EventID:     "show-1",
	})
	require.Equal(t, domain.TransactionStatusCompleted, result.Status, result.Error)
	assert.True(t, strings.HasPrefix(result.CorrelationID, "txn_"))
	assert.NotEmpty(t, result.TransactionID)
	assert.NotEmpty(t, result.JournalEntryID)
	assert.Equal(t, h.deriver.DeriveWalletID("u1"), result.WalletID)

	entries, err := h.repo.GetEntriesByCorrelationID(ctx, h.conn, result.CorrelationID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	debit, credit := entries[0], entries[1]
	assert.Equal(t, domain.EntryTypeDebit, debit.Type)
	assert.Equal(t, "u1", debit.UserID)
	assert.Equal(t, h.deriver.DeriveWalletID("u1"), debit.WalletID)
	assert.Equal(t, int64(5000), debit.AmountCents)
	assert.Equal(t, result.TransactionID, debit.ID)
	assert.Equal(t, domain.EventSourceCharge, debit.EventSource)
	assert.Equal(t, "show-1", debit.Metadata["event_id"])

	assert.Equal(t, domain.EntryTypeCredit, credit.Type)
	assert.Equal(t, reserve, credit.UserID)
	assert.Equal(t, int64(5000), credit.AmountCents)

	for _, e := range entries {
		assert.Equal(t, result.JournalEntryID, e.JournalEntryID)
		assert.Equal(t, "USD", e.Currency)
	}

	assert.Equal(t, int64(-5000), h.balance(t, "u1"))
	assert.Equal(t, int64(5000), h.balance(t, reserve))
}

func TestProcessTransactionInvalidInputWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	result := h.gw.ProcessTransaction(ctx, domain.TransactionParams{UserID: "", AmountCents: 5000})
	assert.Equal(t, domain.TransactionStatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.CorrelationID)
	assert.Zero(t, h.entryCount(t))
}

func TestProcessTransactionCounterparty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	result := h.gw.ProcessTransaction(ctx, domain.TransactionParams{
		UserID:         "fan-1",
		AmountCents:    300,
		Currency:       "eur",
		Type:           domain.TransactionTypeTip,
		CounterpartyID: "artist-1",
		Metadata:       domain.Metadata{"tip_message": "great set"},
	})
	require.True(t, result.Completed(), result.Error)

	assert.Equal(t, int64(300), h.balance(t, "artist-1"))
	assert.Zero(t, h.balance(t, reserve))

	tx, err := h.repo.GetTransaction(ctx, h.conn, result.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, "artist-1", tx.CounterpartyID)
}

func TestProcessTransactionIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	params := domain.TransactionParams{
		UserID:         "fan-1",
		AmountCents:    1200,
		Type:           domain.TransactionTypeSubscription,
		IdempotencyKey: "evt_processor_123",
	}

	first := h.gw.ProcessTransaction(ctx, params)
	require.True(t, first.Completed(), first.Error)
	assert.False(t, first.Replayed)

	second := h.gw.ProcessTransaction(ctx, params)
	require.True(t, second.Completed(), second.Error)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.JournalEntryID, second.JournalEntryID)
	assert.Equal(t, first.WalletID, second.WalletID)

	assert.Equal(t, 2, h.entryCount(t))
	assert.Equal(t, int64(-1200), h.balance(t, "fan-1"))
}

func TestProcessTransactionJournalFailure(t *testing.T) {
	ctx := context.Background()
	journalLogger := new(MockJournalLogger)
	linker := new(MockJournalLinker)
	journalLogger.On("LogEvent", mock.Anything, mock.MatchedBy(func(ev domain.JournalEvent) bool {
		return ev.UserID == "fan-1" && ev.Type == domain.TransactionTypeTicket
	})).Return("").Once()

	h := newHarness(t, withJournal(journalLogger, linker))
	result := h.gw.ProcessTransaction(ctx, domain.TransactionParams{
		UserID:      "fan-1",
		AmountCents: 4000,
		Type:        domain.TransactionTypeTicket,
	})

	require.True(t, result.Completed(), "ledger rows exist, so the journal outcome must not fail the call")
	assert.Empty(t, result.JournalEntryID)
	assert.Equal(t, 2, h.entryCount(t))

	journalLogger.AssertExpectations(t)
	linker.AssertNotCalled(t, "Link", mock.Anything, mock.Anything)
}

func TestProcessTransactionLinkFailure(t *testing.T) {
	ctx := context.Background()
	journalLogger := new(MockJournalLogger)
	linker := new(MockJournalLinker)
	journalLogger.On("LogEvent", mock.Anything, mock.Anything).Return("jrn-77").Once()
	linker.On("Link", mock.Anything, mock.MatchedBy(func(target journal.LinkTarget) bool {
		return target.JournalEntryID == "jrn-77" && target.UserID == "fan-1"
	})).Return(assert.AnError).Once()

	h := newHarness(t, withJournal(journalLogger, linker))
	result := h.gw.ProcessTransaction(ctx, domain.TransactionParams{
		UserID:      "fan-1",
		AmountCents: 4000,
		Type:        domain.TransactionTypeTicket,
	})

	require.True(t, result.Completed())
	assert.Equal(t, "jrn-77", result.JournalEntryID)
	mock.AssertExpectationsForObjects(t, journalLogger, linker)
}

func TestProcessTransactionRateLimited(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withLimiter(ratelimit.NewMemoryLimiter(2, time.Hour)))
	params := domain.TransactionParams{UserID: "fan-1", AmountCents: 100, Type: domain.TransactionTypeTip}

	require.True(t, h.gw.ProcessTransaction(ctx, params).Completed())
	require.True(t, h.gw.ProcessTransaction(ctx, params).Completed())

	limited := h.gw.ProcessTransaction(ctx, params)
	assert.Equal(t, domain.TransactionStatusFailed, limited.Status)
	assert.Equal(t, MsgRateLimited, limited.Error)
	assert.Equal(t, domain.FailureRateLimited, limited.Failure)
	assert.Equal(t, 4, h.entryCount(t))

	other := h.gw.ProcessTransaction(ctx, domain.TransactionParams{UserID: "fan-2", AmountCents: 100, Type: domain.TransactionTypeTip})
	assert.True(t, other.Completed())
}

func TestProcessTransactionReplayIgnoresRateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withLimiter(ratelimit.NewMemoryLimiter(1, time.Hour)))
	params := domain.TransactionParams{
		UserID:         "fan-1",
		AmountCents:    2500,
		Type:           domain.TransactionTypeTicket,
		IdempotencyKey: "evt_retry_1",
	}

	first := h.gw.ProcessTransaction(ctx, params)
	require.True(t, first.Completed(), first.Error)

	for i := 0; i < 3; i++ {
		retry := h.gw.ProcessTransaction(ctx, params)
		require.True(t, retry.Completed(), retry.Error)
		assert.True(t, retry.Replayed)
		assert.Equal(t, first.CorrelationID, retry.CorrelationID)
	}

	params.IdempotencyKey = "evt_retry_2"
	fresh := h.gw.ProcessTransaction(ctx, params)
	assert.Equal(t, domain.FailureRateLimited, fresh.Failure)
	assert.Equal(t, 2, h.entryCount(t))
}

func TestProcessTransactionRefundReplayIgnoresRateLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withLimiter(ratelimit.NewMemoryLimiter(2, time.Hour)))

	original := h.gw.ProcessTransaction(ctx, domain.TransactionParams{
		UserID: "fan-1", AmountCents: 900, Type: domain.TransactionTypeTicket,
	})
	require.True(t, original.Completed(), original.Error)

	params := domain.TransactionParams{
		UserID:         "fan-1",
		AmountCents:    300,
		Type:           domain.TransactionTypeRefund,
		ReferenceID:    original.CorrelationID,
		IdempotencyKey: "refund-retry-1",
	}
	refund := h.gw.ProcessTransaction(ctx, params)
	require.True(t, refund.Completed(), refund.Error)

	retry := h.gw.ProcessTransaction(ctx, params)
	require.True(t, retry.Completed(), retry.Error)
	assert.True(t, retry.Replayed)
	assert.Equal(t, refund.CorrelationID, retry.CorrelationID)
	assert.Equal(t, int64(-600), h.balance(t, "fan-1"))
	assert.Equal(t, 4, h.entryCount(t))
}

func TestProcessTransactionAdjustment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	result := h.gw.ProcessTransaction(ctx, domain.TransactionParams{
		UserID:      "host-3",
		AmountCents: 750,
		Type:        domain.TransactionTypeAdjustment,
		Metadata:    domain.Metadata{"reason": "chargeback fee", "operator_id": "ops-1"},
	})
	require.True(t, result.Completed(), result.Error)

	entries, err := h.repo.GetEntriesByCorrelationID(ctx, h.conn, result.CorrelationID)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, domain.EventSourceAdjustment, e.EventSource)
	}
	assert.Equal(t, int64(-750), h.balance(t, "host-3"))
}
