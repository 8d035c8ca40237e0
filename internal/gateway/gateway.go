// internal/gateway/gateway.go
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/journal"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/ratelimit"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
)

// Caller-facing failure messages. Details stay in the server log.
const (
	MsgRateLimited   = "rate limit exceeded, retry later"
	MsgWriteFailed   = "transaction could not be recorded"
	MsgLookupFailed  = "transaction state could not be determined"
	MsgNotRefundable = "original transaction cannot be refunded"
)

// Config carries the gateway's business limits.
type Config struct {
	ReserveAccount      string
	MaxAmountCents      int64
	SupportedCurrencies []string
	DefaultCurrency     string
}

// EntryWriter persists balanced entry sets.
type EntryWriter interface {
	CreatePairedEntries(ctx context.Context, header *domain.Transaction, debit, credit domain.EntryParams, hooks ...ledger.TxHook) ([]*domain.LedgerEntry, error)
}

// WalletDeriver maps user ids onto wallet ids.
type WalletDeriver interface {
	DeriveWalletID(userID string) string
}

// JournalLogger writes the advisory journal entry for a transaction.
type JournalLogger interface {
	LogEvent(ctx context.Context, ev domain.JournalEvent) string
}

// JournalLinker annotates ledger entries with their journal entry.
type JournalLinker interface {
	Link(ctx context.Context, target journal.LinkTarget) error
}

// Gateway is the single entry point for monetary events.
type Gateway struct {
	cfg        Config
	db         repository.DBExecutor
	ledgerRepo repository.LedgerRepository
	writer     EntryWriter
	deriver    WalletDeriver
	journal    JournalLogger
	linker     JournalLinker
	limiter    ratelimit.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Gateway. A nil limiter disables rate limiting.
func New(
	cfg Config,
	db repository.DBExecutor,
	ledgerRepo repository.LedgerRepository,
	writer EntryWriter,
	deriver WalletDeriver,
	journalLogger JournalLogger,
	linker JournalLinker,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
) *Gateway {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Gateway{
		cfg:        cfg,
		db:         db,
		ledgerRepo: ledgerRepo,
		writer:     writer,
		deriver:    deriver,
		journal:    journalLogger,
		linker:     linker,
		limiter:    limiter,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessTransaction validates params and records a balanced debit/credit pair.
// The result is completed once the ledger rows are committed, whatever happens
// to the journal afterwards.
func (g *Gateway) ProcessTransaction(ctx context.Context, params domain.TransactionParams) domain.TransactionResult {
	started := time.Now()
	result := g.processTransaction(ctx, params)
	metrics.ObserveTransaction(string(params.Type), string(result.Status), started)
	return result
}

func (g *Gateway) processTransaction(ctx context.Context, params domain.TransactionParams) domain.TransactionResult {
	if v := g.ValidateTransaction(params); !v.Valid {
		return domain.FailedResult(domain.FailureValidation, util.NewValidationError(v.Errors).Error())
	}
	p := g.normalize(params)

	// Retries of a recorded key get the first result and are not rate limited.
	if p.IdempotencyKey != "" {
		if result, done := g.replay(ctx, p.IdempotencyKey); done {
			return result
		}
	}

	if !g.allow(ctx, p.UserID) {
		return domain.FailedResult(domain.FailureRateLimited, MsgRateLimited)
	}

	if p.Type == domain.TransactionTypeRefund {
		return g.processRefund(ctx, domain.RefundParams{
			OriginalCorrelationID: p.ReferenceID,
			AmountCents:           p.AmountCents,
			Reason:                p.Metadata["reason"],
			IdempotencyKey:        p.IdempotencyKey,
			Metadata:              p.Metadata,
		}, &refundRequester{
			UserID:   p.UserID,
			Currency: strings.ToUpper(strings.TrimSpace(params.Currency)),
		})
	}

	now := g.now().UTC()
	correlationID := ledger.NewCorrelationID(now)
	creditAccount := p.CounterpartyID
	if creditAccount == "" {
		creditAccount = g.cfg.ReserveAccount
	}
	payerWallet := g.deriver.DeriveWalletID(p.UserID)

	header := &domain.Transaction{
		CorrelationID:  correlationID,
		IdempotencyKey: p.IdempotencyKey,
		UserID:         p.UserID,
		WalletID:       payerWallet,
		CounterpartyID: creditAccount,
		Type:           p.Type,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Status:         domain.TransactionStatusCompleted,
		CreatedAt:      now,
	}

	metadata := p.Metadata.With("transaction_type", string(p.Type))
	if p.EventID != "" {
		metadata = metadata.With("event_id", p.EventID)
	}
	source := p.Type.EventSource()
	debit := domain.EntryParams{
		UserID:      p.UserID,
		WalletID:    payerWallet,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		EventSource: source,
		ReferenceID: p.ReferenceID,
		Metadata:    metadata,
	}
	credit := debit
	credit.UserID = creditAccount
	credit.WalletID = g.deriver.DeriveWalletID(creditAccount)

	return g.record(ctx, header, debit, credit, domain.JournalEvent{
		UserID:        header.UserID,
		WalletID:      header.WalletID,
		CorrelationID: header.CorrelationID,
		Type:          header.Type,
		AmountCents:   header.AmountCents,
		Currency:      header.Currency,
		Metadata:      metadata,
	})
}

// record writes the pair, then runs the best-effort journal steps for ev.
func (g *Gateway) record(ctx context.Context, header *domain.Transaction, debit, credit domain.EntryParams, ev domain.JournalEvent, hooks ...ledger.TxHook) domain.TransactionResult {
	entries, err := g.writer.CreatePairedEntries(ctx, header, debit, credit, hooks...)
	if err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) && header.IdempotencyKey != "" {
			// Lost a race on the idempotency key; answer with the winner's result.
			if result, done := g.replay(ctx, header.IdempotencyKey); done {
				return result
			}
		}
		if util.IsError(err, util.ErrRefundExceedsOriginal) {
			return domain.FailedResult(domain.FailureRejected, util.ErrRefundExceedsOriginal.Error())
		}
		g.logger.Error("Failed to write ledger entries",
			"correlation_id", header.CorrelationID, "type", header.Type, "error", err)
		return domain.FailedResult(domain.FailureUnavailable, MsgWriteFailed)
	}

	journalID := g.journal.LogEvent(ctx, ev)
	if journalID != "" {
		if err := g.linker.Link(ctx, journal.LinkTarget{
			CorrelationID:  header.CorrelationID,
			JournalEntryID: journalID,
			UserID:         ev.UserID,
			WalletID:       ev.WalletID,
		}); err != nil {
			metrics.JournalFailuresTotal.WithLabelValues("link").Inc()
			g.logger.Warn("Failed to link ledger entries to journal",
				"correlation_id", header.CorrelationID, "journal_entry_id", journalID, "error", err)
		}
	}

	g.logger.Info("Transaction recorded",
		"correlation_id", header.CorrelationID,
		"type", header.Type,
		"amount_cents", header.AmountCents,
		"currency", header.Currency,
		"journaled", journalID != "")

	return domain.TransactionResult{
		TransactionID:  entries[0].ID,
		CorrelationID:  header.CorrelationID,
		JournalEntryID: journalID,
		WalletID:       ev.WalletID,
		Status:         domain.TransactionStatusCompleted,
	}
}

// allow applies the per-account rate limit. A limiter error lets the call through.
func (g *Gateway) allow(ctx context.Context, account string) bool {
	ok, err := g.limiter.Allow(ctx, account)
	if err != nil {
		g.logger.Warn("Rate limiter unavailable, allowing call", "user_id", account, "error", err)
		return true
	}
	if !ok {
		metrics.RateLimitRejections.Inc()
		g.logger.Info("Transaction rate limited", "user_id", account)
	}
	return ok
}

// replay returns the stored result for an idempotency key. done is false when
// no transaction exists under the key.
func (g *Gateway) replay(ctx context.Context, key string) (domain.TransactionResult, bool) {
	tx, err := g.ledgerRepo.GetTransactionByIdempotencyKey(ctx, g.db, key)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return domain.TransactionResult{}, false
		}
		g.logger.Error("Idempotency lookup failed", "error", err)
		return domain.FailedResult(domain.FailureUnavailable, MsgLookupFailed), true
	}

	entries, err := g.ledgerRepo.GetEntriesByCorrelationID(ctx, g.db, tx.CorrelationID)
	if err != nil {
		g.logger.Error("Failed to load replayed entries", "correlation_id", tx.CorrelationID, "error", err)
		return domain.FailedResult(domain.FailureUnavailable, MsgLookupFailed), true
	}

	result := domain.TransactionResult{
		CorrelationID: tx.CorrelationID,
		WalletID:      tx.WalletID,
		Status:        domain.TransactionStatusCompleted,
		Replayed:      true,
	}
	for _, e := range entries {
		if result.JournalEntryID == "" {
			result.JournalEntryID = e.JournalEntryID
		}
		if e.Type == domain.EntryTypeDebit && result.TransactionID == "" {
			result.TransactionID = e.ID
		}
	}
	return result, true
}
