// internal/ledger/writer.go
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
	"encore-ledger/pkg/db"
)

// TxHook runs inside the write transaction after the header and entries are
// inserted. A hook error rolls the whole write back.
type TxHook func(ctx context.Context, q repository.DBExecutor) error

// Writer is the only component that inserts ledger rows. Every call writes a
// transaction header and all of its entries in one database transaction.
type Writer struct {
	dbBeginner db.DBTxBeginner
	ledgerRepo repository.LedgerRepository
	beginTx    db.BeginTxFunc
	commitTx   db.CommitTxFunc
	rollbackTx db.RollbackTxFunc
	timeout    time.Duration
	logger     *slog.Logger
}

// NewWriter creates a Writer. A zero timeout leaves the caller's deadline untouched.
func NewWriter(
	dbBeginner db.DBTxBeginner,
	ledgerRepo repository.LedgerRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	timeout time.Duration,
	logger *slog.Logger,
) *Writer {
	return &Writer{
		dbBeginner: dbBeginner,
		ledgerRepo: ledgerRepo,
		beginTx:    beginTx,
		commitTx:   commitTx,
		rollbackTx: rollbackTx,
		timeout:    timeout,
		logger:     logger,
	}
}

// CreatePairedEntries writes a debit of the debit account and a credit of the
// credit account for the same amount under header's correlation id.
func (w *Writer) CreatePairedEntries(ctx context.Context, header *domain.Transaction, debit, credit domain.EntryParams, hooks ...TxHook) ([]*domain.LedgerEntry, error) {
	entries := []*domain.LedgerEntry{
		domain.NewLedgerEntry(debit, domain.EntryTypeDebit, header.CorrelationID, header.CreatedAt),
		domain.NewLedgerEntry(credit, domain.EntryTypeCredit, header.CorrelationID, header.CreatedAt),
	}
	if err := w.CreateEntries(ctx, header, entries, hooks...); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateEntries validates an N-way entry set and writes it atomically with its header.
func (w *Writer) CreateEntries(ctx context.Context, header *domain.Transaction, entries []*domain.LedgerEntry, hooks ...TxHook) error {
	if err := ValidateEntries(header, entries); err != nil {
		return fmt.Errorf("create entries: %w", err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	txController, err := w.beginTx(ctx, w.dbBeginner)
	if err != nil {
		return fmt.Errorf("create entries: failed to begin transaction: %w: %w", util.ErrWriteFailure, err)
	}
	defer w.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return fmt.Errorf("create entries: transaction controller does not implement DBExecutor: %w", util.ErrWriteFailure)
	}

	if err := w.ledgerRepo.InsertTransaction(ctx, txExecutor, header); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			return fmt.Errorf("create entries: %w", err)
		}
		return fmt.Errorf("create entries: %w: %w", util.ErrWriteFailure, err)
	}
	for _, entry := range entries {
		if err := w.ledgerRepo.InsertEntry(ctx, txExecutor, entry); err != nil {
			w.logger.Error("Ledger entry insert failed, rolling back",
				"correlation_id", header.CorrelationID, "entry_id", entry.ID, "error", err)
			return fmt.Errorf("create entries: %w: %w", util.ErrWriteFailure, err)
		}
	}
	for _, hook := range hooks {
		if err := hook(ctx, txExecutor); err != nil {
			return fmt.Errorf("create entries: %w", err)
		}
	}

	if err := w.commitTx(txController); err != nil {
		return fmt.Errorf("create entries: failed to commit transaction: %w: %w", util.ErrWriteFailure, err)
	}

	w.logger.Debug("Ledger entries written",
		"correlation_id", header.CorrelationID, "type", header.Type, "entries", len(entries))
	return nil
}

// ValidateEntries checks that entries form a complete, balanced, single-currency
// set belonging to header.
func ValidateEntries(header *domain.Transaction, entries []*domain.LedgerEntry) error {
	if header == nil || header.CorrelationID == "" {
		return util.NewValidationError([]string{"transaction header with a correlation id is required"})
	}
	if len(entries) < 2 {
		return util.NewValidationError([]string{fmt.Sprintf("at least 2 entries are required, got %d", len(entries))})
	}

	var violations []string
	var credits, debits int64
	var hasDebit, hasCredit bool
	for i, e := range entries {
		if e.AmountCents <= 0 {
			violations = append(violations, fmt.Sprintf("entry %d: amount must be positive", i))
		}
		if e.Currency != header.Currency {
			violations = append(violations, fmt.Sprintf("entry %d: currency %s does not match %s", i, e.Currency, header.Currency))
		}
		if e.CorrelationID != header.CorrelationID {
			violations = append(violations, fmt.Sprintf("entry %d: correlation id does not match header", i))
		}
		if e.UserID == "" {
			violations = append(violations, fmt.Sprintf("entry %d: account is required", i))
		}
		for _, v := range e.Metadata.Validate(e.EventSource) {
			violations = append(violations, fmt.Sprintf("entry %d: %s", i, v))
		}
		switch e.Type {
		case domain.EntryTypeDebit:
			hasDebit = true
			debits += e.AmountCents
		case domain.EntryTypeCredit:
			hasCredit = true
			credits += e.AmountCents
		default:
			violations = append(violations, fmt.Sprintf("entry %d: unknown entry type %q", i, e.Type))
		}
	}
	if !hasDebit || !hasCredit {
		violations = append(violations, "entries must contain at least one debit and one credit")
	}
	if err := util.NewValidationError(violations); err != nil {
		return err
	}
	if credits != debits {
		return fmt.Errorf("%w: credits %d, debits %d", util.ErrUnbalanced, credits, debits)
	}
	return nil
}
