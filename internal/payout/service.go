// internal/payout/service.go
package payout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/journal"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
	"encore-ledger/pkg/db"
)

// Config carries payout policy.
type Config struct {
	ClearingAccount     string
	DefaultCurrency     string
	SupportedCurrencies []string
}

// EntryWriter persists the settlement pair of a completed payout.
type EntryWriter interface {
	CreatePairedEntries(ctx context.Context, header *domain.Transaction, debit, credit domain.EntryParams, hooks ...ledger.TxHook) ([]*domain.LedgerEntry, error)
}

// WalletDeriver maps user ids onto wallet ids.
type WalletDeriver interface {
	DeriveWalletID(userID string) string
}

// JournalLogger writes the advisory journal entry for a completed payout.
type JournalLogger interface {
	LogEvent(ctx context.Context, ev domain.JournalEvent) string
}

// JournalLinker annotates ledger entries with their journal entry.
type JournalLinker interface {
	Link(ctx context.Context, target journal.LinkTarget) error
}

// RequestParams asks for part of an account's balance to be paid out.
type RequestParams struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
}

// Service drives payout requests through their lifecycle. Only completion
// touches the ledger: the account is debited and the clearing account credited.
type Service struct {
	cfg        Config
	dbBeginner db.DBTxBeginner
	db         repository.DBExecutor
	repo       repository.PayoutRepository
	ledgerRepo repository.LedgerRepository
	writer     EntryWriter
	deriver    WalletDeriver
	journal    JournalLogger
	linker     JournalLinker
	beginTx    db.BeginTxFunc
	commitTx   db.CommitTxFunc
	rollbackTx db.RollbackTxFunc
	logger     *slog.Logger
}

// NewService creates a new payout Service.
func NewService(
	cfg Config,
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	repo repository.PayoutRepository,
	ledgerRepo repository.LedgerRepository,
	writer EntryWriter,
	deriver WalletDeriver,
	journalLogger JournalLogger,
	linker JournalLinker,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		dbBeginner: dbBeginner,
		db:         dbExecutor,
		repo:       repo,
		ledgerRepo: ledgerRepo,
		writer:     writer,
		deriver:    deriver,
		journal:    journalLogger,
		linker:     linker,
		beginTx:    beginTx,
		commitTx:   commitTx,
		rollbackTx: rollbackTx,
		logger:     logger,
	}
}

// Request records a pending payout. The amount must be covered by the account's
// balance in the payout currency less the payouts it already has open there.
// Requests for one account are serialized by an account lock.
func (s *Service) Request(ctx context.Context, params RequestParams) (*domain.PayoutRequest, error) {
	accountID := strings.TrimSpace(params.AccountID)
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	var violations []string
	if accountID == "" {
		violations = append(violations, "account_id is required")
	}
	if accountID != "" && accountID == s.cfg.ClearingAccount {
		violations = append(violations, "account_id cannot be the payout clearing account")
	}
	if params.AmountCents <= 0 {
		violations = append(violations, "amount_cents must be greater than zero")
	}
	if !s.currencySupported(currency) {
		violations = append(violations, fmt.Sprintf("currency %s is not supported", currency))
	}
	if err := util.NewValidationError(violations); err != nil {
		return nil, fmt.Errorf("request payout: %w", err)
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("request payout: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("request payout: transaction controller does not implement DBExecutor")
	}

	if err := s.ledgerRepo.LockAccount(ctx, txExecutor, accountID, time.Now()); err != nil {
		return nil, fmt.Errorf("request payout: %w", err)
	}
	credits, debits, err := s.ledgerRepo.GetAccountCurrencyTotals(ctx, txExecutor, accountID, currency)
	if err != nil {
		return nil, fmt.Errorf("request payout: %w", err)
	}
	open, err := s.repo.SumOpenPayouts(ctx, txExecutor, accountID, currency)
	if err != nil {
		return nil, fmt.Errorf("request payout: %w", err)
	}
	available := credits - debits - open
	if params.AmountCents > available {
		return nil, fmt.Errorf("request payout: %w", util.NewValidationError([]string{
			fmt.Sprintf("amount_cents %d exceeds the available balance of %d", params.AmountCents, max(available, 0)),
		}))
	}

	payout := domain.NewPayoutRequest(accountID, params.AmountCents, currency)
	if err := s.repo.CreatePayout(ctx, txExecutor, payout); err != nil {
		return nil, fmt.Errorf("request payout: %w", err)
	}
	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("request payout: failed to commit transaction: %w", err)
	}

	s.logger.Info("Payout requested", "payout_id", payout.ID, "account_id", accountID, "amount_cents", payout.AmountCents)
	return payout, nil
}

// Get returns a payout request by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	payout, err := s.repo.GetPayout(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get payout %s: %w", id, err)
	}
	return payout, nil
}

// Approve clears a pending payout for processing.
func (s *Service) Approve(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return s.transition(ctx, id, domain.PayoutStatusApproved, "")
}

// Reject refuses a payout before it reaches the processor.
func (s *Service) Reject(ctx context.Context, id, reason string) (*domain.PayoutRequest, error) {
	return s.transition(ctx, id, domain.PayoutStatusRejected, reason)
}

// MarkProcessing records that the processor has accepted the transfer.
func (s *Service) MarkProcessing(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	return s.transition(ctx, id, domain.PayoutStatusProcessing, "")
}

// Fail records a processor failure. Nothing was written to the ledger, so the
// amount becomes available again.
func (s *Service) Fail(ctx context.Context, id, reason string) (*domain.PayoutRequest, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "processor reported failure"
	}
	return s.transition(ctx, id, domain.PayoutStatusFailed, reason)
}

// Complete settles a processing payout on the ledger. The status change
// commits with the entries, so a payout is completed exactly once. The write
// is refused with util.ErrInsufficientFunds if it would overdraw the account.
func (s *Service) Complete(ctx context.Context, id, processorTransferID string) (*domain.PayoutRequest, error) {
	payout, err := s.repo.GetPayout(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("complete payout %s: %w", id, err)
	}
	if !payout.Status.CanTransitionTo(domain.PayoutStatusCompleted) {
		return nil, fmt.Errorf("payout %s: %s -> %s: %w", id, payout.Status, domain.PayoutStatusCompleted, util.ErrInvalidTransition)
	}

	started := time.Now()
	now := started.UTC()
	correlationID := ledger.NewCorrelationID(now)
	walletID := s.deriver.DeriveWalletID(payout.AccountID)

	metadata := domain.Metadata{
		"transaction_type":  string(domain.TransactionTypePayout),
		"payout_request_id": payout.ID,
	}
	if processorTransferID != "" {
		metadata["processor_transfer_id"] = processorTransferID
	}
	header := &domain.Transaction{
		CorrelationID:  correlationID,
		UserID:         payout.AccountID,
		WalletID:       walletID,
		CounterpartyID: s.cfg.ClearingAccount,
		Type:           domain.TransactionTypePayout,
		AmountCents:    payout.AmountCents,
		Currency:       payout.Currency,
		Status:         domain.TransactionStatusCompleted,
		CreatedAt:      now,
	}
	debit := domain.EntryParams{
		UserID:      payout.AccountID,
		WalletID:    walletID,
		AmountCents: payout.AmountCents,
		Currency:    payout.Currency,
		EventSource: domain.EventSourcePayout,
		ReferenceID: payout.ID,
		Metadata:    metadata,
	}
	credit := debit
	credit.UserID = s.cfg.ClearingAccount
	credit.WalletID = s.deriver.DeriveWalletID(s.cfg.ClearingAccount)

	_, err = s.writer.CreatePairedEntries(ctx, header, debit, credit, func(ctx context.Context, q repository.DBExecutor) error {
		current, err := s.repo.GetPayout(ctx, q, id)
		if err != nil {
			return err
		}
		if current.Status != domain.PayoutStatusProcessing {
			return fmt.Errorf("payout %s is %s: %w", id, current.Status, util.ErrInvalidTransition)
		}
		if err := s.ledgerRepo.LockAccount(ctx, q, current.AccountID, now); err != nil {
			return err
		}
		credits, debits, err := s.ledgerRepo.GetAccountCurrencyTotals(ctx, q, current.AccountID, current.Currency)
		if err != nil {
			return err
		}
		if balance := credits - debits; balance < 0 {
			return fmt.Errorf("payout %s would overdraw %s by %d %s: %w",
				id, current.AccountID, -balance, current.Currency, util.ErrInsufficientFunds)
		}

		current.Status = domain.PayoutStatusCompleted
		current.CorrelationID = correlationID
		current.UpdatedAt = now
		if err := s.repo.UpdatePayout(ctx, q, current); err != nil {
			return err
		}
		payout = current
		return nil
	})
	if err != nil {
		metrics.ObserveTransaction(string(domain.TransactionTypePayout), string(domain.TransactionStatusFailed), started)
		return nil, fmt.Errorf("complete payout %s: %w", id, err)
	}
	metrics.ObserveTransaction(string(domain.TransactionTypePayout), string(domain.TransactionStatusCompleted), started)

	journalID := s.journal.LogEvent(ctx, domain.JournalEvent{
		UserID:        payout.AccountID,
		WalletID:      walletID,
		CorrelationID: correlationID,
		Type:          domain.TransactionTypePayout,
		AmountCents:   payout.AmountCents,
		Currency:      payout.Currency,
		Metadata:      metadata,
	})
	if journalID != "" {
		if err := s.linker.Link(ctx, journal.LinkTarget{
			CorrelationID:  correlationID,
			JournalEntryID: journalID,
			UserID:         payout.AccountID,
			WalletID:       walletID,
		}); err != nil {
			metrics.JournalFailuresTotal.WithLabelValues("link").Inc()
			s.logger.Warn("Failed to link payout to journal", "correlation_id", correlationID, "error", err)
		}
	}

	s.logger.Info("Payout completed", "payout_id", id, "correlation_id", correlationID, "amount_cents", payout.AmountCents)
	return payout, nil
}

func (s *Service) transition(ctx context.Context, id string, to domain.PayoutStatus, reason string) (*domain.PayoutRequest, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("payout %s -> %s: failed to begin transaction: %w", id, to, err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("payout %s -> %s: transaction controller does not implement DBExecutor", id, to)
	}

	payout, err := s.repo.GetPayout(ctx, txExecutor, id)
	if err != nil {
		return nil, fmt.Errorf("payout %s -> %s: %w", id, to, err)
	}
	if !payout.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("payout %s: %s -> %s: %w", id, payout.Status, to, util.ErrInvalidTransition)
	}

	from := payout.Status
	payout.Status = to
	if reason != "" {
		payout.FailureReason = strings.TrimSpace(reason)
	}
	payout.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdatePayout(ctx, txExecutor, payout); err != nil {
		return nil, fmt.Errorf("payout %s -> %s: %w", id, to, err)
	}
	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("payout %s -> %s: failed to commit transaction: %w", id, to, err)
	}

	s.logger.Info("Payout status changed", "payout_id", id, "from", from, "to", to)
	return payout, nil
}

func (s *Service) currencySupported(currency string) bool {
	if len(s.cfg.SupportedCurrencies) == 0 {
		return currency != ""
	}
	for _, c := range s.cfg.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}
