// internal/attribution/service.go
package attribution

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

// Config names the account referral rewards are paid from.
type Config struct {
	FundingAccount string
}

// EntryWriter persists the settlement pair of an attribution.
type EntryWriter interface {
	CreatePairedEntries(ctx context.Context, header *domain.Transaction, debit, credit domain.EntryParams, hooks ...ledger.TxHook) ([]*domain.LedgerEntry, error)
}

// WalletDeriver maps user ids onto wallet ids.
type WalletDeriver interface {
	DeriveWalletID(userID string) string
}

// JournalLogger writes the advisory journal entry for a settlement.
type JournalLogger interface {
	LogEvent(ctx context.Context, ev domain.JournalEvent) string
}

// JournalLinker annotates ledger entries with their journal entry.
type JournalLinker interface {
	Link(ctx context.Context, target journal.LinkTarget) error
}

// RecordParams attributes part of a completed transaction to a referrer.
type RecordParams struct {
	ReferrerID          string `json:"referrer_id"`
	ReferredUserID      string `json:"referred_user_id"`
	SourceCorrelationID string `json:"source_correlation_id"`
	AmountCents         int64  `json:"amount_cents"`
}

// Service tracks referral attributions and settles them on the ledger.
type Service struct {
	cfg        Config
	dbBeginner db.DBTxBeginner
	db         repository.DBExecutor
	repo       repository.AttributionRepository
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

// NewService creates a new attribution Service.
func NewService(
	cfg Config,
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	repo repository.AttributionRepository,
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

// Record stores a pending attribution. The source must be a completed charge
// made by the referred user, and the reward cannot exceed it.
func (s *Service) Record(ctx context.Context, params RecordParams) (*domain.AttributionEntry, error) {
	referrer := strings.TrimSpace(params.ReferrerID)
	referred := strings.TrimSpace(params.ReferredUserID)
	sourceID := strings.TrimSpace(params.SourceCorrelationID)

	var violations []string
	if referrer == "" {
		violations = append(violations, "referrer_id is required")
	}
	if referred == "" {
		violations = append(violations, "referred_user_id is required")
	}
	if referrer != "" && referrer == referred {
		violations = append(violations, "referrer_id must differ from referred_user_id")
	}
	if sourceID == "" {
		violations = append(violations, "source_correlation_id is required")
	}
	if params.AmountCents <= 0 {
		violations = append(violations, "amount_cents must be greater than zero")
	}
	if err := util.NewValidationError(violations); err != nil {
		return nil, fmt.Errorf("record attribution: %w", err)
	}

	source, err := s.ledgerRepo.GetTransaction(ctx, s.db, sourceID)
	if err != nil {
		return nil, fmt.Errorf("record attribution: source transaction %s: %w", sourceID, err)
	}
	if source.Type.EventSource() != domain.EventSourceCharge {
		violations = append(violations, fmt.Sprintf("source transaction is a %s, not a charge", source.Type))
	}
	if source.UserID != referred {
		violations = append(violations, "source transaction was not made by the referred user")
	}
	if params.AmountCents > source.AmountCents {
		violations = append(violations, fmt.Sprintf("amount_cents must not exceed the source amount of %d", source.AmountCents))
	}
	if err := util.NewValidationError(violations); err != nil {
		return nil, fmt.Errorf("record attribution: %w", err)
	}

	entry := domain.NewAttributionEntry(referrer, referred, sourceID, params.AmountCents, source.Currency)
	if err := s.repo.CreateAttribution(ctx, s.db, entry); err != nil {
		return nil, fmt.Errorf("record attribution: %w", err)
	}
	s.logger.Info("Attribution recorded", "attribution_id", entry.ID, "referrer_id", referrer, "source_correlation_id", sourceID)
	return entry, nil
}

// Get returns an attribution by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.AttributionEntry, error) {
	entry, err := s.repo.GetAttribution(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get attribution %s: %w", id, err)
	}
	return entry, nil
}

// Dispute holds a pending attribution back from settlement.
func (s *Service) Dispute(ctx context.Context, id string) (*domain.AttributionEntry, error) {
	return s.transition(ctx, id, domain.AttributionStatusDisputed)
}

// Reinstate returns a disputed attribution to pending.
func (s *Service) Reinstate(ctx context.Context, id string) (*domain.AttributionEntry, error) {
	return s.transition(ctx, id, domain.AttributionStatusPending)
}

// Expire closes an attribution without paying it.
func (s *Service) Expire(ctx context.Context, id string) (*domain.AttributionEntry, error) {
	return s.transition(ctx, id, domain.AttributionStatusExpired)
}

// Settle pays a pending attribution: the funding account is debited and the
// referrer credited, and the attribution is marked settled in the same write.
func (s *Service) Settle(ctx context.Context, id string) (*domain.AttributionEntry, error) {
	entry, err := s.repo.GetAttribution(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("settle attribution %s: %w", id, err)
	}
	if !entry.Status.CanTransitionTo(domain.AttributionStatusSettled) {
		return nil, fmt.Errorf("attribution %s: %s -> %s: %w", id, entry.Status, domain.AttributionStatusSettled, util.ErrInvalidTransition)
	}

	started := time.Now()
	now := started.UTC()
	correlationID := ledger.NewCorrelationID(now)
	fundingWallet := s.deriver.DeriveWalletID(s.cfg.FundingAccount)
	referrerWallet := s.deriver.DeriveWalletID(entry.ReferrerID)

	metadata := domain.Metadata{
		"transaction_type":      string(domain.TransactionTypeAttribution),
		"attribution_id":        entry.ID,
		"source_correlation_id": entry.SourceCorrelationID,
	}
	header := &domain.Transaction{
		CorrelationID:  correlationID,
		UserID:         s.cfg.FundingAccount,
		WalletID:       fundingWallet,
		CounterpartyID: entry.ReferrerID,
		Type:           domain.TransactionTypeAttribution,
		AmountCents:    entry.AmountCents,
		Currency:       entry.Currency,
		Status:         domain.TransactionStatusCompleted,
		CreatedAt:      now,
	}
	debit := domain.EntryParams{
		UserID:      s.cfg.FundingAccount,
		WalletID:    fundingWallet,
		AmountCents: entry.AmountCents,
		Currency:    entry.Currency,
		EventSource: domain.EventSourceAttribution,
		ReferenceID: entry.SourceCorrelationID,
		Metadata:    metadata,
	}
	credit := debit
	credit.UserID = entry.ReferrerID
	credit.WalletID = referrerWallet

	_, err = s.writer.CreatePairedEntries(ctx, header, debit, credit, func(ctx context.Context, q repository.DBExecutor) error {
		current, err := s.repo.GetAttribution(ctx, q, id)
		if err != nil {
			return err
		}
		if current.Status != domain.AttributionStatusPending {
			return fmt.Errorf("attribution %s is %s: %w", id, current.Status, util.ErrInvalidTransition)
		}
		current.Status = domain.AttributionStatusSettled
		current.SettlementCorrelationID = correlationID
		current.UpdatedAt = now
		if err := s.repo.UpdateAttribution(ctx, q, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		metrics.ObserveTransaction(string(domain.TransactionTypeAttribution), string(domain.TransactionStatusFailed), started)
		return nil, fmt.Errorf("settle attribution %s: %w", id, err)
	}
	metrics.ObserveTransaction(string(domain.TransactionTypeAttribution), string(domain.TransactionStatusCompleted), started)

	journalID := s.journal.LogEvent(ctx, domain.JournalEvent{
		UserID:        entry.ReferrerID,
		WalletID:      referrerWallet,
		CorrelationID: correlationID,
		Type:          domain.TransactionTypeAttribution,
		AmountCents:   entry.AmountCents,
		Currency:      entry.Currency,
		Metadata:      metadata,
	})
	if journalID != "" {
		if err := s.linker.Link(ctx, journal.LinkTarget{
			CorrelationID:  correlationID,
			JournalEntryID: journalID,
			UserID:         entry.ReferrerID,
			WalletID:       referrerWallet,
		}); err != nil {
			metrics.JournalFailuresTotal.WithLabelValues("link").Inc()
			s.logger.Warn("Failed to link attribution to journal", "correlation_id", correlationID, "error", err)
		}
	}

	s.logger.Info("Attribution settled", "attribution_id", id, "correlation_id", correlationID, "amount_cents", entry.AmountCents)
	return entry, nil
}

func (s *Service) transition(ctx context.Context, id string, to domain.AttributionStatus) (*domain.AttributionEntry, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("attribution %s -> %s: failed to begin transaction: %w", id, to, err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("attribution %s -> %s: transaction controller does not implement DBExecutor", id, to)
	}

	entry, err := s.repo.GetAttribution(ctx, txExecutor, id)
	if err != nil {
		return nil, fmt.Errorf("attribution %s -> %s: %w", id, to, err)
	}
	if !entry.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("attribution %s: %s -> %s: %w", id, entry.Status, to, util.ErrInvalidTransition)
	}

	from := entry.Status
	entry.Status = to
	entry.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateAttribution(ctx, txExecutor, entry); err != nil {
		return nil, fmt.Errorf("attribution %s -> %s: %w", id, to, err)
	}
	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("attribution %s -> %s: failed to commit transaction: %w", id, to, err)
	}

	s.logger.Info("Attribution status changed", "attribution_id", id, "from", from, "to", to)
	return entry, nil
}
