// internal/split/service.go
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/journal"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
	"encore-ledger/pkg/db"
)

// Config carries split policy.
type Config struct {
	ReserveAccount       string
	PlatformFloorPercent decimal.Decimal
	DefaultCurrency      string
}

// EntryWriter persists balanced N-way entry sets.
type EntryWriter interface {
	CreateEntries(ctx context.Context, header *domain.Transaction, entries []*domain.LedgerEntry, hooks ...ledger.TxHook) error
}

// WalletDeriver maps user ids onto wallet ids.
type WalletDeriver interface {
	DeriveWalletID(userID string) string
}

// JournalLogger writes the advisory journal entry for a distribution.
type JournalLogger interface {
	LogEvent(ctx context.Context, ev domain.JournalEvent) string
}

// JournalLinker annotates ledger entries with their journal entry.
type JournalLinker interface {
	Link(ctx context.Context, target journal.LinkTarget) error
}

// CreateParams describes a new split contract. It doubles as the YAML template format.
type CreateParams struct {
	Name             string              `json:"name" yaml:"name"`
	Parties          []domain.SplitParty `json:"parties" yaml:"parties"`
	Rules            []domain.SplitRule  `json:"rules,omitempty" yaml:"rules,omitempty"`
	Currency         string              `json:"currency,omitempty" yaml:"currency,omitempty"`
	TotalAmountCents int64               `json:"total_amount_cents,omitempty" yaml:"total_amount_cents,omitempty"`
}

// Distribution is the outcome of one Distribute call.
type Distribution struct {
	Result   domain.TransactionResult `json:"result"`
	Shares   []domain.Share           `json:"shares"`
	Contract *domain.SplitContract    `json:"contract,omitempty"`
}

// Service manages split contracts and writes their distributions to the ledger.
type Service struct {
	cfg        Config
	dbBeginner db.DBTxBeginner
	db         repository.DBExecutor
	repo       repository.SplitContractRepository
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

// NewService creates a new split Service.
func NewService(
	cfg Config,
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	repo repository.SplitContractRepository,
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

// Create stores a draft contract. Percentages are only enforced on activation,
// but every party must already be well formed.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.SplitContract, error) {
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if params.TotalAmountCents < 0 {
		return nil, fmt.Errorf("create split: %w", util.NewValidationError([]string{"total_amount_cents must not be negative"}))
	}

	now := time.Now().UTC()
	contract := &domain.SplitContract{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(params.Name),
		Parties:          params.Parties,
		Rules:            params.Rules,
		Status:           domain.SplitStatusDraft,
		Currency:         currency,
		TotalAmountCents: params.TotalAmountCents,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if contract.Parties == nil {
		contract.Parties = domain.SplitParties{}
	}
	if contract.Rules == nil {
		contract.Rules = domain.SplitRules{}
	}
	if err := validateDraft(contract); err != nil {
		return nil, fmt.Errorf("create split: %w", err)
	}

	if err := s.repo.CreateContract(ctx, s.db, contract); err != nil {
		return nil, fmt.Errorf("create split: %w", err)
	}
	s.logger.Info("Split contract created", "contract_id", contract.ID, "parties", len(contract.Parties))
	return contract, nil
}

// validateDraft rejects malformed parties without requiring the terms to be final.
func validateDraft(c *domain.SplitContract) error {
	err := ValidateTerms(c, decimal.Zero)
	var verr *util.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	var kept []string
	for _, msg := range verr.Errors {
		if strings.HasPrefix(msg, "party ") || strings.HasPrefix(msg, "name ") || strings.HasPrefix(msg, "at least one") {
			kept = append(kept, msg)
		}
	}
	return util.NewValidationError(kept)
}

// Get returns a contract by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.SplitContract, error) {
	contract, err := s.repo.GetContract(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get split %s: %w", id, err)
	}
	return contract, nil
}

// Activate moves a draft (or resolved) contract to active after checking its terms.
func (s *Service) Activate(ctx context.Context, id string) (*domain.SplitContract, error) {
	return s.transition(ctx, id, domain.SplitStatusActive, func(c *domain.SplitContract) error {
		return ValidateTerms(c, s.cfg.PlatformFloorPercent)
	})
}

// Complete closes an active contract.
func (s *Service) Complete(ctx context.Context, id string) (*domain.SplitContract, error) {
	return s.transition(ctx, id, domain.SplitStatusCompleted, nil)
}

// Dispute freezes an active contract; no distributions are accepted while disputed.
func (s *Service) Dispute(ctx context.Context, id string) (*domain.SplitContract, error) {
	return s.transition(ctx, id, domain.SplitStatusDisputed, nil)
}

// Resolve reactivates a disputed contract.
func (s *Service) Resolve(ctx context.Context, id string) (*domain.SplitContract, error) {
	return s.transition(ctx, id, domain.SplitStatusActive, func(c *domain.SplitContract) error {
		if c.Status != domain.SplitStatusDisputed {
			return fmt.Errorf("contract %s is %s, not disputed: %w", c.ID, c.Status, util.ErrInvalidTransition)
		}
		return nil
	})
}

// Cancel abandons a contract that has not completed.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.SplitContract, error) {
	return s.transition(ctx, id, domain.SplitStatusCancelled, nil)
}

func (s *Service) transition(ctx context.Context, id string, to domain.SplitStatus, check func(*domain.SplitContract) error) (*domain.SplitContract, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("split %s -> %s: failed to begin transaction: %w", id, to, err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("split %s -> %s: transaction controller does not implement DBExecutor", id, to)
	}

	contract, err := s.repo.GetContract(ctx, txExecutor, id)
	if err != nil {
		return nil, fmt.Errorf("split %s -> %s: %w", id, to, err)
	}
	if !contract.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("split %s: %s -> %s: %w", id, contract.Status, to, util.ErrInvalidTransition)
	}
	if check != nil {
		if err := check(contract); err != nil {
			return nil, fmt.Errorf("split %s -> %s: %w", id, to, err)
		}
	}

	from := contract.Status
	contract.Status = to
	contract.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateContract(ctx, txExecutor, contract); err != nil {
		return nil, fmt.Errorf("split %s -> %s: %w", id, to, err)
	}
	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("split %s -> %s: failed to commit transaction: %w", id, to, err)
	}

	s.logger.Info("Split contract status changed", "contract_id", id, "from", from, "to", to)
	return contract, nil
}
