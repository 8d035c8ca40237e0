// internal/reconcile/validator.go
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/repository"
)

// Options selects the optional parts of a balance check.
type Options struct {
	PerTransaction bool
}

// Validator checks the ledger's invariants. It only reads.
type Validator struct {
	db           repository.DBExecutor
	ledgerRepo   repository.LedgerRepository
	settleWindow time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewValidator creates a Validator. Imbalances younger than settleWindow are
// reported for recheck instead of as a failure.
func NewValidator(db repository.DBExecutor, ledgerRepo repository.LedgerRepository, settleWindow time.Duration, logger *slog.Logger) *Validator {
	return &Validator{
		db:           db,
		ledgerRepo:   ledgerRepo,
		settleWindow: settleWindow,
		logger:       logger,
		now:          time.Now,
	}
}

// ValidateLedgerBalance sums credits and debits across the ledger, per currency
// and, on request, per correlation id.
func (v *Validator) ValidateLedgerBalance(ctx context.Context, opts Options) (*domain.BalanceReport, error) {
	report := &domain.BalanceReport{CheckedAt: v.now().UTC()}

	totals, err := v.ledgerRepo.GetCurrencyTotals(ctx, v.db)
	if err != nil {
		return nil, fmt.Errorf("validate ledger: %w", err)
	}
	report.ByCurrency = totals
	metrics.LedgerImbalanceCents.Reset()
	for _, t := range totals {
		imbalance := t.Imbalance()
		metrics.LedgerImbalanceCents.WithLabelValues(t.Currency).Set(float64(imbalance))
		if imbalance == 0 {
			continue
		}
		report.ImbalancedCurrencies = append(report.ImbalancedCurrencies, t.Currency)
		if imbalance < 0 {
			imbalance = -imbalance
		}
		report.TotalImbalance += imbalance
	}

	incomplete, err := v.ledgerRepo.ListIncompleteTransactions(ctx, v.db)
	if err != nil {
		return nil, fmt.Errorf("validate ledger: %w", err)
	}
	report.IncompleteTransactions = incomplete

	// Any imbalanced currency is localized, so young discrepancies can be told apart.
	settledImbalances := 0
	if opts.PerTransaction || len(report.ImbalancedCurrencies) > 0 {
		imbalances, err := v.ledgerRepo.GetImbalancedTransactions(ctx, v.db)
		if err != nil {
			return nil, fmt.Errorf("validate ledger: %w", err)
		}
		for i := range imbalances {
			last, err := v.ledgerRepo.GetLastEntryTime(ctx, v.db, imbalances[i].CorrelationID)
			if err != nil {
				return nil, fmt.Errorf("validate ledger: %w", err)
			}
			imbalances[i].LastEntryAt = last
			if report.CheckedAt.Sub(last) < v.settleWindow {
				imbalances[i].Recheck = true
				report.Recheck = true
			} else {
				settledImbalances++
			}
		}
		if opts.PerTransaction {
			report.PerTransaction = imbalances
		}
	}
	report.IsBalanced = len(report.ImbalancedCurrencies) == 0 && len(incomplete) == 0 && settledImbalances == 0

	if !report.IsBalanced {
		v.logger.Warn("Ledger imbalance detected",
			"total_imbalance_cents", report.TotalImbalance,
			"imbalanced_currencies", report.ImbalancedCurrencies,
			"settled_imbalances", settledImbalances,
			"incomplete_transactions", len(incomplete),
			"recheck", report.Recheck)
	}
	return report, nil
}

// GetUserBalance returns credits minus debits for one account.
func (v *Validator) GetUserBalance(ctx context.Context, accountID string) (int64, error) {
	credits, debits, err := v.ledgerRepo.GetAccountTotals(ctx, v.db, accountID)
	if err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", accountID, err)
	}
	return credits - debits, nil
}
