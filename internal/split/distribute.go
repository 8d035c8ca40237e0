// internal/split/distribute.go
package split

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/journal"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
)

// Distribute pays gross out of the platform reserve to the contract's parties
// under one correlation id. The ledger write and the distributed_cents update
// commit together; reaching the contract total completes the contract.
func (s *Service) Distribute(ctx context.Context, contractID string, gross int64, idempotencyKey string) (*Distribution, error) {
	if gross <= 0 {
		return nil, fmt.Errorf("distribute: %w", util.NewValidationError([]string{"amount_cents must be greater than zero"}))
	}

	if idempotencyKey != "" {
		if d, err := s.replay(ctx, idempotencyKey); err == nil {
			return d, nil
		} else if !util.IsError(err, util.ErrNotFound) {
			return nil, fmt.Errorf("distribute: %w", err)
		}
	}

	contract, err := s.repo.GetContract(ctx, s.db, contractID)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	if contract.Status != domain.SplitStatusActive {
		return nil, fmt.Errorf("distribute: contract %s is %s: %w", contractID, contract.Status, util.ErrSplitInvalid)
	}
	if contract.TotalAmountCents > 0 && contract.DistributedCents+gross > contract.TotalAmountCents {
		return nil, fmt.Errorf("distribute: %d exceeds the %d left on contract %s: %w",
			gross, contract.TotalAmountCents-contract.DistributedCents, contractID, util.ErrSplitInvalid)
	}

	shares, err := ComputeShares(contract, gross)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	if err := s.checkFloor(contract, shares, gross); err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}

	now := time.Now().UTC()
	correlationID := ledger.NewCorrelationID(now)
	reserveWallet := s.deriver.DeriveWalletID(s.cfg.ReserveAccount)
	header := &domain.Transaction{
		CorrelationID:  correlationID,
		IdempotencyKey: idempotencyKey,
		UserID:         s.cfg.ReserveAccount,
		WalletID:       reserveWallet,
		CounterpartyID: contract.ID,
		Type:           domain.TransactionTypeSplit,
		AmountCents:    gross,
		Currency:       contract.Currency,
		Status:         domain.TransactionStatusCompleted,
		CreatedAt:      now,
	}

	base := domain.Metadata{
		"transaction_type": string(domain.TransactionTypeSplit),
		"contract_id":      contract.ID,
	}
	entries := []*domain.LedgerEntry{
		domain.NewLedgerEntry(domain.EntryParams{
			UserID:      s.cfg.ReserveAccount,
			WalletID:    reserveWallet,
			AmountCents: gross,
			Currency:    contract.Currency,
			EventSource: domain.EventSourceSplitDistribution,
			ReferenceID: contract.ID,
			Metadata:    base,
		}, domain.EntryTypeDebit, correlationID, now),
	}
	for _, share := range shares {
		if share.AmountCents == 0 {
			continue
		}
		entries = append(entries, domain.NewLedgerEntry(domain.EntryParams{
			UserID:      share.AccountID,
			WalletID:    s.deriver.DeriveWalletID(share.AccountID),
			AmountCents: share.AmountCents,
			Currency:    contract.Currency,
			EventSource: domain.EventSourceSplitDistribution,
			ReferenceID: contract.ID,
			Metadata:    base.With("role", share.Role),
		}, domain.EntryTypeCredit, correlationID, now))
	}

	err = s.writer.CreateEntries(ctx, header, entries, func(ctx context.Context, q repository.DBExecutor) error {
		if err := s.repo.IncrementDistributed(ctx, q, contract.ID, gross, now); err != nil {
			return err
		}
		updated, err := s.repo.GetContract(ctx, q, contract.ID)
		if err != nil {
			return err
		}
		if updated.TotalAmountCents > 0 && updated.DistributedCents == updated.TotalAmountCents {
			updated.Status = domain.SplitStatusCompleted
			updated.UpdatedAt = now
			if err := s.repo.UpdateContract(ctx, q, updated); err != nil {
				return err
			}
		}
		contract = updated
		return nil
	})
	if err != nil {
		if idempotencyKey != "" && util.IsError(err, util.ErrDuplicateEntry) {
			return s.replay(ctx, idempotencyKey)
		}
		return nil, fmt.Errorf("distribute: %w", err)
	}
	metrics.SplitDistributedCents.WithLabelValues(contract.Currency).Add(float64(gross))

	journalID := s.journal.LogEvent(ctx, domain.JournalEvent{
		UserID:        s.cfg.ReserveAccount,
		WalletID:      reserveWallet,
		CorrelationID: correlationID,
		Type:          domain.TransactionTypeSplit,
		AmountCents:   gross,
		Currency:      contract.Currency,
		Metadata:      base,
	})
	if journalID != "" {
		if err := s.linker.Link(ctx, journal.LinkTarget{
			CorrelationID:  correlationID,
			JournalEntryID: journalID,
			UserID:         s.cfg.ReserveAccount,
			WalletID:       reserveWallet,
		}); err != nil {
			metrics.JournalFailuresTotal.WithLabelValues("link").Inc()
			s.logger.Warn("Failed to link distribution to journal", "correlation_id", correlationID, "error", err)
		}
	}

	s.logger.Info("Split distributed",
		"contract_id", contract.ID, "correlation_id", correlationID, "gross_cents", gross, "status", contract.Status)

	return &Distribution{
		Result: domain.TransactionResult{
			TransactionID:  entries[0].ID,
			CorrelationID:  correlationID,
			JournalEntryID: journalID,
			WalletID:       reserveWallet,
			Status:         domain.TransactionStatusCompleted,
		},
		Shares:   shares,
		Contract: contract,
	}, nil
}

// checkFloor keeps the platform's share at or above the floor after minimum top-ups.
func (s *Service) checkFloor(contract *domain.SplitContract, shares []domain.Share, gross int64) error {
	floorCents := s.cfg.PlatformFloorPercent.Mul(decimal.NewFromInt(gross)).Div(hundred).Floor().IntPart()
	for _, share := range shares {
		if share.Role == domain.PlatformRole && share.AmountCents < floorCents {
			return fmt.Errorf("platform share %d is below the floor of %d on contract %s: %w",
				share.AmountCents, floorCents, contract.ID, util.ErrSplitInvalid)
		}
	}
	return nil
}

// replay rebuilds the outcome of an earlier distribution from its ledger rows.
func (s *Service) replay(ctx context.Context, key string) (*Distribution, error) {
	tx, err := s.ledgerRepo.GetTransactionByIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if tx.Type != domain.TransactionTypeSplit {
		return nil, fmt.Errorf("idempotency key %q belongs to a %s transaction: %w", key, tx.Type, util.ErrDuplicateEntry)
	}
	entries, err := s.ledgerRepo.GetEntriesByCorrelationID(ctx, s.db, tx.CorrelationID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("replayed distribution has no entries")
	}

	d := &Distribution{Result: domain.TransactionResult{
		TransactionID:  entries[0].ID,
		CorrelationID:  tx.CorrelationID,
		JournalEntryID: entries[0].JournalEntryID,
		WalletID:       tx.WalletID,
		Status:         domain.TransactionStatusCompleted,
		Replayed:       true,
	}}
	for _, e := range entries {
		if e.Type == domain.EntryTypeCredit {
			d.Shares = append(d.Shares, domain.Share{Role: e.Metadata["role"], AccountID: e.UserID, AmountCents: e.AmountCents})
		}
	}
	if contract, err := s.repo.GetContract(ctx, s.db, tx.CounterpartyID); err == nil {
		d.Contract = contract
	}
	return d, nil
}
