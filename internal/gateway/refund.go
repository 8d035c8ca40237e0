// internal/gateway/refund.go
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/ledger"
	"encore-ledger/internal/metrics"
	"encore-ledger/internal/repository"
	"encore-ledger/internal/util"
)

// ProcessRefund records an offsetting pair against a completed transaction:
// the originally credited account is debited and the payer credited. A zero
// amount refunds whatever is still refundable.
func (g *Gateway) ProcessRefund(ctx context.Context, params domain.RefundParams) domain.TransactionResult {
	started := time.Now()
	result := g.validateRefund(params)
	if result.Status == "" && params.IdempotencyKey != "" {
		result, _ = g.replay(ctx, params.IdempotencyKey)
	}
	if result.Status == "" {
		result = g.processRefund(ctx, params, nil)
	}
	metrics.ObserveTransaction(string(domain.TransactionTypeRefund), string(result.Status), started)
	return result
}

func (g *Gateway) validateRefund(params domain.RefundParams) domain.TransactionResult {
	var errs []string
	if strings.TrimSpace(params.OriginalCorrelationID) == "" {
		errs = append(errs, "original_correlation_id is required")
	}
	if params.AmountCents < 0 {
		errs = append(errs, "amount_cents must not be negative")
	}
	errs = append(errs, params.Metadata.Validate(domain.EventSourceRefund)...)
	if err := util.NewValidationError(errs); err != nil {
		return domain.FailedResult(domain.FailureValidation, err.Error())
	}
	return domain.TransactionResult{}
}

// refundRequester is the submitter of a refund sent through ProcessTransaction.
// Currency is empty when the request did not name one.
type refundRequester struct {
	UserID   string
	Currency string
}

// processRefund writes the refund. A non-nil requester must be the original
// payer, in the original currency.
func (g *Gateway) processRefund(ctx context.Context, params domain.RefundParams, requester *refundRequester) domain.TransactionResult {
	originalID := strings.TrimSpace(params.OriginalCorrelationID)

	original, err := g.ledgerRepo.GetTransaction(ctx, g.db, originalID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return domain.FailedResult(domain.FailureRejected, "original transaction not found")
		}
		g.logger.Error("Failed to load original transaction", "correlation_id", originalID, "error", err)
		return domain.FailedResult(domain.FailureUnavailable, MsgLookupFailed)
	}
	if !refundable(original) {
		return domain.FailedResult(domain.FailureRejected, MsgNotRefundable)
	}
	if requester != nil {
		var errs []string
		if requester.UserID != original.UserID {
			errs = append(errs, "user_id must be the payer of the original transaction")
		}
		if requester.Currency != "" && requester.Currency != original.Currency {
			errs = append(errs, fmt.Sprintf("currency %s does not match the original currency %s", requester.Currency, original.Currency))
		}
		if err := util.NewValidationError(errs); err != nil {
			return domain.FailedResult(domain.FailureValidation, err.Error())
		}
	}

	refunded, err := g.ledgerRepo.SumRefunded(ctx, g.db, originalID)
	if err != nil {
		g.logger.Error("Failed to sum prior refunds", "correlation_id", originalID, "error", err)
		return domain.FailedResult(domain.FailureUnavailable, MsgLookupFailed)
	}
	remaining := original.AmountCents - refunded
	amount := params.AmountCents
	if amount == 0 {
		amount = remaining
	}
	if remaining <= 0 || amount > remaining {
		return domain.FailedResult(domain.FailureRejected, fmt.Sprintf("%s: %d cents remaining", util.ErrRefundExceedsOriginal, remaining))
	}

	now := g.now().UTC()
	correlationID := ledger.NewCorrelationID(now)
	header := &domain.Transaction{
		CorrelationID:         correlationID,
		IdempotencyKey:        params.IdempotencyKey,
		UserID:                original.UserID,
		WalletID:              g.deriver.DeriveWalletID(original.UserID),
		CounterpartyID:        original.CounterpartyID,
		Type:                  domain.TransactionTypeRefund,
		AmountCents:           amount,
		Currency:              original.Currency,
		Status:                domain.TransactionStatusCompleted,
		OriginalCorrelationID: originalID,
		CreatedAt:             now,
	}

	metadata := params.Metadata.
		With("transaction_type", string(domain.TransactionTypeRefund)).
		With("original_correlation_id", originalID)
	if params.Reason != "" {
		metadata = metadata.With("reason", params.Reason)
	}
	debit := domain.EntryParams{
		UserID:      original.CounterpartyID,
		WalletID:    g.deriver.DeriveWalletID(original.CounterpartyID),
		AmountCents: amount,
		Currency:    original.Currency,
		EventSource: domain.EventSourceRefund,
		ReferenceID: originalID,
		Metadata:    metadata,
	}
	credit := debit
	credit.UserID = original.UserID
	credit.WalletID = header.WalletID

	return g.record(ctx, header, debit, credit, domain.JournalEvent{
		UserID:        header.UserID,
		WalletID:      header.WalletID,
		CorrelationID: correlationID,
		Type:          domain.TransactionTypeRefund,
		AmountCents:   amount,
		Currency:      header.Currency,
		Metadata:      metadata,
	}, g.refundCap(original))
}

// refundCap re-checks the cumulative refund total inside the write transaction,
// holding a lock on the original so concurrent refunds cannot both pass.
func (g *Gateway) refundCap(original *domain.Transaction) ledger.TxHook {
	return func(ctx context.Context, q repository.DBExecutor) error {
		if err := g.ledgerRepo.LockTransaction(ctx, q, original.CorrelationID); err != nil {
			return err
		}
		total, err := g.ledgerRepo.SumRefunded(ctx, q, original.CorrelationID)
		if err != nil {
			return err
		}
		if total > original.AmountCents {
			return fmt.Errorf("refunds of %s total %d of %d: %w",
				original.CorrelationID, total, original.AmountCents, util.ErrRefundExceedsOriginal)
		}
		return nil
	}
}

// refundable reports whether refunds may be issued against tx.
func refundable(tx *domain.Transaction) bool {
	if tx.OriginalCorrelationID != "" {
		return false
	}
	switch tx.Type {
	case domain.TransactionTypeTicket, domain.TransactionTypeSubscription,
		domain.TransactionTypeTip, domain.TransactionTypeAdjustment:
		return true
	default:
		return false
	}
}
