// internal/repository/lifecycle_repo.go
package repository

import (
	"context"
	"time"

	"encore-ledger/internal/domain"
)

// SplitContractRepository defines data operations on split contracts.
type SplitContractRepository interface {
	CreateContract(ctx context.Context, q DBExecutor, contract *domain.SplitContract) error
	GetContract(ctx context.Context, q DBExecutor, id string) (*domain.SplitContract, error)
	// UpdateContract persists status and distributed_cents.
	UpdateContract(ctx context.Context, q DBExecutor, contract *domain.SplitContract) error
	// IncrementDistributed adds amount to an active contract's distributed_cents.
	// Fails with util.ErrSplitInvalid when the contract is not active or the
	// total would be exceeded.
	IncrementDistributed(ctx context.Context, q DBExecutor, id string, amountCents int64, at time.Time) error
}

// PayoutRepository defines data operations on payout requests.
type PayoutRepository interface {
	CreatePayout(ctx context.Context, q DBExecutor, payout *domain.PayoutRequest) error
	GetPayout(ctx context.Context, q DBExecutor, id string) (*domain.PayoutRequest, error)
	// UpdatePayout persists status, correlation_id and failure_reason.
	UpdatePayout(ctx context.Context, q DBExecutor, payout *domain.PayoutRequest) error
	// SumOpenPayouts totals the account's payouts that are requested but not yet settled.
	SumOpenPayouts(ctx context.Context, q DBExecutor, accountID, currency string) (int64, error)
}

// AttributionRepository defines data operations on referral attributions.
type AttributionRepository interface {
	CreateAttribution(ctx context.Context, q DBExecutor, entry *domain.AttributionEntry) error
	GetAttribution(ctx context.Context, q DBExecutor, id string) (*domain.AttributionEntry, error)
	// UpdateAttribution persists status and settlement_correlation_id.
	UpdateAttribution(ctx context.Context, q DBExecutor, entry *domain.AttributionEntry) error
}
