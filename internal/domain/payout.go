// internal/domain/payout.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus is the lifecycle state of a payout request.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusApproved   PayoutStatus = "approved"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusRejected   PayoutStatus = "rejected"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:   {PayoutStatusProcessing, PayoutStatusRejected},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

// CanTransitionTo reports whether a payout in s may move to next.
func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	return allowed(payoutTransitions[s], next)
}

// PayoutRequest asks for an account's claimable balance to be disbursed by
// the external processor.
type PayoutRequest struct {
	ID            string       `db:"id" json:"id"`
	AccountID     string       `db:"account_id" json:"account_id"`
	AmountCents   int64        `db:"amount_cents" json:"amount_cents"`
	Currency      string       `db:"currency" json:"currency"`
	Status        PayoutStatus `db:"status" json:"status"`
	CorrelationID string       `db:"correlation_id" json:"correlation_id,omitempty"`
	FailureReason string       `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// NewPayoutRequest creates a pending payout request.
func NewPayoutRequest(accountID string, amountCents int64, currency string) *PayoutRequest {
	now := time.Now().UTC()
	return &PayoutRequest{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      PayoutStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func allowed[S comparable](targets []S, next S) bool {
	for _, t := range targets {
		if t == next {
			return true
		}
	}
	return false
}
