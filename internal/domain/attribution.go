// internal/domain/attribution.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttributionStatus is the lifecycle state of a referral attribution.
type AttributionStatus string

const (
	AttributionStatusPending  AttributionStatus = "pending"
	AttributionStatusSettled  AttributionStatus = "settled"
	AttributionStatusDisputed AttributionStatus = "disputed"
	AttributionStatusExpired  AttributionStatus = "expired"
)

var attributionTransitions = map[AttributionStatus][]AttributionStatus{
	AttributionStatusPending:  {AttributionStatusSettled, AttributionStatusDisputed, AttributionStatusExpired},
	AttributionStatusDisputed: {AttributionStatusPending, AttributionStatusExpired},
}

// CanTransitionTo reports whether an attribution in s may move to next.
func (s AttributionStatus) CanTransitionTo(next AttributionStatus) bool {
	return allowed(attributionTransitions[s], next)
}

// AttributionEntry records referral revenue owed to a referrer for a
// transaction made by a referred user.
type AttributionEntry struct {
	ID                      string            `db:"id" json:"id"`
	ReferrerID              string            `db:"referrer_id" json:"referrer_id"`
	ReferredUserID          string            `db:"referred_user_id" json:"referred_user_id"`
	SourceCorrelationID     string            `db:"source_correlation_id" json:"source_correlation_id"`
	AmountCents             int64             `db:"amount_cents" json:"amount_cents"`
	Currency                string            `db:"currency" json:"currency"`
	Status                  AttributionStatus `db:"status" json:"status"`
	SettlementCorrelationID string            `db:"settlement_correlation_id" json:"settlement_correlation_id,omitempty"`
	CreatedAt               time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time         `db:"updated_at" json:"updated_at"`
}

// NewAttributionEntry creates a pending attribution.
func NewAttributionEntry(referrerID, referredUserID, sourceCorrelationID string, amountCents int64, currency string) *AttributionEntry {
	now := time.Now().UTC()
	return &AttributionEntry{
		ID:                  uuid.NewString(),
		ReferrerID:          referrerID,
		ReferredUserID:      referredUserID,
		SourceCorrelationID: sourceCorrelationID,
		AmountCents:         amountCents,
		Currency:            currency,
		Status:              AttributionStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
