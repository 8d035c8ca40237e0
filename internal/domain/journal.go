// internal/domain/journal.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntry is an append-only audit/analytics record. It is advisory and
// never used to compute balances.
type JournalEntry struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	WalletID      string    `db:"wallet_id" json:"wallet_id"`
	EventType     string    `db:"event_type" json:"event_type"`
	EventCategory string    `db:"event_category" json:"event_category"`
	CorrelationID string    `db:"correlation_id" json:"correlation_id"`
	Metadata      Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// JournalEvent is the input of the audit journal logger.
type JournalEvent struct {
	UserID        string
	WalletID      string
	CorrelationID string
	Type          TransactionType
	AmountCents   int64
	Currency      string
	Metadata      Metadata
}

// NewJournalEntry builds the journal row describing ev.
func NewJournalEntry(ev JournalEvent, at time.Time) *JournalEntry {
	eventType, category := JournalClassification(ev.Type)
	return &JournalEntry{
		ID:            uuid.NewString(),
		UserID:        ev.UserID,
		WalletID:      ev.WalletID,
		EventType:     eventType,
		EventCategory: category,
		CorrelationID: ev.CorrelationID,
		Metadata:      ev.Metadata,
		CreatedAt:     at.UTC(),
	}
}

// JournalClassification returns the journal event type and category for t.
func JournalClassification(t TransactionType) (eventType, category string) {
	switch t {
	case TransactionTypeTicket:
		return "ticket.purchased", "commerce"
	case TransactionTypeSubscription:
		return "subscription.charged", "commerce"
	case TransactionTypeTip:
		return "tip.sent", "commerce"
	case TransactionTypeRefund:
		return "payment.refunded", "refund"
	case TransactionTypeAdjustment:
		return "ledger.adjusted", "adjustment"
	case TransactionTypeSplit:
		return "split.distributed", "revenue_share"
	case TransactionTypePayout:
		return "payout.completed", "payout"
	case TransactionTypeAttribution:
		return "attribution.settled", "revenue_share"
	default:
		return "transaction.recorded", "other"
	}
}
