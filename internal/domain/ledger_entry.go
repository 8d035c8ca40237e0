// internal/domain/ledger_entry.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType is the side of a ledger entry.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// EventSource classifies why money moved.
type EventSource string

const (
	EventSourceCharge            EventSource = "charge"
	EventSourceRefund            EventSource = "refund"
	EventSourceAdjustment        EventSource = "adjustment"
	EventSourceSplitDistribution EventSource = "split_distribution"
	EventSourcePayout            EventSource = "payout"
	EventSourceAttribution       EventSource = "attribution"
)

// LedgerEntry is one immutable debit or credit row. Only JournalEntryID and
// WalletID may be backfilled after insert, and only while unset.
type LedgerEntry struct {
	ID             string      `db:"id" json:"id"`
	UserID         string      `db:"user_id" json:"user_id"`
	WalletID       string      `db:"wallet_id" json:"wallet_id"`
	AmountCents    int64       `db:"amount_cents" json:"amount_cents"` // Always positive; Type carries the sign
	Currency       string      `db:"currency" json:"currency"`
	Type           EntryType   `db:"type" json:"type"`
	EventSource    EventSource `db:"event_source" json:"event_source"`
	ReferenceID    string      `db:"reference_id" json:"reference_id,omitempty"`
	CorrelationID  string      `db:"correlation_id" json:"correlation_id"`
	JournalEntryID string      `db:"journal_entry_id" json:"journal_entry_id,omitempty"`
	Metadata       Metadata    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// EntryParams describes one side of a transaction before it is written.
type EntryParams struct {
	UserID      string
	WalletID    string
	AmountCents int64
	Currency    string
	EventSource EventSource
	ReferenceID string
	Metadata    Metadata
}

// NewLedgerEntry creates an entry of the given type under correlationID.
func NewLedgerEntry(p EntryParams, entryType EntryType, correlationID string, at time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:            uuid.NewString(),
		UserID:        p.UserID,
		WalletID:      p.WalletID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Type:          entryType,
		EventSource:   p.EventSource,
		ReferenceID:   p.ReferenceID,
		CorrelationID: correlationID,
		Metadata:      p.Metadata,
		CreatedAt:     at.UTC(),
	}
}

// SignedAmount returns the entry's contribution to its account balance
// (credits positive, debits negative).
func (e LedgerEntry) SignedAmount() int64 {
	if e.Type == EntryTypeDebit {
		return -e.AmountCents
	}
	return e.AmountCents
}
