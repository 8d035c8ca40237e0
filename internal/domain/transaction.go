// internal/domain/transaction.go
package domain

import (
	"time"
)

// TransactionType defines the business reason of a gateway transaction.
type TransactionType string

const (
	TransactionTypeTicket       TransactionType = "ticket"
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeTip          TransactionType = "tip"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypeAdjustment   TransactionType = "adjustment"

	// Internal types, written by the split, payout and attribution services only.
	TransactionTypeSplit       TransactionType = "split_distribution"
	TransactionTypePayout      TransactionType = "payout"
	TransactionTypeAttribution TransactionType = "attribution"
)

// PublicTransactionTypes are the types accepted by the gateway entry point.
var PublicTransactionTypes = []TransactionType{
	TransactionTypeTicket,
	TransactionTypeSubscription,
	TransactionTypeTip,
	TransactionTypeRefund,
	TransactionTypeAdjustment,
}

// IsPublic reports whether t may be submitted through ProcessTransaction.
func (t TransactionType) IsPublic() bool {
	for _, p := range PublicTransactionTypes {
		if p == t {
			return true
		}
	}
	return false
}

// EventSource maps a transaction type onto the event source of its ledger entries.
func (t TransactionType) EventSource() EventSource {
	switch t {
	case TransactionTypeTicket, TransactionTypeSubscription, TransactionTypeTip:
		return EventSourceCharge
	case TransactionTypeRefund:
		return EventSourceRefund
	case TransactionTypeAdjustment:
		return EventSourceAdjustment
	case TransactionTypeSplit:
		return EventSourceSplitDistribution
	case TransactionTypePayout:
		return EventSourcePayout
	case TransactionTypeAttribution:
		return EventSourceAttribution
	default:
		return ""
	}
}

// TransactionStatus defines the outcome of a gateway call.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// FailureKind classifies a failed result so transports can react without
// parsing its message.
type FailureKind int

const (
	FailureRejected    FailureKind = iota // a business rule refused the transaction
	FailureValidation                     // the request itself is malformed
	FailureRateLimited                    // the account is over its rate limit
	FailureUnavailable                    // storage failed; a retry may succeed
)

// Transaction is the header row grouping all ledger entries sharing a correlation id.
// A header is only ever written in the same database transaction as its entries.
type Transaction struct {
	CorrelationID         string            `db:"correlation_id" json:"correlation_id"`
	IdempotencyKey        string            `db:"idempotency_key" json:"idempotency_key,omitempty"`
	UserID                string            `db:"user_id" json:"user_id"`                 // Paying account; the refunded account on refunds
	WalletID              string            `db:"wallet_id" json:"wallet_id"`             // Wallet of UserID
	CounterpartyID        string            `db:"counterparty_id" json:"counterparty_id"` // Receiving account; the debited account on refunds
	Type                  TransactionType   `db:"type" json:"type"`
	AmountCents           int64             `db:"amount_cents" json:"amount_cents"`
	Currency              string            `db:"currency" json:"currency"`
	Status                TransactionStatus `db:"status" json:"status"`
	OriginalCorrelationID string            `db:"original_correlation_id" json:"original_correlation_id,omitempty"` // Set on refunds
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
}

// TransactionParams is the input of the gateway entry point.
type TransactionParams struct {
	UserID         string          `json:"user_id"`
	AmountCents    int64           `json:"amount_cents"`
	Currency       string          `json:"currency,omitempty"`
	Type           TransactionType `json:"type"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Metadata       Metadata        `json:"metadata,omitempty"`
}

// RefundParams is the input of a refund against a completed transaction.
type RefundParams struct {
	OriginalCorrelationID string   `json:"original_correlation_id"`
	AmountCents           int64    `json:"amount_cents,omitempty"` // Zero refunds the remaining refundable amount
	Reason                string   `json:"reason,omitempty"`
	IdempotencyKey        string   `json:"idempotency_key,omitempty"`
	Metadata              Metadata `json:"metadata,omitempty"`
}

// ValidationResult reports every violation found in TransactionParams.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// TransactionResult is what the gateway returns to its caller. Callers must
// not grant the paid benefit unless Status is completed.
type TransactionResult struct {
	TransactionID  string            `json:"transaction_id,omitempty"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
	JournalEntryID string            `json:"journal_entry_id,omitempty"`
	WalletID       string            `json:"wallet_id,omitempty"`
	Status         TransactionStatus `json:"status"`
	Error          string            `json:"error,omitempty"`
	Replayed       bool              `json:"replayed,omitempty"`
	Failure        FailureKind       `json:"-"`
}

// Completed reports whether the transaction was recorded.
func (r TransactionResult) Completed() bool {
	return r.Status == TransactionStatusCompleted
}

// FailedResult builds a failed result carrying a caller-safe message.
func FailedResult(kind FailureKind, message string) TransactionResult {
	return TransactionResult{Status: TransactionStatusFailed, Error: message, Failure: kind}
}
