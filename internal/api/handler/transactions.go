// internal/api/handler/transactions.go
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"encore-ledger/internal/api/types"
	"encore-ledger/internal/domain"
	"encore-ledger/internal/reconcile"
	"encore-ledger/internal/util"
)

// TransactionGateway is the subset of the gateway served over HTTP.
type TransactionGateway interface {
	ValidateTransaction(params domain.TransactionParams) domain.ValidationResult
	ProcessTransaction(ctx context.Context, params domain.TransactionParams) domain.TransactionResult
	ProcessRefund(ctx context.Context, params domain.RefundParams) domain.TransactionResult
}

// BalanceReader answers balance queries.
type BalanceReader interface {
	GetUserBalance(ctx context.Context, accountID string) (int64, error)
	ValidateLedgerBalance(ctx context.Context, opts reconcile.Options) (*domain.BalanceReport, error)
}

// WalletDeriver maps user ids onto wallet ids.
type WalletDeriver interface {
	DeriveWalletID(userID string) string
}

// TransactionHandler handles HTTP requests for transactions and balances.
type TransactionHandler struct {
	responder
	gateway  TransactionGateway
	balances BalanceReader
	deriver  WalletDeriver
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(gw TransactionGateway, balances BalanceReader, deriver WalletDeriver, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		responder: responder{logger: logger},
		gateway:   gw,
		balances:  balances,
		deriver:   deriver,
	}
}

// CreateTransaction records a monetary event.
// POST /v1/transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var params domain.TransactionParams
	if err := decodeJSON(w, r, &params); err != nil {
		h.respondWithError(w, err)
		return
	}
	params.IdempotencyKey = idempotencyKey(r, params.IdempotencyKey)

	h.respondWithResult(w, h.gateway.ProcessTransaction(r.Context(), params))
}

// ValidateTransaction reports every violation in a transaction without recording it.
// POST /v1/transactions/validate
func (h *TransactionHandler) ValidateTransaction(w http.ResponseWriter, r *http.Request) {
	var params domain.TransactionParams
	if err := decodeJSON(w, r, &params); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, h.gateway.ValidateTransaction(params))
}

// RefundRequest represents the request body for a refund.
type RefundRequest struct {
	AmountCents    int64           `json:"amount_cents,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Metadata       domain.Metadata `json:"metadata,omitempty"`
}

// Refund refunds part or all of a completed transaction.
// POST /v1/transactions/{correlationID}/refunds
func (h *TransactionHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	result := h.gateway.ProcessRefund(r.Context(), domain.RefundParams{
		OriginalCorrelationID: chi.URLParam(r, "correlationID"),
		AmountCents:           req.AmountCents,
		Reason:                req.Reason,
		IdempotencyKey:        idempotencyKey(r, req.IdempotencyKey),
		Metadata:              req.Metadata,
	})
	h.respondWithResult(w, result)
}

// GetAccountBalance returns credits minus debits for one account.
// GET /v1/accounts/{accountID}/balance
func (h *TransactionHandler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(chi.URLParam(r, "accountID"))
	if accountID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	balance, err := h.balances.GetUserBalance(r.Context(), accountID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.BalanceResponse{
		AccountID:    accountID,
		WalletID:     h.deriver.DeriveWalletID(accountID),
		BalanceCents: balance,
		Balance:      types.FormatCents(balance),
	})
}

// GetLedgerBalance runs the ledger-wide balance check.
// GET /v1/ledger/balance?per_transaction=true
func (h *TransactionHandler) GetLedgerBalance(w http.ResponseWriter, r *http.Request) {
	var opts reconcile.Options
	if raw := r.URL.Query().Get("per_transaction"); raw != "" {
		perTx, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondWithError(w, util.NewValidationError([]string{"per_transaction must be a boolean"}))
			return
		}
		opts.PerTransaction = perTx
	}

	report, err := h.balances.ValidateLedgerBalance(r.Context(), opts)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, report)
}
