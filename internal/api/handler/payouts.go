// internal/api/handler/payouts.go
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/payout"
	"encore-ledger/internal/util"
)

// PayoutManager drives payout requests through their lifecycle.
type PayoutManager interface {
	Request(ctx context.Context, params payout.RequestParams) (*domain.PayoutRequest, error)
	Get(ctx context.Context, id string) (*domain.PayoutRequest, error)
	Approve(ctx context.Context, id string) (*domain.PayoutRequest, error)
	Reject(ctx context.Context, id, reason string) (*domain.PayoutRequest, error)
	MarkProcessing(ctx context.Context, id string) (*domain.PayoutRequest, error)
	Complete(ctx context.Context, id, processorTransferID string) (*domain.PayoutRequest, error)
	Fail(ctx context.Context, id, reason string) (*domain.PayoutRequest, error)
}

// PayoutHandler handles HTTP requests for payouts.
type PayoutHandler struct {
	responder
	payouts PayoutManager
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(payouts PayoutManager, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{responder: responder{logger: logger}, payouts: payouts}
}

// RequestPayout records a pending payout.
// POST /v1/payouts
func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var params payout.RequestParams
	if err := decodeJSON(w, r, &params); err != nil {
		h.respondWithError(w, err)
		return
	}
	p, err := h.payouts.Request(r.Context(), params)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, p)
}

// GetPayout returns a payout request.
// GET /v1/payouts/{payoutID}
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	p, err := h.payouts.Get(r.Context(), chi.URLParam(r, "payoutID"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, p)
}

// PayoutActionRequest carries the optional details of a payout action.
type PayoutActionRequest struct {
	Reason              string `json:"reason,omitempty"`
	ProcessorTransferID string `json:"processor_transfer_id,omitempty"`
}

// Transition applies a lifecycle action to a payout.
// POST /v1/payouts/{payoutID}/{action}
func (h *PayoutHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req PayoutActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	id := chi.URLParam(r, "payoutID")
	ctx := r.Context()
	var (
		p   *domain.PayoutRequest
		err error
	)
	switch action := chi.URLParam(r, "action"); action {
	case "approve":
		p, err = h.payouts.Approve(ctx, id)
	case "reject":
		p, err = h.payouts.Reject(ctx, id, req.Reason)
	case "processing":
		p, err = h.payouts.MarkProcessing(ctx, id)
	case "complete":
		p, err = h.payouts.Complete(ctx, id, req.ProcessorTransferID)
	case "fail":
		p, err = h.payouts.Fail(ctx, id, req.Reason)
	default:
		err = fmt.Errorf("unknown payout action %q: %w", action, util.ErrInvalidInput)
	}
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, p)
}
