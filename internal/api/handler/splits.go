// internal/api/handler/splits.go
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/split"
	"encore-ledger/internal/util"
)

// SplitEngine manages split contracts.
type SplitEngine interface {
	Create(ctx context.Context, params split.CreateParams) (*domain.SplitContract, error)
	Get(ctx context.Context, id string) (*domain.SplitContract, error)
	Activate(ctx context.Context, id string) (*domain.SplitContract, error)
	Complete(ctx context.Context, id string) (*domain.SplitContract, error)
	Dispute(ctx context.Context, id string) (*domain.SplitContract, error)
	Resolve(ctx context.Context, id string) (*domain.SplitContract, error)
	Cancel(ctx context.Context, id string) (*domain.SplitContract, error)
	Distribute(ctx context.Context, contractID string, gross int64, idempotencyKey string) (*split.Distribution, error)
}

// SplitHandler handles HTTP requests for split contracts.
type SplitHandler struct {
	responder
	engine SplitEngine
}

// NewSplitHandler creates a new SplitHandler.
func NewSplitHandler(engine SplitEngine, logger *slog.Logger) *SplitHandler {
	return &SplitHandler{responder: responder{logger: logger}, engine: engine}
}

// CreateContract stores a draft contract.
// POST /v1/splits
func (h *SplitHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var params split.CreateParams
	if err := decodeJSON(w, r, &params); err != nil {
		h.respondWithError(w, err)
		return
	}
	contract, err := h.engine.Create(r.Context(), params)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, contract)
}

// GetContract returns a contract.
// GET /v1/splits/{contractID}
func (h *SplitHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := h.engine.Get(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, contract)
}

// Transition applies a lifecycle action to a contract.
// POST /v1/splits/{contractID}/{action}
func (h *SplitHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actions := map[string]func(context.Context, string) (*domain.SplitContract, error){
		"activate": h.engine.Activate,
		"complete": h.engine.Complete,
		"dispute":  h.engine.Dispute,
		"resolve":  h.engine.Resolve,
		"cancel":   h.engine.Cancel,
	}
	action := chi.URLParam(r, "action")
	apply, ok := actions[action]
	if !ok {
		h.respondWithError(w, fmt.Errorf("unknown split action %q: %w", action, util.ErrInvalidInput))
		return
	}

	contract, err := apply(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, contract)
}

// DistributeRequest represents the request body for a distribution.
type DistributeRequest struct {
	AmountCents    int64  `json:"amount_cents"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Distribute pays an amount out to the contract's parties.
// POST /v1/splits/{contractID}/distributions
func (h *SplitHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondWithError(w, err)
		return
	}

	d, err := h.engine.Distribute(r.Context(), chi.URLParam(r, "contractID"), req.AmountCents, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	status := http.StatusCreated
	if d.Result.Replayed {
		status = http.StatusOK
	}
	h.respondWithJSON(w, status, d)
}
