// internal/api/handler/attributions.go
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"encore-ledger/internal/attribution"
	"encore-ledger/internal/domain"
	"encore-ledger/internal/util"
)

// AttributionManager tracks and settles referral attributions.
type AttributionManager interface {
	Record(ctx context.Context, params attribution.RecordParams) (*domain.AttributionEntry, error)
	Get(ctx context.Context, id string) (*domain.AttributionEntry, error)
	Settle(ctx context.Context, id string) (*domain.AttributionEntry, error)
	Dispute(ctx context.Context, id string) (*domain.AttributionEntry, error)
	Reinstate(ctx context.Context, id string) (*domain.AttributionEntry, error)
	Expire(ctx context.Context, id string) (*domain.AttributionEntry, error)
}

// AttributionHandler handles HTTP requests for referral attributions.
type AttributionHandler struct {
	responder
	attributions AttributionManager
}

// NewAttributionHandler creates a new AttributionHandler.
func NewAttributionHandler(attributions AttributionManager, logger *slog.Logger) *AttributionHandler {
	return &AttributionHandler{responder: responder{logger: logger}, attributions: attributions}
}

// RecordAttribution stores a pending attribution.
// POST /v1/attributions
func (h *AttributionHandler) RecordAttribution(w http.ResponseWriter, r *http.Request) {
	var params attribution.RecordParams
	if err := decodeJSON(w, r, &params); err != nil {
		h.respondWithError(w, err)
		return
	}
	entry, err := h.attributions.Record(r.Context(), params)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, entry)
}

// GetAttribution returns an attribution.
// GET /v1/attributions/{attributionID}
func (h *AttributionHandler) GetAttribution(w http.ResponseWriter, r *http.Request) {
	entry, err := h.attributions.Get(r.Context(), chi.URLParam(r, "attributionID"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, entry)
}

// Transition applies a lifecycle action to an attribution.
// POST /v1/attributions/{attributionID}/{action}
func (h *AttributionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actions := map[string]func(context.Context, string) (*domain.AttributionEntry, error){
		"settle":    h.attributions.Settle,
		"dispute":   h.attributions.Dispute,
		"reinstate": h.attributions.Reinstate,
		"expire":    h.attributions.Expire,
	}
	action := chi.URLParam(r, "action")
	apply, ok := actions[action]
	if !ok {
		h.respondWithError(w, fmt.Errorf("unknown attribution action %q: %w", action, util.ErrInvalidInput))
		return
	}

	entry, err := apply(r.Context(), chi.URLParam(r, "attributionID"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, entry)
}
