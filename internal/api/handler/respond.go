// internal/api/handler/respond.go
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"encore-ledger/internal/api/types"
	"encore-ledger/internal/domain"
	"encore-ledger/internal/util"
)

// DefaultTimeout bounds every API request.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// IdempotencyKeyHeader may carry the idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

type responder struct {
	logger *slog.Logger
}

// Helper function to send JSON responses.
func (h responder) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h responder) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	body := types.ErrorResponse{Error: "Internal server error"}

	var verr *util.ValidationError
	hasViolations := errors.As(err, &verr)

	switch {
	case util.IsError(err, util.ErrSplitInvalid), util.IsError(err, util.ErrRefundExceedsOriginal),
		util.IsError(err, util.ErrInsufficientFunds):
		statusCode = http.StatusUnprocessableEntity
		body.Error = err.Error()
		if hasViolations {
			body.Errors = verr.Errors
		}
	case hasViolations:
		statusCode = http.StatusBadRequest
		body.Error = "validation failed"
		body.Errors = verr.Errors
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		body.Error = err.Error() // Use the error message directly for invalid input
	case util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		body.Error = "Resource not found"
	case util.IsError(err, util.ErrInvalidTransition), util.IsError(err, util.ErrDuplicateEntry):
		statusCode = http.StatusConflict
		body.Error = err.Error()
	case util.IsError(err, util.ErrRateLimited):
		statusCode = http.StatusTooManyRequests
		body.Error = "Rate limit exceeded"
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, body)
}

// respondWithResult writes a gateway result. Failed results keep the result
// body so callers always see the same shape.
func (h responder) respondWithResult(w http.ResponseWriter, result domain.TransactionResult) {
	switch {
	case result.Completed() && result.Replayed:
		h.respondWithJSON(w, http.StatusOK, result)
	case result.Completed():
		h.respondWithJSON(w, http.StatusCreated, result)
	case result.Failure == domain.FailureRateLimited:
		h.respondWithJSON(w, http.StatusTooManyRequests, result)
	case result.Failure == domain.FailureUnavailable:
		h.respondWithJSON(w, http.StatusServiceUnavailable, result)
	case result.Failure == domain.FailureValidation:
		h.respondWithJSON(w, http.StatusBadRequest, result)
	default:
		h.respondWithJSON(w, http.StatusUnprocessableEntity, result)
	}
}

// decodeJSON reads a single JSON object into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("malformed request body: %v: %w", err, util.ErrInvalidInput)
	}
	return nil
}

// idempotencyKey prefers the body's key and falls back to the header.
func idempotencyKey(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
}
