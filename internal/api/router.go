// internal/api/router.go
package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"encore-ledger/internal/api/handler"
	"encore-ledger/internal/metrics"
)

// Handlers groups the route handlers of the API.
type Handlers struct {
	Transactions *handler.TransactionHandler
	Splits       *handler.SplitHandler
	Payouts      *handler.PayoutHandler
	Attributions *handler.AttributionHandler
}

// NewRouter sets up and returns a new HTTP router. Every /v1 route requires
// the bearer token; an empty token leaves the routes open.
func NewRouter(h Handlers, token string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)                       // Add a request ID to the context
	r.Use(middleware.RealIP)                          // Use the real IP address
	r.Use(middleware.Logger)                          // Log HTTP requests
	r.Use(middleware.Recoverer)                       // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout)) // Set a default timeout for requests
	r.Use(metrics.Middleware)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	if token == "" {
		logger.Warn("INTERNAL_API_TOKEN is empty, ledger routes are unauthenticated")
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(token))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.Transactions.CreateTransaction)
			r.Post("/validate", h.Transactions.ValidateTransaction)
			r.Post("/{correlationID}/refunds", h.Transactions.Refund)
		})
		r.Get("/accounts/{accountID}/balance", h.Transactions.GetAccountBalance)
		r.Get("/ledger/balance", h.Transactions.GetLedgerBalance)

		r.Route("/splits", func(r chi.Router) {
			r.Post("/", h.Splits.CreateContract)
			r.Get("/{contractID}", h.Splits.GetContract)
			r.Post("/{contractID}/distributions", h.Splits.Distribute)
			r.Post("/{contractID}/{action}", h.Splits.Transition)
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", h.Payouts.RequestPayout)
			r.Get("/{payoutID}", h.Payouts.GetPayout)
			r.Post("/{payoutID}/{action}", h.Payouts.Transition)
		})

		r.Route("/attributions", func(r chi.Router) {
			r.Post("/", h.Attributions.RecordAttribution)
			r.Get("/{attributionID}", h.Attributions.GetAttribution)
			r.Post("/{attributionID}/{action}", h.Attributions.Transition)
		})
	})

	return r
}

// BearerAuth rejects requests whose Authorization header does not carry token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
