// internal/metrics/metrics.go

// Package metrics provides Prometheus instrumentation for the ledger gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts gateway calls by transaction type and outcome.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Gateway transactions by type and status",
	}, []string{"type", "status"})

	// TransactionLatency tracks end-to-end gateway latency.
	TransactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_latency_seconds",
		Help:    "Gateway transaction latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"type"})

	// JournalFailuresTotal counts best-effort journal steps that did not succeed.
	JournalFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_journal_failures_total",
		Help: "Audit journal failures by stage (log, link, publish)",
	}, []string{"stage"})

	// JournalRepairsTotal counts transactions relinked by the repair job.
	JournalRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_journal_repairs_total",
		Help: "Transactions relinked to the audit journal by the repair job",
	})

	// RateLimitRejections counts calls refused by the per-account limiter.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_rate_limit_rejections_total",
		Help: "Transactions rejected by the rate limiter",
	})

	// SplitDistributedCents accumulates gross amounts distributed through split contracts.
	SplitDistributedCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_split_distributed_cents_total",
		Help: "Gross minor units distributed through split contracts",
	}, []string{"currency"})

	// LedgerImbalanceCents is each currency's imbalance at the last validator run.
	LedgerImbalanceCents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_imbalance_cents",
		Help: "Credits minus debits per currency at the last validation",
	}, []string{"currency"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveTransaction records one gateway outcome.
func ObserveTransaction(txType, status string, started time.Time) {
	TransactionsTotal.WithLabelValues(txType, status).Inc()
	TransactionLatency.WithLabelValues(txType).Observe(time.Since(started).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route patterns keep label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
