// internal/api/api_integration_test.go
package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "encore-ledger/internal"
	"encore-ledger/internal/domain"
)

const testToken = "integration-token"

// testApp is the global application instance for testing.
var testApp *app.Application

// testServer is the httptest server.
var testServer *httptest.Server

// TestMain is the special entry point for Go tests, executed once before all tests.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "ledger-api-test")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	// 1. Point the application at a throwaway SQLite database.
	setupEnvVars(filepath.Join(dir, "ledger.db"))

	// 2. Initialize the application.
	testApp = app.NewApplication()
	if err := testApp.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize test application: %v\n", err)
		os.Exit(1) // Exit tests if initialization fails
	}

	// 3. Start an httptest server to test the HTTP handling layer.
	testServer = httptest.NewServer(testApp.HTTPHandler)

	// 4. Run all tests.
	code := m.Run()

	// 5. Shut down application resources after tests (e.g., database connections).
	testServer.Close()
	if err := testApp.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shutdown test application: %v\n", err)
		code = 1
	}
	_ = os.RemoveAll(dir)

	os.Exit(code)
}

func setupEnvVars(dbPath string) {
	env := map[string]string{
		"DB_DRIVER":             "sqlite3",
		"DB_DSN":                dbPath,
		"WALLET_ID_SECRET":      "integration-secret-0123456789",
		"INTERNAL_API_TOKEN":    testToken,
		"RATE_LIMIT_PER_MINUTE": "0",
		"REPAIR_INTERVAL":       "0s",
		"LOG_LEVEL":             "error",
		"REDIS_URL":             "",
		"KAFKA_BROKERS":         "",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
}

// clearDatabase empties every table so test cases stay independent.
func clearDatabase(t *testing.T) {
	tables := []string{"ledger_entries", "ledger_transactions", "audit_journal", "split_contracts", "payout_requests", "attribution_entries"}
	for _, table := range tables {
		_, err := testApp.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(t, err, "Failed to clear table %s", table)
	}
}

// makeRequest helper function: sends an authenticated HTTP request to the test server.
func makeRequest(t *testing.T, method, path, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, testServer.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(respBody)
}

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v), body)
	return v
}

func balanceOf(t *testing.T, account string) int64 {
	t.Helper()
	resp, body := makeRequest(t, "GET", "/v1/accounts/"+account+"/balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return decode[struct {
		BalanceCents int64 `json:"balance_cents"`
	}](t, body).BalanceCents
}

func TestHealthAndAuth(t *testing.T) {
	resp, err := http.Get(testServer.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(testServer.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(testServer.URL+"/v1/transactions", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransactionIntegration(t *testing.T) {
	clearDatabase(t)

	t.Run("TicketPurchase", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/v1/transactions",
			`{"user_id": "u1", "amount_cents": 5000, "type": "ticket", "event_id": "show-1"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)

		result := decode[domain.TransactionResult](t, body)
		assert.Equal(t, domain.TransactionStatusCompleted, result.Status)
		assert.True(t, strings.HasPrefix(result.CorrelationID, "txn_"))
		assert.Equal(t, testApp.Deriver.DeriveWalletID("u1"), result.WalletID)

		assert.Equal(t, int64(-5000), balanceOf(t, "u1"))
		assert.Equal(t, int64(5000), balanceOf(t, "platform-reserve"))
	})

	t.Run("InvalidInputWritesNothing", func(t *testing.T) {
		var before int
		require.NoError(t, testApp.DB.Get(&before, `SELECT COUNT(*) FROM ledger_entries`))

		resp, body := makeRequest(t, "POST", "/v1/transactions", `{"user_id": "", "amount_cents": -5, "type": "ticket"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Contains(t, body, "user_id is required")
		assert.Contains(t, body, "amount_cents must be greater than zero")

		var after int
		require.NoError(t, testApp.DB.Get(&after, `SELECT COUNT(*) FROM ledger_entries`))
		assert.Equal(t, before, after)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/v1/transactions", `{"user_id": "u1", "amount": "10"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	})

	t.Run("ValidateOnly", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/v1/transactions/validate",
			`{"user_id": "u1", "amount_cents": 100, "type": "refund", "currency": "JPY"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		v := decode[domain.ValidationResult](t, body)
		assert.False(t, v.Valid)
		assert.Len(t, v.Errors, 2)
	})

	t.Run("IdempotencyKeyHeader", func(t *testing.T) {
		payload := `{"user_id": "u2", "amount_cents": 1200, "type": "subscription"}`
		resp, body := makeRequest(t, "POST", "/v1/transactions", payload, "Idempotency-Key", "sub-u2-2026-10")
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		first := decode[domain.TransactionResult](t, body)

		resp, body = makeRequest(t, "POST", "/v1/transactions", payload, "Idempotency-Key", "sub-u2-2026-10")
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		second := decode[domain.TransactionResult](t, body)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.CorrelationID, second.CorrelationID)
		assert.Equal(t, int64(-1200), balanceOf(t, "u2"))
	})

	t.Run("Refund", func(t *testing.T) {
		resp, body := makeRequest(t, "POST", "/v1/transactions",
			`{"user_id": "u3", "amount_cents": 3000, "type": "tip", "counterparty_id": "artist-9"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		original := decode[domain.TransactionResult](t, body)

		resp, body = makeRequest(t, "POST", "/v1/transactions/"+original.CorrelationID+"/refunds",
			`{"amount_cents": 1000, "reason": "duplicate"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		assert.Equal(t, int64(-2000), balanceOf(t, "u3"))
		assert.Equal(t, int64(2000), balanceOf(t, "artist-9"))

		resp, body = makeRequest(t, "POST", "/v1/transactions/"+original.CorrelationID+"/refunds", `{"amount_cents": 2500}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)

		resp, body = makeRequest(t, "POST", "/v1/transactions/txn_unknown/refunds", "")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
		assert.Contains(t, body, "original transaction not found")
	})

	t.Run("LedgerBalance", func(t *testing.T) {
		resp, body := makeRequest(t, "GET", "/v1/ledger/balance?per_transaction=true", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		report := decode[domain.BalanceReport](t, body)
		assert.True(t, report.IsBalanced)
		assert.Zero(t, report.TotalImbalance)

		resp, _ = makeRequest(t, "GET", "/v1/ledger/balance?per_transaction=maybe", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSplitIntegration(t *testing.T) {
	clearDatabase(t)

	resp, body := makeRequest(t, "POST", "/v1/splits", `{
		"name": "Venue night",
		"parties": [
			{"role": "artist", "account_id": "artist-1", "percent": "70"},
			{"role": "platform", "account_id": "platform-revenue", "percent": "20"},
			{"role": "host", "account_id": "host-1", "percent": "10"}
		]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	contract := decode[domain.SplitContract](t, body)
	assert.Equal(t, domain.SplitStatusDraft, contract.Status)

	resp, body = makeRequest(t, "POST", "/v1/splits/"+contract.ID+"/distributions", `{"amount_cents": 10000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body, "drafts do not distribute")

	resp, body = makeRequest(t, "POST", "/v1/splits/"+contract.ID+"/activate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = makeRequest(t, "POST", "/v1/splits/"+contract.ID+"/distributions", `{"amount_cents": 10000}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, int64(7000), balanceOf(t, "artist-1"))
	assert.Equal(t, int64(2000), balanceOf(t, "platform-revenue"))
	assert.Equal(t, int64(1000), balanceOf(t, "host-1"))

	resp, body = makeRequest(t, "POST", "/v1/splits/"+contract.ID+"/explode", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = makeRequest(t, "POST", "/v1/splits/"+contract.ID+"/resolve", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, _ = makeRequest(t, "GET", "/v1/splits/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPayoutAndAttributionIntegration(t *testing.T) {
	clearDatabase(t)

	resp, body := makeRequest(t, "POST", "/v1/transactions",
		`{"user_id": "fan-1", "amount_cents": 5000, "type": "tip", "counterparty_id": "artist-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	tip := decode[domain.TransactionResult](t, body)

	resp, body = makeRequest(t, "POST", "/v1/payouts", `{"account_id": "artist-1", "amount_cents": 3000}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	p := decode[domain.PayoutRequest](t, body)

	for _, action := range []string{"approve", "processing"} {
		resp, body = makeRequest(t, "POST", "/v1/payouts/"+p.ID+"/"+action, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}
	resp, body = makeRequest(t, "POST", "/v1/payouts/"+p.ID+"/complete", `{"processor_transfer_id": "tr_1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, domain.PayoutStatusCompleted, decode[domain.PayoutRequest](t, body).Status)
	assert.Equal(t, int64(2000), balanceOf(t, "artist-1"))

	resp, body = makeRequest(t, "POST", "/v1/payouts", `{"account_id": "artist-1", "amount_cents": 2500}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = makeRequest(t, "POST", "/v1/attributions", fmt.Sprintf(
		`{"referrer_id": "promoter-1", "referred_user_id": "fan-1", "source_correlation_id": %q, "amount_cents": 250}`,
		tip.CorrelationID))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	entry := decode[domain.AttributionEntry](t, body)

	resp, body = makeRequest(t, "POST", "/v1/attributions/"+entry.ID+"/settle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, int64(250), balanceOf(t, "promoter-1"))

	resp, body = makeRequest(t, "POST", "/v1/attributions/"+entry.ID+"/settle", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = makeRequest(t, "GET", "/v1/ledger/balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.True(t, decode[domain.BalanceReport](t, body).IsBalanced)
}
