// internal/api/handler/handler_test.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"encore-ledger/internal/api/types"
	"encore-ledger/internal/domain"
	"encore-ledger/internal/gateway"
	"encore-ledger/internal/reconcile"
	"encore-ledger/internal/util"
)

// MockGateway is a mock implementation of TransactionGateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ValidateTransaction(params domain.TransactionParams) domain.ValidationResult {
	args := m.Called(params)
	return args.Get(0).(domain.ValidationResult)
}

func (m *MockGateway) ProcessTransaction(ctx context.Context, params domain.TransactionParams) domain.TransactionResult {
	args := m.Called(ctx, params)
	return args.Get(0).(domain.TransactionResult)
}

func (m *MockGateway) ProcessRefund(ctx context.Context, params domain.RefundParams) domain.TransactionResult {
	args := m.Called(ctx, params)
	return args.Get(0).(domain.TransactionResult)
}

// MockBalanceReader is a mock implementation of BalanceReader.
type MockBalanceReader struct {
	mock.Mock
}

func (m *MockBalanceReader) GetUserBalance(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceReader) ValidateLedgerBalance(ctx context.Context, opts reconcile.Options) (*domain.BalanceReport, error) {
	args := m.Called(ctx, opts)
	report, _ := args.Get(0).(*domain.BalanceReport)
	return report, args.Error(1)
}

type prefixDeriver struct{}

func (prefixDeriver) DeriveWalletID(userID string) string { return "wlt_" + userID }

func newTransactionRouter(gw *MockGateway, balances *MockBalanceReader) http.Handler {
	h := NewTransactionHandler(gw, balances, prefixDeriver{}, util.DiscardLogger())
	r := chi.NewRouter()
	r.Post("/v1/transactions", h.CreateTransaction)
	r.Post("/v1/transactions/{correlationID}/refunds", h.Refund)
	r.Get("/v1/accounts/{accountID}/balance", h.GetAccountBalance)
	r.Get("/v1/ledger/balance", h.GetLedgerBalance)
	return r
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantList   []string
	}{
		{"Validation", fmt.Errorf("op: %w", util.NewValidationError([]string{"a", "b"})), http.StatusBadRequest, "validation failed", []string{"a", "b"}},
		{"InvalidInput", fmt.Errorf("bad body: %w", util.ErrInvalidInput), http.StatusBadRequest, "bad body: invalid input provided", nil},
		{"NotFound", fmt.Errorf("get: %w", util.ErrNotFound), http.StatusNotFound, "Resource not found", nil},
		{"Transition", fmt.Errorf("x: %w", util.ErrInvalidTransition), http.StatusConflict, "x: invalid status transition", nil},
		{"SplitTerms", fmt.Errorf("%w: %w", util.ErrSplitInvalid, util.NewValidationError([]string{"a platform party is required"})), http.StatusUnprocessableEntity, "", []string{"a platform party is required"}},
		{"RateLimited", util.ErrRateLimited, http.StatusTooManyRequests, "Rate limit exceeded", nil},
		{"Unexpected", errors.New("connection reset"), http.StatusInternalServerError, "Internal server error", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			responder{logger: util.DiscardLogger()}.respondWithError(w, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			var body types.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tc.wantError != "" {
				assert.Equal(t, tc.wantError, body.Error)
			}
			assert.Equal(t, tc.wantList, body.Errors)
		})
	}
}

func TestRespondWithResult(t *testing.T) {
	tests := []struct {
		result     domain.TransactionResult
		wantStatus int
	}{
		{domain.TransactionResult{Status: domain.TransactionStatusCompleted}, http.StatusCreated},
		{domain.TransactionResult{Status: domain.TransactionStatusCompleted, Replayed: true}, http.StatusOK},
		{domain.FailedResult(domain.FailureRateLimited, gateway.MsgRateLimited), http.StatusTooManyRequests},
		{domain.FailedResult(domain.FailureUnavailable, gateway.MsgWriteFailed), http.StatusServiceUnavailable},
		{domain.FailedResult(domain.FailureUnavailable, gateway.MsgLookupFailed), http.StatusServiceUnavailable},
		{domain.FailedResult(domain.FailureValidation, "validation failed: user_id is required"), http.StatusBadRequest},
		{domain.FailedResult(domain.FailureRejected, gateway.MsgNotRefundable), http.StatusUnprocessableEntity},
		// Status follows the kind, not the wording.
		{domain.FailedResult(domain.FailureRateLimited, "slow down"), http.StatusTooManyRequests},
		{domain.FailedResult(domain.FailureRejected, "validation failed elsewhere"), http.StatusUnprocessableEntity},
		{domain.FailedResult(domain.FailureUnavailable, "database is down"), http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		responder{logger: util.DiscardLogger()}.respondWithResult(w, tc.result)
		assert.Equal(t, tc.wantStatus, w.Code, tc.result.Error)
	}
}

func TestCreateTransaction(t *testing.T) {
	t.Run("HeaderSuppliesIdempotencyKey", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("ProcessTransaction", mock.Anything, mock.MatchedBy(func(p domain.TransactionParams) bool {
			return p.IdempotencyKey == "key-1" && p.UserID == "u1" && p.AmountCents == 5000
		})).Return(domain.TransactionResult{Status: domain.TransactionStatusCompleted, CorrelationID: "txn_1"}).Once()

		w := serve(newTransactionRouter(gw, new(MockBalanceReader)), "POST", "/v1/transactions",
			`{"user_id": "u1", "amount_cents": 5000, "type": "ticket"}`, map[string]string{IdempotencyKeyHeader: "key-1"})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "txn_1")
		gw.AssertExpectations(t)
	})

	t.Run("BodyKeyWins", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("ProcessTransaction", mock.Anything, mock.MatchedBy(func(p domain.TransactionParams) bool {
			return p.IdempotencyKey == "from-body"
		})).Return(domain.TransactionResult{Status: domain.TransactionStatusCompleted}).Once()

		w := serve(newTransactionRouter(gw, new(MockBalanceReader)), "POST", "/v1/transactions",
			`{"user_id": "u1", "amount_cents": 1, "type": "tip", "idempotency_key": "from-body"}`,
			map[string]string{IdempotencyKeyHeader: "from-header"})

		assert.Equal(t, http.StatusCreated, w.Code)
		gw.AssertExpectations(t)
	})

	t.Run("MalformedBodyNeverReachesGateway", func(t *testing.T) {
		gw := new(MockGateway)
		w := serve(newTransactionRouter(gw, new(MockBalanceReader)), "POST", "/v1/transactions", `{"user_id": `, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		gw.AssertNotCalled(t, "ProcessTransaction", mock.Anything, mock.Anything)
	})
}

func TestRefund(t *testing.T) {
	gw := new(MockGateway)
	gw.On("ProcessRefund", mock.Anything, domain.RefundParams{
		OriginalCorrelationID: "txn_orig",
		AmountCents:           700,
		Reason:                "cancelled show",
	}).Return(domain.TransactionResult{Status: domain.TransactionStatusCompleted, CorrelationID: "txn_refund"}).Once()

	w := serve(newTransactionRouter(gw, new(MockBalanceReader)), "POST", "/v1/transactions/txn_orig/refunds",
		`{"amount_cents": 700, "reason": "cancelled show"}`, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	gw.AssertExpectations(t)
}

func TestGetAccountBalance(t *testing.T) {
	balances := new(MockBalanceReader)
	balances.On("GetUserBalance", mock.Anything, "artist-1").Return(int64(123456), nil).Once()
	balances.On("GetUserBalance", mock.Anything, "broken").Return(int64(0), errors.New("db down")).Once()
	router := newTransactionRouter(new(MockGateway), balances)

	w := serve(router, "GET", "/v1/accounts/artist-1/balance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body types.BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, types.BalanceResponse{
		AccountID:    "artist-1",
		WalletID:     "wlt_artist-1",
		BalanceCents: 123456,
		Balance:      "1234.56",
	}, body)

	w = serve(router, "GET", "/v1/accounts/broken/balance", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	balances.AssertExpectations(t)
}

func TestGetLedgerBalance(t *testing.T) {
	balances := new(MockBalanceReader)
	balances.On("ValidateLedgerBalance", mock.Anything, reconcile.Options{PerTransaction: true}).
		Return(&domain.BalanceReport{IsBalanced: true}, nil).Once()

	w := serve(newTransactionRouter(new(MockGateway), balances), "GET", "/v1/ledger/balance?per_transaction=1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_balanced":true`)
	balances.AssertExpectations(t)
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "50.00", types.FormatCents(5000))
	assert.Equal(t, "-0.05", types.FormatCents(-5))
	assert.Equal(t, "0.00", types.FormatCents(0))
}
