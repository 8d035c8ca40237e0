// internal/api/types/response.go
package types

import "github.com/shopspring/decimal"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors,omitempty"`
}

// BalanceResponse reports an account's ledger balance.
type BalanceResponse struct {
	AccountID    string `json:"account_id"`
	WalletID     string `json:"wallet_id"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"` // Major units, two decimals
}

// FormatCents renders minor units as a fixed two-decimal amount, e.g. 5000 -> "50.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
