// internal/gateway/validate_test.go
package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"encore-ledger/internal/domain"
)

func TestValidateTransaction(t *testing.T) {
	gw := &Gateway{cfg: Config{
		ReserveAccount:      reserve,
		MaxAmountCents:      99_999_900,
		SupportedCurrencies: []string{"USD", "EUR", "GBP", "CAD"},
		DefaultCurrency:     "USD",
	}}

	valid := domain.TransactionParams{UserID: "fan-1", AmountCents: 5000, Type: domain.TransactionTypeTicket}

	tests := []struct {
		name    string
		mutate  func(p *domain.TransactionParams)
		wantErr string
	}{
		{"Valid", func(p *domain.TransactionParams) {}, ""},
		{"BlankUser", func(p *domain.TransactionParams) { p.UserID = "   " }, "user_id is required"},
		{"ReserveAsPayer", func(p *domain.TransactionParams) { p.UserID = reserve }, "platform reserve"},
		{"ZeroAmount", func(p *domain.TransactionParams) { p.AmountCents = 0 }, "greater than zero"},
		{"NegativeAmount", func(p *domain.TransactionParams) { p.AmountCents = -5 }, "greater than zero"},
		{"AboveCeiling", func(p *domain.TransactionParams) { p.AmountCents = 99_999_901 }, "must not exceed 99999900"},
		{"AtCeiling", func(p *domain.TransactionParams) { p.AmountCents = 99_999_900 }, ""},
		{"UnknownType", func(p *domain.TransactionParams) { p.Type = "donation" }, "type must be one of"},
		{"InternalType", func(p *domain.TransactionParams) { p.Type = domain.TransactionTypeSplit }, "type must be one of"},
		{"UnsupportedCurrency", func(p *domain.TransactionParams) { p.Currency = "JPY" }, "currency JPY is not supported"},
		{"LowercaseCurrency", func(p *domain.TransactionParams) { p.Currency = "gbp" }, ""},
		{"RefundWithoutReference", func(p *domain.TransactionParams) { p.Type = domain.TransactionTypeRefund }, "reference_id"},
		{"SelfCounterparty", func(p *domain.TransactionParams) { p.CounterpartyID = "fan-1" }, "counterparty_id must differ"},
		{"ForeignMetadataKey", func(p *domain.TransactionParams) { p.Metadata = domain.Metadata{"contract_id": "c-1"} }, `key "contract_id" is not allowed`},
		{"LongMetadataValue", func(p *domain.TransactionParams) {
			p.Metadata = domain.Metadata{"note": strings.Repeat("x", domain.MaxMetadataValueLen+1)}
		}, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			result := gw.ValidateTransaction(p)
			if tt.wantErr == "" {
				assert.True(t, result.Valid, result.Errors)
				assert.Empty(t, result.Errors)
				return
			}
			assert.False(t, result.Valid)
			assert.Contains(t, strings.Join(result.Errors, "; "), tt.wantErr)
		})
	}
}

func TestValidateTransactionReportsAllViolations(t *testing.T) {
	gw := &Gateway{cfg: Config{
		MaxAmountCents:      100,
		SupportedCurrencies: []string{"USD"},
		DefaultCurrency:     "USD",
	}}

	result := gw.ValidateTransaction(domain.TransactionParams{
		UserID:      "",
		AmountCents: 0,
		Type:        "bogus",
		Currency:    "XYZ",
	})
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 4)
}
