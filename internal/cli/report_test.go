// internal/cli/report_test.go
package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore-ledger/internal/domain"
)

var checkedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func balancedReport() *domain.BalanceReport {
	return &domain.BalanceReport{
		IsBalanced: true,
		ByCurrency: []domain.CurrencyTotals{
			{Currency: "EUR", CreditsCents: 15000, DebitsCents: 15000},
			{Currency: "USD", CreditsCents: 100000, DebitsCents: 100000},
		},
		CheckedAt: checkedAt,
	}
}

func imbalancedReport() *domain.BalanceReport {
	return &domain.BalanceReport{
		IsBalanced:           false,
		TotalImbalance:       1200,
		ImbalancedCurrencies: []string{"USD"},
		ByCurrency: []domain.CurrencyTotals{
			{Currency: "USD", CreditsCents: 5000, DebitsCents: 6200},
		},
		PerTransaction: []domain.TransactionImbalance{{
			CorrelationID: "txn_half",
			DebitsCents:   1200,
			EntryCount:    1,
			LastEntryAt:   checkedAt.Add(-time.Hour),
		}},
		IncompleteTransactions: []string{"txn_half"},
		CheckedAt:              checkedAt,
	}
}

func TestRenderReport(t *testing.T) {
	g := goldie.New(t)

	tests := []struct {
		golden string
		report *domain.BalanceReport
		format string
	}{
		{"report_balanced_text", balancedReport(), formatText},
		{"report_imbalanced_text", imbalancedReport(), formatText},
		{"report_imbalanced_json", imbalancedReport(), formatJSON},
	}
	for _, tc := range tests {
		t.Run(tc.golden, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RenderReport(&buf, tc.report, tc.format))
			g.Assert(t, tc.golden, buf.Bytes())
		})
	}
}

func TestRenderReportEmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, &domain.BalanceReport{IsBalanced: true, CheckedAt: checkedAt}, formatText))

	assert.Equal(t, "status: balanced\n"+
		"checked_at: 2026-03-01T12:00:00Z\n"+
		"total_imbalance: 0.00\n"+
		"recheck: false\n"+
		"currencies: none\n", buf.String())
}

func TestRenderBalance(t *testing.T) {
	var buf bytes.Buffer
	RenderBalance(&buf, "artist-1", "wlt_abc", -3500)

	goldie.New(t).Assert(t, "balance", buf.Bytes())
}
