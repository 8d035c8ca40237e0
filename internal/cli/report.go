// internal/cli/report.go
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"encore-ledger/internal/api/types"
	"encore-ledger/internal/domain"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// RenderReport writes a balance report in the requested format.
func RenderReport(w io.Writer, report *domain.BalanceReport, format string) error {
	if format == formatJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", out)
		return err
	}

	status := "balanced"
	if !report.IsBalanced {
		status = "IMBALANCED"
	}
	fmt.Fprintf(w, "status: %s\n", status)
	fmt.Fprintf(w, "checked_at: %s\n", report.CheckedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "total_imbalance: %s\n", types.FormatCents(report.TotalImbalance))
	if len(report.ImbalancedCurrencies) > 0 {
		fmt.Fprintf(w, "imbalanced_currencies: %s\n", strings.Join(report.ImbalancedCurrencies, ", "))
	}
	fmt.Fprintf(w, "recheck: %t\n", report.Recheck)

	if len(report.ByCurrency) == 0 {
		fmt.Fprintln(w, "currencies: none")
	} else {
		fmt.Fprintln(w, "currencies:")
		for _, c := range report.ByCurrency {
			fmt.Fprintf(w, "  %s credits=%s debits=%s imbalance=%s\n", c.Currency,
				types.FormatCents(c.CreditsCents), types.FormatCents(c.DebitsCents), types.FormatCents(c.Imbalance()))
		}
	}

	if len(report.PerTransaction) > 0 {
		fmt.Fprintln(w, "transactions:")
		for _, t := range report.PerTransaction {
			fmt.Fprintf(w, "  %s credits=%s debits=%s imbalance=%s entries=%d last_entry_at=%s recheck=%t\n",
				t.CorrelationID, types.FormatCents(t.CreditsCents), types.FormatCents(t.DebitsCents),
				types.FormatCents(t.Imbalance()), t.EntryCount, t.LastEntryAt.UTC().Format(time.RFC3339), t.Recheck)
		}
	}

	if len(report.IncompleteTransactions) > 0 {
		fmt.Fprintln(w, "incomplete:")
		for _, id := range report.IncompleteTransactions {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return nil
}

// RenderBalance writes one account's balance.
func RenderBalance(w io.Writer, accountID, walletID string, balanceCents int64) {
	fmt.Fprintf(w, "account: %s\n", accountID)
	fmt.Fprintf(w, "wallet_id: %s\n", walletID)
	fmt.Fprintf(w, "balance: %s (%d cents)\n", types.FormatCents(balanceCents), balanceCents)
}
