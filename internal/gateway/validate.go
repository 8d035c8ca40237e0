// internal/gateway/validate.go
package gateway

import (
	"fmt"
	"strings"

	"encore-ledger/internal/domain"
)

// normalize trims identifiers and fills the default currency.
func (g *Gateway) normalize(p domain.TransactionParams) domain.TransactionParams {
	p.UserID = strings.TrimSpace(p.UserID)
	p.CounterpartyID = strings.TrimSpace(p.CounterpartyID)
	p.ReferenceID = strings.TrimSpace(p.ReferenceID)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = g.cfg.DefaultCurrency
	}
	return p
}

// ValidateTransaction reports every violation in params. It performs no I/O.
func (g *Gateway) ValidateTransaction(params domain.TransactionParams) domain.ValidationResult {
	p := g.normalize(params)
	var errs []string

	if p.UserID == "" {
		errs = append(errs, "user_id is required")
	} else if p.UserID == g.cfg.ReserveAccount {
		errs = append(errs, "user_id cannot be the platform reserve account")
	}

	switch {
	case p.AmountCents <= 0:
		errs = append(errs, "amount_cents must be greater than zero")
	case p.AmountCents > g.cfg.MaxAmountCents:
		errs = append(errs, fmt.Sprintf("amount_cents must not exceed %d", g.cfg.MaxAmountCents))
	}

	typeValid := p.Type.IsPublic()
	if !typeValid {
		names := make([]string, len(domain.PublicTransactionTypes))
		for i, t := range domain.PublicTransactionTypes {
			names[i] = string(t)
		}
		errs = append(errs, fmt.Sprintf("type must be one of %s", strings.Join(names, ", ")))
	}

	if !g.currencySupported(p.Currency) {
		errs = append(errs, fmt.Sprintf("currency %s is not supported", p.Currency))
	}

	if p.Type == domain.TransactionTypeRefund && p.ReferenceID == "" {
		errs = append(errs, "reference_id (original correlation id) is required for refunds")
	}

	if p.CounterpartyID != "" && p.CounterpartyID == p.UserID {
		errs = append(errs, "counterparty_id must differ from user_id")
	}

	if typeValid {
		errs = append(errs, p.Metadata.Validate(p.Type.EventSource())...)
	}

	return domain.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (g *Gateway) currencySupported(currency string) bool {
	for _, c := range g.cfg.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}
