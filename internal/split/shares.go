// internal/split/shares.go
package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"encore-ledger/internal/domain"
	"encore-ledger/internal/util"
)

var hundred = decimal.NewFromInt(100)

// ComputeShares divides gross between the contract's parties. Each share is
// floor(percent * gross / 100); parties below their minimum are topped up from
// the remainder party, which also receives the rounding remainder. The shares
// always sum to gross.
func ComputeShares(contract *domain.SplitContract, gross int64) ([]domain.Share, error) {
	if gross <= 0 {
		return nil, fmt.Errorf("gross amount must be positive: %w", util.ErrInvalidInput)
	}
	if len(contract.Parties) == 0 {
		return nil, fmt.Errorf("contract %s has no parties: %w", contract.ID, util.ErrSplitInvalid)
	}

	remainderRole := contract.RemainderRole()
	remainderIdx := -1
	shares := make([]domain.Share, len(contract.Parties))
	grossDec := decimal.NewFromInt(gross)
	var allocated int64
	for i, p := range contract.Parties {
		amount := p.Percent.Mul(grossDec).Div(hundred).Floor().IntPart()
		shares[i] = domain.Share{Role: p.Role, AccountID: p.AccountID, AmountCents: amount}
		allocated += amount
		if p.Role == remainderRole && remainderIdx < 0 {
			remainderIdx = i
		}
	}
	if remainderIdx < 0 {
		return nil, fmt.Errorf("remainder party %q is not part of contract %s: %w", remainderRole, contract.ID, util.ErrSplitInvalid)
	}
	if allocated > gross {
		return nil, fmt.Errorf("party percentages exceed 100: %w", util.ErrSplitInvalid)
	}
	shares[remainderIdx].AmountCents += gross - allocated

	for i, p := range contract.Parties {
		if i == remainderIdx || p.MinAmountCents <= shares[i].AmountCents {
			continue
		}
		topUp := p.MinAmountCents - shares[i].AmountCents
		shares[i].AmountCents += topUp
		shares[remainderIdx].AmountCents -= topUp
	}
	if shares[remainderIdx].AmountCents < 0 {
		return nil, fmt.Errorf("minimum amounts exceed the %s share of %d: %w", remainderRole, gross, util.ErrSplitInvalid)
	}
	if minimum := contract.Parties[remainderIdx].MinAmountCents; shares[remainderIdx].AmountCents < minimum {
		return nil, fmt.Errorf("%s share %d is below its minimum %d: %w", remainderRole, shares[remainderIdx].AmountCents, minimum, util.ErrSplitInvalid)
	}
	return shares, nil
}

// ValidateTerms checks that a contract may be activated: parties are well formed,
// percentages sum to exactly 100 and the platform keeps at least floor percent.
func ValidateTerms(contract *domain.SplitContract, floor decimal.Decimal) error {
	var errs []string
	if contract.Name == "" {
		errs = append(errs, "name is required")
	}
	if len(contract.Parties) == 0 {
		errs = append(errs, "at least one party is required")
	}

	roles := make(map[string]bool, len(contract.Parties))
	for i, p := range contract.Parties {
		if p.Role == "" {
			errs = append(errs, fmt.Sprintf("party %d: role is required", i))
		} else if roles[p.Role] {
			errs = append(errs, fmt.Sprintf("party %d: duplicate role %q", i, p.Role))
		}
		roles[p.Role] = true
		if p.AccountID == "" {
			errs = append(errs, fmt.Sprintf("party %d: account_id is required", i))
		}
		if !p.Percent.IsPositive() {
			errs = append(errs, fmt.Sprintf("party %d: percent must be positive", i))
		}
		if p.MinAmountCents < 0 {
			errs = append(errs, fmt.Sprintf("party %d: min_amount_cents must not be negative", i))
		}
	}

	if total := contract.PercentTotal(); !total.Equal(hundred) {
		errs = append(errs, fmt.Sprintf("percentages sum to %s, expected 100", total.String()))
	}

	platform, ok := contract.Party(domain.PlatformRole)
	switch {
	case !ok:
		errs = append(errs, "a platform party is required")
	case platform.Percent.LessThan(floor):
		errs = append(errs, fmt.Sprintf("platform percent %s is below the %s floor", platform.Percent.String(), floor.String()))
	}

	if remainder := contract.RemainderRole(); !roles[remainder] {
		errs = append(errs, fmt.Sprintf("remainder_to role %q is not a party", remainder))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", util.ErrSplitInvalid, util.NewValidationError(errs))
	}
	return nil
}
