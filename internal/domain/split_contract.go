// internal/domain/split_contract.go
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SplitStatus is the lifecycle state of a split contract.
type SplitStatus string

const (
	SplitStatusDraft     SplitStatus = "draft"
	SplitStatusActive    SplitStatus = "active"
	SplitStatusCompleted SplitStatus = "completed"
	SplitStatusDisputed  SplitStatus = "disputed"
	SplitStatusCancelled SplitStatus = "cancelled"
)

var splitTransitions = map[SplitStatus][]SplitStatus{
	SplitStatusDraft:    {SplitStatusActive, SplitStatusCancelled},
	SplitStatusActive:   {SplitStatusCompleted, SplitStatusDisputed, SplitStatusCancelled},
	SplitStatusDisputed: {SplitStatusActive, SplitStatusCancelled},
}

// CanTransitionTo reports whether a contract in s may move to next.
func (s SplitStatus) CanTransitionTo(next SplitStatus) bool {
	return allowed(splitTransitions[s], next)
}

// PlatformRole is the role that by convention receives the rounding remainder.
const PlatformRole = "platform"

// RuleRemainderTo names the role that receives the rounding remainder.
const RuleRemainderTo = "remainder_to"

// SplitParty is one beneficiary of a split contract.
type SplitParty struct {
	Role           string          `json:"role" yaml:"role"`
	AccountID      string          `json:"account_id" yaml:"account_id"`
	Percent        decimal.Decimal `json:"percent" yaml:"percent"`
	MinAmountCents int64           `json:"min_amount_cents,omitempty" yaml:"min_amount_cents,omitempty"`
}

// SplitRule is a typed contract rule, e.g. {remainder_to, artist}.
type SplitRule struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// SplitParties is stored as a JSON column.
type SplitParties []SplitParty

// SplitRules is stored as a JSON column.
type SplitRules []SplitRule

// SplitContract is a multi-party revenue sharing agreement.
type SplitContract struct {
	ID               string       `db:"id" json:"id"`
	Name             string       `db:"name" json:"name"`
	Parties          SplitParties `db:"parties" json:"parties"`
	Rules            SplitRules   `db:"rules" json:"rules"`
	Status           SplitStatus  `db:"status" json:"status"`
	Currency         string       `db:"currency" json:"currency"`
	TotalAmountCents int64        `db:"total_amount_cents" json:"total_amount_cents"` // Zero means open-ended
	DistributedCents int64        `db:"distributed_cents" json:"distributed_cents"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// RemainderRole returns the role designated to absorb rounding remainders.
func (c *SplitContract) RemainderRole() string {
	for _, r := range c.Rules {
		if r.Type == RuleRemainderTo && r.Value != "" {
			return r.Value
		}
	}
	return PlatformRole
}

// PercentTotal sums the party percentages.
func (c *SplitContract) PercentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.Parties {
		total = total.Add(p.Percent)
	}
	return total
}

// Party returns the first party with the given role.
func (c *SplitContract) Party(role string) (SplitParty, bool) {
	for _, p := range c.Parties {
		if p.Role == role {
			return p, true
		}
	}
	return SplitParty{}, false
}

// Share is one party's computed portion of a gross amount.
type Share struct {
	Role        string `json:"role"`
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
}

func (p SplitParties) Value() (driver.Value, error) { return jsonValue(p) }
func (p *SplitParties) Scan(src interface{}) error  { return jsonScan(src, p) }
func (r SplitRules) Value() (driver.Value, error)   { return jsonValue(r) }
func (r *SplitRules) Scan(src interface{}) error    { return jsonScan(src, r) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
}
