// internal/domain/metadata.go
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// MaxMetadataValueLen bounds a single metadata value.
const MaxMetadataValueLen = 512

// Metadata is the typed key/value bag attached to ledger entries and journal entries.
// The keys allowed on a ledger entry depend on its event source, see MetadataSchema.
type Metadata map[string]string

// commonMetadataKeys are accepted for every event source.
var commonMetadataKeys = []string{"transaction_type", "event_id", "note"}

// MetadataSchema documents the keys each event source may carry.
//
//	charge              event_id, ticket_tier, subscription_plan, tip_message, processor, processor_charge_id
//	refund              original_correlation_id, reason, processor_refund_id
//	adjustment          reason, operator_id
//	split_distribution  contract_id, role
//	payout              payout_request_id, processor_transfer_id
//	attribution         attribution_id, source_correlation_id
var MetadataSchema = map[EventSource][]string{
	EventSourceCharge:            {"ticket_tier", "subscription_plan", "tip_message", "processor", "processor_charge_id"},
	EventSourceRefund:            {"original_correlation_id", "reason", "processor_refund_id"},
	EventSourceAdjustment:        {"reason", "operator_id"},
	EventSourceSplitDistribution: {"contract_id", "role"},
	EventSourcePayout:            {"payout_request_id", "processor_transfer_id"},
	EventSourceAttribution:       {"attribution_id", "source_correlation_id"},
}

// Validate checks m against the schema of source and returns one message per violation.
func (m Metadata) Validate(source EventSource) []string {
	allowed, ok := MetadataSchema[source]
	if !ok {
		return []string{fmt.Sprintf("metadata: unknown event source %q", source)}
	}
	permitted := make(map[string]bool, len(allowed)+len(commonMetadataKeys))
	for _, k := range allowed {
		permitted[k] = true
	}
	for _, k := range commonMetadataKeys {
		permitted[k] = true
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var violations []string
	for _, k := range keys {
		if !permitted[k] {
			violations = append(violations, fmt.Sprintf("metadata: key %q is not allowed for %s entries", k, source))
			continue
		}
		if len(m[k]) > MaxMetadataValueLen {
			violations = append(violations, fmt.Sprintf("metadata: value of %q exceeds %d characters", k, MaxMetadataValueLen))
		}
	}
	return violations
}

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// Value implements driver.Valuer; metadata is stored as a JSON text column.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	*m = out
	return nil
}
