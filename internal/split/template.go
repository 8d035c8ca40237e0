// internal/split/template.go
package split

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Template is a split contract described in YAML, as applied by the operator CLI:
//
//	name: Summer tour
//	currency: USD
//	activate: true
//	parties:
//	  - {role: artist, account_id: artist-1, percent: 70}
//	  - {role: platform, account_id: platform-revenue, percent: 20}
//	  - {role: host, account_id: host-9, percent: 10, min_amount_cents: 500}
//	rules:
//	  - {type: remainder_to, value: platform}
type Template struct {
	CreateParams `yaml:",inline"`
	Activate     bool `yaml:"activate"`
}

// LoadTemplate decodes a contract template. Unknown keys are rejected.
func LoadTemplate(r io.Reader) (*Template, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var t Template
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse split template: %w", err)
	}
	return &t, nil
}
