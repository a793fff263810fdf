package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Disclosure identifiers. The guard requires the first two before any payment
// commitment; the catalog may carry additional optional statements.
const (
	DisclosureIdentify       = "identify-as-debt-collector"
	DisclosureRightToDispute = "right-to-dispute"
	DisclosureCallRecorded   = "call-recorded-notice"
)

// Disclosure is one mandatory or optional spoken statement.
type Disclosure struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Hours is the permitted local calling window [Start, End) in whole hours.
type Hours struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// IntentRules holds the phrase lists the classifier matches against.
// All matching is case-insensitive substring.
type IntentRules struct {
	Cease       []string `yaml:"cease"`
	Affirm      []string `yaml:"affirm"`
	Dispute     []string `yaml:"dispute"`
	Hardship    []string `yaml:"hardship"`
	Human       []string `yaml:"human"`
	Alternative []string `yaml:"alternative"`
}

// Policy is the compliance and conversation policy for outbound calls.
// The legal wording of disclosures and the exact limits are operator data,
// loaded from a YAML file; Default covers local development.
type Policy struct {
	Disclosures       []Disclosure `yaml:"disclosures"`
	Required          []string     `yaml:"required"`
	BusinessHours     Hours        `yaml:"business_hours"`
	MaxCallsPerPeriod int          `yaml:"max_calls_per_period"`
	Intents           IntentRules  `yaml:"intents"`
}

// Default returns the built-in policy used when no file is configured.
func Default() Policy {
	return Policy{
		Disclosures: []Disclosure{
			{ID: DisclosureIdentify, Text: "This call is from a debt collector attempting to collect a debt. Any information obtained will be used for that purpose."},
			{ID: DisclosureRightToDispute, Text: "You have the right to dispute this debt. If you dispute it within thirty days we will provide verification."},
			{ID: DisclosureCallRecorded, Text: "This call may be recorded for quality and compliance purposes."},
		},
		Required:          []string{DisclosureIdentify, DisclosureRightToDispute},
		BusinessHours:     Hours{Start: 8, End: 21},
		MaxCallsPerPeriod: 7,
		Intents: IntentRules{
			Cease: []string{
				"stop calling", "don't call", "do not call", "remove my number",
				"cease", "stop contacting", "never call",
			},
			Affirm: []string{
				"i'll pay", "i will pay", "i can pay", "pay it now", "pay in full",
				"sounds good", "let's do that", "i agree", "that works",
			},
			Dispute: []string{
				"not my debt", "dispute", "never heard of", "already paid",
				"don't owe", "do not owe", "wrong person", "identity theft",
			},
			Hardship: []string{
				"can't afford", "cannot afford", "lost my job", "unemployed",
				"hospital", "medical bills", "hardship", "disability", "no money",
			},
			Human: []string{
				"real person", "human", "speak to someone", "supervisor",
				"representative", "transfer me",
			},
			Alternative: []string{
				"smaller", "installments", "lower", "less per month", "more time",
				"next month", "different plan", "spread it out", "extension",
			},
		},
	}
}

// Load reads a YAML policy file. Fields absent from the file keep their
// Default values, so operators can override just the disclosure wording.
func Load(path string) (Policy, error) {
	p := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks internal consistency: every required disclosure must exist
// in the catalog and the calling window must be sane.
func (p Policy) Validate() error {
	for _, id := range p.Required {
		if p.DisclosureText(id) == "" {
			return fmt.Errorf("required disclosure %q not in catalog", id)
		}
	}
	if p.BusinessHours.Start < 0 || p.BusinessHours.End > 24 || p.BusinessHours.Start >= p.BusinessHours.End {
		return fmt.Errorf("invalid business hours %d-%d", p.BusinessHours.Start, p.BusinessHours.End)
	}
	return nil
}

// DisclosureText returns the wording for a catalog id, or "" when unknown.
func (p Policy) DisclosureText(id string) string {
	for _, d := range p.Disclosures {
		if d.ID == id {
			return d.Text
		}
	}
	return ""
}

// InCatalog reports whether id is part of the disclosure catalog.
func (p Policy) InCatalog(id string) bool {
	return p.DisclosureText(id) != ""
}
