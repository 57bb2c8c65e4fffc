package firewall

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// RuleKind selects the evaluation strategy for a rule.
type RuleKind string

const (
	KindAddressMatch   RuleKind = "address-match"
	KindPatternMatch   RuleKind = "pattern-match"
	KindBehaviorRate   RuleKind = "behavior-rate"
	KindHeuristicScore RuleKind = "heuristic-score"
)

// Action is the outcome a rule imposes when it fires.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionBlock     Action = "block"
	ActionRateLimit Action = "rate_limit"
)

// Rule is a single entry in the evaluation chain. Rules are evaluated in
// insertion order and the first one that disallows wins.
type Rule struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Kind    RuleKind `json:"kind"`
	Action  Action   `json:"action"`
	Enabled bool     `json:"enabled"`

	// Kind-specific parameters.
	Address   string  `json:"address,omitempty"`   // address-match
	Pattern   string  `json:"pattern,omitempty"`   // pattern-match
	Threshold float64 `json:"threshold,omitempty"` // behavior-rate (count) or heuristic-score (score)

	re *regexp.Regexp
}

// compile validates kind-specific parameters and prepares the regexp for
// pattern rules. Called once when a rule enters the chain.
func (r *Rule) compile() error {
	switch r.Kind {
	case KindAddressMatch:
		if r.Address == "" {
			return fmt.Errorf("rule %s: address-match requires an address", r.ID)
		}
	case KindPatternMatch:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
		}
		r.re = re
	case KindBehaviorRate, KindHeuristicScore:
		if r.Threshold <= 0 {
			return fmt.Errorf("rule %s: %s requires a positive threshold", r.ID, r.Kind)
		}
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.ID, r.Kind)
	}
	return nil
}

func patternRule(name, pattern string) *Rule {
	return &Rule{
		ID:      uuid.NewString(),
		Name:    name,
		Kind:    KindPatternMatch,
		Action:  ActionBlock,
		Pattern: pattern,
		Enabled: true,
	}
}

// defaultRules is the seed chain: injection-style pattern blocks, a
// cumulative request ceiling and a heuristic score gate.
func defaultRules() []*Rule {
	rules := []*Rule{
		patternRule("sql injection", `(?i)(\bunion\s+select\b|\bselect\s+.+\bfrom\b|\bdrop\s+(table|database)\b|'\s*or\s+\d+\s*=\s*\d+|--)`),
		patternRule("script tag", `(?i)<script[^>]*>`),
		patternRule("javascript uri", `(?i)javascript:`),
		patternRule("inline event handler", `(?i)\bon\w+\s*=`),
		patternRule("path traversal", `\.\./|\.\.\\`),
	}
	rules = append(rules,
		&Rule{
			ID:        uuid.NewString(),
			Name:      "request flood",
			Kind:      KindBehaviorRate,
			Action:    ActionRateLimit,
			Threshold: 1000,
			Enabled:   true,
		},
		&Rule{
			ID:        uuid.NewString(),
			Name:      "threat score gate",
			Kind:      KindHeuristicScore,
			Action:    ActionBlock,
			Threshold: 0.85,
			Enabled:   true,
		},
	)
	for _, r := range rules {
		if err := r.compile(); err != nil {
			// Seed rules are fixed at build time; a compile failure here is
			// a programmer error.
			panic(err)
		}
	}
	return rules
}
