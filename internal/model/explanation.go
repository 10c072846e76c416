package model

import (
	"fmt"
	"time"
)

// Explanation is a human-oriented view of why a rule fires and how much it
// can be trusted. It is what collaborators show next to a categorization.
type Explanation struct {
	Pattern         string     `json:"pattern"`
	MatchType       MatchType  `json:"match_type"`
	Scope           RuleScope  `json:"scope"`
	Category        string     `json:"category"`
	Source          RuleSource `json:"source"`
	HumanReadable   string     `json:"human_readable"`
	Confidence      float64    `json:"confidence"`
	Utility         float64    `json:"utility"`
	TimesMatched    int        `json:"times_matched"`
	TimesOverridden int        `json:"times_overridden"`
	Trusted         bool       `json:"trusted"`
}

// Explain builds the explanation view for a rule.
func (r *Rule) Explain(now time.Time) Explanation {
	return Explanation{
		Pattern:         r.Pattern,
		MatchType:       r.MatchType,
		Scope:           r.Scope,
		Category:        r.Category,
		Source:          r.Source,
		Confidence:      r.Confidence,
		Trusted:         r.Trusted(),
		Utility:         r.Utility(now),
		TimesMatched:    r.TimesMatched,
		TimesOverridden: r.TimesOverridden,
		HumanReadable:   r.humanReadable(),
	}
}

func (r *Rule) humanReadable() string {
	var verb string
	switch r.MatchType {
	case MatchExact:
		verb = "exactly matches"
	case MatchStartsWith:
		verb = "starts with"
	case MatchEndsWith:
		verb = "ends with"
	case MatchContains:
		verb = "contains"
	case MatchRegex, MatchRegexAnchored:
		verb = "matches the expression"
	default:
		verb = "matches"
	}

	origin := "learned automatically"
	switch r.Source {
	case SourceManual:
		origin = "created by you"
	case SourceSystem:
		origin = "built in"
	case SourceAI:
		origin = "suggested by AI"
	case SourceAuto:
		origin = "learned automatically"
	}

	return fmt.Sprintf("Categorized as %q because the description %s %q (%s, %.0f%% confidence, used %d times)",
		r.Category, verb, r.Pattern, origin, r.Confidence*100, r.TimesMatched)
}
