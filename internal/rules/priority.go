package rules

import (
	"math"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// sourceWeights dominate the priority score: provenance is the strongest
// trust signal, but repeated overrides erode it (see Score).
var sourceWeights = map[model.RuleSource]int{
	model.SourceManual: 100,
	model.SourceSystem: 80,
	model.SourceAI:     50,
	model.SourceAuto:   30,
}

// matchTypeWeights order match types by specificity.
var matchTypeWeights = map[model.MatchType]int{
	model.MatchExact:         100,
	model.MatchStartsWith:    85,
	model.MatchEndsWith:      80,
	model.MatchRegexAnchored: 70,
	model.MatchContains:      60,
	model.MatchRegex:         45,
}

// scopeBonuses make narrower scopes outrank global rules of equal standing.
var scopeBonuses = map[model.RuleScope]int{
	model.ScopeAccountSpecific: 300,
	model.ScopeMerchant:        200,
	model.ScopeNarration:       100,
	model.ScopeGlobal:          0,
}

const (
	overridePenalty  = 5000
	confirmedBonus   = 200
	probationPenalty = 100
	maxSpecificity   = 50
)

// Score computes a rule's deterministic priority. It is recomputed on
// every lifecycle event and stored on the rule; matching rules are ranked
// by it, so the function defines a total order of trust.
func Score(r *model.Rule) int {
	base := sourceWeights[r.Source] * 1000

	effectiveBase := base - r.TimesOverridden*overridePenalty
	if effectiveBase < 0 {
		effectiveBase = 0
	}

	matchStrength := matchTypeWeights[r.MatchType] * 10

	specificity := len(r.Pattern)
	if specificity > maxSpecificity {
		specificity = maxSpecificity
	}

	confidenceBonus := int(math.Round(r.Confidence * 10))

	confirmed := 0
	if r.UserConfirmed {
		confirmed = confirmedBonus
	}

	probation := 0
	if r.Probationary {
		probation = probationPenalty
	}

	return effectiveBase + matchStrength + specificity + confidenceBonus +
		confirmed + scopeBonuses[r.Scope] - probation
}
