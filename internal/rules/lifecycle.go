package rules

import (
	"time"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// Lifecycle tuning constants.
const (
	// PromotionThreshold is the match count at which a candidate rule is
	// promoted to active (probationary).
	PromotionThreshold = 2
	// ProbationUses is the number of unchallenged matches required to
	// exit probation.
	ProbationUses = 5
	// MinConfidence is the floor below which a rule is quarantined.
	MinConfidence = 0.3
	// MaxConfidence caps confidence growth; a rule never becomes certain.
	MaxConfidence = 0.99
	// AISeedConfidence is the starting confidence for AI-proposed rules.
	AISeedConfidence = 0.65
	// OverrideCooldown suppresses confidence growth right after an
	// override so one lucky match cannot undo a correction.
	OverrideCooldown = 24 * time.Hour
)

// NewAIRule builds a candidate rule from an AI categorization proposal.
// The caller is responsible for conflict checks before persisting.
func NewAIRule(pattern, category, familyID string, scope model.RuleScope, accountID *string, confidence float64, now time.Time) model.Rule {
	if confidence <= 0 || confidence > 1 {
		confidence = AISeedConfidence
	}
	r := model.Rule{
		Pattern:      pattern,
		Category:     category,
		FamilyID:     familyID,
		Scope:        scope,
		AccountID:    accountID,
		MatchType:    DeriveMatchType(pattern),
		Source:       model.SourceAI,
		Status:       model.StatusCandidate,
		Probationary: true,
		Confidence:   confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	finalize(&r)
	return r
}

// NewManualRule builds an active, fully trusted rule from a user
// correction or an explicit manual rule definition.
func NewManualRule(pattern, category, familyID string, matchType model.MatchType, scope model.RuleScope, accountID *string, now time.Time) model.Rule {
	if matchType.IsRegex() {
		matchType = DetectRegexType(pattern)
	}
	r := model.Rule{
		Pattern:       pattern,
		Category:      category,
		FamilyID:      familyID,
		Scope:         scope,
		AccountID:     accountID,
		MatchType:     matchType,
		Source:        model.SourceManual,
		Status:        model.StatusActive,
		Probationary:  false,
		UserConfirmed: true,
		Confidence:    1.0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	finalize(&r)
	return r
}

// ApplyMatch returns the rule state after one successful match: counter
// bump, diminishing confidence growth, and any promotion or probation
// exit the new counts earn. Pure; the caller persists the result.
func ApplyMatch(r model.Rule, now time.Time) model.Rule {
	r.TimesMatched++

	step := confidenceStep(r.TimesMatched)
	if r.LastOverriddenAt != nil && now.Sub(*r.LastOverriddenAt) < OverrideCooldown {
		step = 0
	}
	r.Confidence = clampConfidence(r.Confidence + step)

	if r.Status == model.StatusCandidate && r.TimesMatched >= PromotionThreshold {
		r.Status = model.StatusActive
		r.Probationary = true
	}
	if r.Status == model.StatusActive && r.Probationary &&
		r.TimesMatched >= ProbationUses && r.TimesOverridden == 0 {
		r.Probationary = false
	}

	r.UpdatedAt = now
	r.Priority = Score(&r)
	return r
}

// ApplyOverride returns the rule state after the user rejects its
// categorization: counter bump, confidence decay, and quarantine when the
// rule fails probation or falls below the confidence floor.
func ApplyOverride(r model.Rule, now time.Time) model.Rule {
	r.TimesOverridden++
	r.LastOverriddenAt = &now

	decay := 0.15
	if r.Source == model.SourceAI {
		decay = 0.20
	}
	r.Confidence -= decay
	if r.Confidence < 0 {
		r.Confidence = 0
	}

	switch {
	case r.Probationary:
		// Zero tolerance during probation.
		r = quarantine(r, model.QuarantineFailedProbation, now)
	case r.Confidence < MinConfidence:
		r = quarantine(r, model.QuarantineLowConfidence, now)
	}

	r.UpdatedAt = now
	r.Priority = Score(&r)
	return r
}

// ApplyConfirm returns the rule state after the user explicitly agrees
// with its categorization.
func ApplyConfirm(r model.Rule, now time.Time) model.Rule {
	if r.Confidence < 0.95 {
		r.Confidence = 0.95
	}
	r.Status = model.StatusActive
	r.Probationary = false
	r.UserConfirmed = true
	r.QuarantinedAt = nil
	r.QuarantineReason = ""
	r.UpdatedAt = now
	r.Priority = Score(&r)
	return r
}

// ApplyQuarantine forces a rule into quarantine with the given reason.
// Used by the capacity manager for utility-based eviction.
func ApplyQuarantine(r model.Rule, reason string, now time.Time) model.Rule {
	r = quarantine(r, reason, now)
	r.UpdatedAt = now
	r.Priority = Score(&r)
	return r
}

func quarantine(r model.Rule, reason string, now time.Time) model.Rule {
	r.Status = model.StatusQuarantined
	r.QuarantineReason = reason
	t := now
	r.QuarantinedAt = &t
	return r
}

// confidenceStep gives diminishing returns as a rule accumulates matches.
func confidenceStep(timesMatched int) float64 {
	switch {
	case timesMatched <= 3:
		return 0.05
	case timesMatched <= 8:
		return 0.02
	default:
		return 0.01
	}
}

func clampConfidence(c float64) float64 {
	if c > MaxConfidence {
		return MaxConfidence
	}
	if c < 0 {
		return 0
	}
	return c
}

// finalize fills derived fields on a freshly built rule.
func finalize(r *model.Rule) {
	if r.MatchType == model.MatchExact {
		h := HashPattern(r.Pattern)
		r.PatternHash = &h
	} else {
		r.PatternHash = nil
	}
	r.Priority = Score(r)
}
