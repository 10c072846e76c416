// Package model defines the core data structures for the rupi engine.
package model

import (
	"fmt"
	"strings"
	"time"
)

// MatchType determines how a rule's pattern is compared against a
// transaction description.
type MatchType string

// Match type constants.
const (
	MatchExact         MatchType = "exact"
	MatchStartsWith    MatchType = "starts_with"
	MatchEndsWith      MatchType = "ends_with"
	MatchContains      MatchType = "contains"
	MatchRegex         MatchType = "regex"
	MatchRegexAnchored MatchType = "regex_anchored"
)

// Valid reports whether the match type is one of the known constants.
func (m MatchType) Valid() bool {
	switch m {
	case MatchExact, MatchStartsWith, MatchEndsWith, MatchContains, MatchRegex, MatchRegexAnchored:
		return true
	}
	return false
}

// IsRegex reports whether the match type compiles its pattern as a regex.
func (m MatchType) IsRegex() bool {
	return m == MatchRegex || m == MatchRegexAnchored
}

// RuleSource records where a rule came from.
type RuleSource string

// Rule source constants.
const (
	SourceManual RuleSource = "manual"
	SourceSystem RuleSource = "system"
	SourceAI     RuleSource = "ai"
	SourceAuto   RuleSource = "auto"
)

// Valid reports whether the source is one of the known constants.
func (s RuleSource) Valid() bool {
	switch s {
	case SourceManual, SourceSystem, SourceAI, SourceAuto:
		return true
	}
	return false
}

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

// Rule status constants.
const (
	StatusCandidate   RuleStatus = "candidate"
	StatusActive      RuleStatus = "active"
	StatusQuarantined RuleStatus = "quarantined"
)

// Valid reports whether the status is one of the known constants.
func (s RuleStatus) Valid() bool {
	switch s {
	case StatusCandidate, StatusActive, StatusQuarantined:
		return true
	}
	return false
}

// RuleScope is the matching precedence domain a rule applies to.
type RuleScope string

// Rule scope constants.
const (
	ScopeGlobal          RuleScope = "global"
	ScopeNarration       RuleScope = "narration"
	ScopeMerchant        RuleScope = "merchant"
	ScopeAccountSpecific RuleScope = "account_specific"
)

// Valid reports whether the scope is one of the known constants.
func (s RuleScope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeNarration, ScopeMerchant, ScopeAccountSpecific:
		return true
	}
	return false
}

// Quarantine reasons recorded on rules.
const (
	QuarantineFailedProbation = "failed_probation"
	QuarantineLowConfidence   = "low_confidence"
	QuarantineAutoPruned      = "auto_pruned_capacity"
)

// Rule represents a learned categorization rule for transaction descriptions.
type Rule struct {
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastOverriddenAt *time.Time `json:"last_overridden_at,omitempty"`
	QuarantinedAt    *time.Time `json:"quarantined_at,omitempty"`
	AccountID        *string    `json:"account_id,omitempty"`
	PatternHash      *string    `json:"pattern_hash,omitempty"`
	Pattern          string     `json:"pattern"`
	Category         string     `json:"category"`
	FamilyID         string     `json:"family_id"`
	QuarantineReason string     `json:"quarantine_reason,omitempty"`
	MatchType        MatchType  `json:"match_type"`
	Source           RuleSource `json:"source"`
	Status           RuleStatus `json:"status"`
	Scope            RuleScope  `json:"scope"`
	Confidence       float64    `json:"confidence"`
	Priority         int        `json:"priority"`
	TimesMatched     int        `json:"times_matched"`
	TimesOverridden  int        `json:"times_overridden"`
	ID               int64      `json:"id"`
	Probationary     bool       `json:"probationary"`
	UserConfirmed    bool       `json:"user_confirmed"`
}

// Trusted reports whether the rule has earned full trust: active,
// out of probation, and either user-confirmed or manually created.
func (r *Rule) Trusted() bool {
	if r.Status != StatusActive || r.Probationary {
		return false
	}
	return r.UserConfirmed || r.Source == SourceManual
}

// Utility is the recency- and accuracy-weighted score used to rank rules
// for capacity-driven eviction. Higher is more worth keeping.
func (r *Rule) Utility(now time.Time) float64 {
	ageDays := now.Sub(r.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return float64(r.TimesMatched) - float64(r.TimesOverridden)*3 - ageDays/30
}

// Evictable reports whether the capacity manager may auto-quarantine or
// auto-delete this rule. Manual and user-confirmed rules are protected.
func (r *Rule) Evictable() bool {
	return r.Source != SourceManual && !r.UserConfirmed
}

// Validate ensures the rule satisfies the model invariants.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("pattern is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if strings.TrimSpace(r.FamilyID) == "" {
		return fmt.Errorf("family id is required")
	}
	if !r.MatchType.Valid() {
		return fmt.Errorf("invalid match type: %s", r.MatchType)
	}
	if !r.Source.Valid() {
		return fmt.Errorf("invalid source: %s", r.Source)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if !r.Scope.Valid() {
		return fmt.Errorf("invalid scope: %s", r.Scope)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	if r.MatchType == MatchExact && (r.PatternHash == nil || *r.PatternHash == "") {
		return fmt.Errorf("exact rules require a pattern hash")
	}
	if r.MatchType != MatchExact && r.PatternHash != nil {
		return fmt.Errorf("non-exact rules must not carry a pattern hash")
	}
	return nil
}
