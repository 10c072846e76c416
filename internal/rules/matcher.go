package rules

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// genericTokens are patterns too common to match by plain containment:
// bank brand names, payment-rail abbreviations, and everyday nouns. A
// contains rule for one of these uses a word-boundary regex instead, so
// "sbi" never fires inside an unrelated merchant id.
var genericTokens = map[string]bool{
	"upi": true, "imps": true, "neft": true, "rtgs": true, "atm": true,
	"pos": true, "emi": true, "sip": true,
	"hdfc": true, "icici": true, "sbi": true, "axis": true, "kotak": true,
	"idfc": true, "yes": true, "pnb": true, "bob": true, "canara": true,
	"bank": true, "food": true, "fuel": true, "store": true, "shop": true,
	"online": true, "pay": true, "cash": true, "card": true, "mart": true,
}

// Matcher finds the best-priority active rule for a description. It is
// read-only; recording the match is the caller's explicit side effect.
type Matcher struct {
	store RuleStore
	cache *RegexCache
}

// NewMatcher creates a matcher backed by the given store and regex cache.
func NewMatcher(store RuleStore, cache *RegexCache) *Matcher {
	return &Matcher{store: store, cache: cache}
}

// FindMatchingRule returns the highest-priority active rule matching the
// description within scope (plus global), or nil when nothing matches.
func (m *Matcher) FindMatchingRule(ctx context.Context, description, familyID string, scope model.RuleScope, accountID *string) (*model.Rule, error) {
	if strings.TrimSpace(description) == "" {
		return nil, nil
	}

	normalized := NormalizeLight(description)
	raw := strings.ToLower(strings.TrimSpace(description))
	scopes := scopesFor(scope)

	// Fast path: hash lookup for exact rules, re-verified with the full
	// predicate for hash-collision safety.
	hash := HashPattern(normalized)
	exact, err := m.store.GetActiveExactByHash(ctx, familyID, hash, scopes, accountID)
	if err != nil {
		return nil, err
	}
	for i := range exact {
		if m.Matches(&exact[i], normalized, raw) {
			return &exact[i], nil
		}
	}

	// General path: priority-ordered scan, stopping at the first hit.
	var found *model.Rule
	err = m.store.IterateMatchable(ctx, familyID, scopes, accountID, func(r *model.Rule) (bool, error) {
		if m.Matches(r, normalized, raw) {
			found = r
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Matches evaluates a rule's predicate against the normalized and raw
// (lowercased) forms of a description. Invalid regex patterns never match.
func (m *Matcher) Matches(r *model.Rule, normalized, raw string) bool {
	pattern := strings.ToLower(r.Pattern)

	switch r.MatchType {
	case model.MatchExact:
		return normalized == pattern || raw == pattern
	case model.MatchStartsWith:
		return strings.HasPrefix(normalized, pattern) || strings.HasPrefix(raw, pattern)
	case model.MatchEndsWith:
		return strings.HasSuffix(normalized, pattern) || strings.HasSuffix(raw, pattern)
	case model.MatchContains:
		if genericTokens[pattern] {
			re := m.cache.Get(`(?i)\b` + regexp.QuoteMeta(pattern) + `\b`)
			return re != nil && (re.MatchString(normalized) || re.MatchString(raw))
		}
		return strings.Contains(normalized, pattern) || strings.Contains(raw, pattern)
	case model.MatchRegex, model.MatchRegexAnchored:
		re := m.cache.Get("(?i)" + r.Pattern)
		return re != nil && (re.MatchString(normalized) || re.MatchString(raw))
	}
	return false
}

// scopesFor widens a lookup scope with global, which always applies.
func scopesFor(scope model.RuleScope) []model.RuleScope {
	if scope == model.ScopeGlobal || !scope.Valid() {
		return []model.RuleScope{model.ScopeGlobal}
	}
	return []model.RuleScope{scope, model.ScopeGlobal}
}
