package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// Engine is the top-level facade collaborators call: rule lookup and
// categorization on the read path, rule learning and lifecycle events on
// the write path, and capacity maintenance.
type Engine struct {
	store    RuleStore
	matcher  *Matcher
	enforcer *Enforcer
	now      func() time.Time
}

// New creates an engine over the given store with an injected regex cache.
func New(store RuleStore, cache *RegexCache) *Engine {
	return &Engine{
		store:    store,
		matcher:  NewMatcher(store, cache),
		enforcer: NewEnforcer(store),
		now:      time.Now,
	}
}

// FindMatchingRule returns the best-priority active rule matching the
// description, without side effects. Nil means no rule matched.
func (e *Engine) FindMatchingRule(ctx context.Context, description, familyID string, scope model.RuleScope, accountID *string) (*model.Rule, error) {
	return e.matcher.FindMatchingRule(ctx, description, familyID, scope, accountID)
}

// CategorizeByRules finds the best matching rule, records the match as an
// explicit side effect, and returns the rule's category. An empty category
// with a nil rule means the description is uncategorized.
func (e *Engine) CategorizeByRules(ctx context.Context, description, familyID string, scope model.RuleScope, accountID *string) (string, *model.Rule, error) {
	rule, err := e.matcher.FindMatchingRule(ctx, description, familyID, scope, accountID)
	if err != nil || rule == nil {
		return "", nil, err
	}

	updated, err := e.RecordMatch(ctx, rule.ID)
	if err != nil {
		return "", nil, err
	}
	return updated.Category, updated, nil
}

// RecordMatch applies one match event to a rule atomically and returns
// the updated rule.
func (e *Engine) RecordMatch(ctx context.Context, ruleID int64) (*model.Rule, error) {
	now := e.now()
	return e.store.ApplyTransition(ctx, ruleID, func(r model.Rule) model.Rule {
		return ApplyMatch(r, now)
	})
}

// RecordOverride applies a user rejection to a rule. Any resulting
// quarantine is committed before this returns, so the rule can never fire
// again on the next lookup.
func (e *Engine) RecordOverride(ctx context.Context, ruleID int64) (*model.Rule, error) {
	now := e.now()
	updated, err := e.store.ApplyTransition(ctx, ruleID, func(r model.Rule) model.Rule {
		return ApplyOverride(r, now)
	})
	if err != nil {
		return nil, err
	}
	if updated.Status == model.StatusQuarantined {
		slog.Info("rule quarantined after override",
			"rule_id", updated.ID,
			"pattern", updated.Pattern,
			"reason", updated.QuarantineReason)
	}
	return updated, nil
}

// Confirm records the user's explicit agreement with a rule's
// categorization, restoring it to full trust.
func (e *Engine) Confirm(ctx context.Context, ruleID int64) (*model.Rule, error) {
	now := e.now()
	return e.store.ApplyTransition(ctx, ruleID, func(r model.Rule) model.Rule {
		return ApplyConfirm(r, now)
	})
}

// CreateFromAICategorization learns a candidate rule from an AI proposal.
// It returns nil (with nil error) when no usable pattern can be extracted
// or when the pattern is owned by a manual or system rule. When a rule
// for the pattern already exists under another source, that rule is
// reused and credited with a match instead of creating a duplicate.
func (e *Engine) CreateFromAICategorization(ctx context.Context, description, category, familyID string, confidence float64, scope model.RuleScope, accountID *string) (*model.Rule, error) {
	pattern := ExtractPattern(description)
	if len(pattern) < minPatternLength {
		return nil, nil
	}

	existing, err := e.store.FindByPattern(ctx, familyID, scope, pattern)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Source == model.SourceManual || existing.Source == model.SourceSystem {
			slog.Debug("ai rule rejected, pattern owned by trusted rule",
				"pattern", pattern, "owner_source", string(existing.Source))
			return nil, nil
		}
		return e.RecordMatch(ctx, existing.ID)
	}

	rule := NewAIRule(pattern, category, familyID, scope, accountID, confidence, e.now())
	if err := e.store.CreateRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to create ai rule: %w", err)
	}
	return &rule, nil
}

// LearnFromUser creates a fully trusted rule from a user correction. When
// the extracted pattern already has a rule, that rule is retargeted to the
// corrected category and confirmed rather than duplicated.
func (e *Engine) LearnFromUser(ctx context.Context, description, category, familyID string, scope model.RuleScope, accountID *string) (*model.Rule, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("description is required")
	}
	pattern := ExtractPattern(description)
	if len(pattern) < minPatternLength {
		return nil, fmt.Errorf("no usable pattern in description %q", description)
	}

	now := e.now()
	existing, err := e.store.FindByPattern(ctx, familyID, scope, pattern)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return e.store.ApplyTransition(ctx, existing.ID, func(r model.Rule) model.Rule {
			r.Category = category
			return ApplyConfirm(r, now)
		})
	}

	rule := NewManualRule(pattern, category, familyID, DeriveMatchType(pattern), scope, accountID, now)
	if err := e.store.CreateRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to learn rule: %w", err)
	}
	return &rule, nil
}

// CreateManualRule creates a rule with an explicit pattern and match type,
// for direct rule management. Regex patterns get anchored auto-detection.
func (e *Engine) CreateManualRule(ctx context.Context, pattern, category, familyID string, matchType model.MatchType, scope model.RuleScope, accountID *string) (*model.Rule, error) {
	pattern = strings.TrimSpace(pattern)
	if len(pattern) < minPatternLength {
		return nil, fmt.Errorf("pattern must be at least %d characters", minPatternLength)
	}
	if !matchType.Valid() {
		return nil, fmt.Errorf("invalid match type: %s", matchType)
	}

	existing, err := e.store.FindByPattern(ctx, familyID, scope, pattern)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("a rule for pattern %q already exists in scope %s", pattern, scope)
	}

	rule := NewManualRule(pattern, category, familyID, matchType, scope, accountID, e.now())
	if err := e.store.CreateRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return &rule, nil
}

// Explain builds the human-oriented explanation for a rule.
func (e *Engine) Explain(rule *model.Rule) model.Explanation {
	return rule.Explain(e.now())
}

// EnforceLimits runs capacity eviction and quarantine cleanup for a family.
func (e *Engine) EnforceLimits(ctx context.Context, familyID string) (CapacityReport, error) {
	return e.enforcer.EnforceLimits(ctx, familyID)
}
