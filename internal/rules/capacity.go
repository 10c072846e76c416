package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// Capacity ceilings and retention policy.
const (
	// MaxRulesPerScope caps active rules per scope within a family.
	MaxRulesPerScope = 5000
	// MaxRulesPerAccount caps active account-scoped rules per account.
	MaxRulesPerAccount = 2000
	// MaxRulesPerFamily caps total active rules per family.
	MaxRulesPerFamily = 10000
	// MaxQuarantinedPerFamily caps retained quarantined rules.
	MaxQuarantinedPerFamily = 2000
	// QuarantineRetention is how long quarantined rules are kept for audit.
	QuarantineRetention = 90 * 24 * time.Hour
)

// CapacityReport summarizes one EnforceLimits run.
type CapacityReport struct {
	FamilyID    string
	Quarantined int
	Deleted     int64
}

// Enforcer keeps per-family rule counts under the configured ceilings via
// utility-based eviction, and cleans up old quarantined rules.
type Enforcer struct {
	store RuleStore
	now   func() time.Time
}

// NewEnforcer creates a capacity enforcer over the given store.
func NewEnforcer(store RuleStore) *Enforcer {
	return &Enforcer{store: store, now: time.Now}
}

// EnforceLimits brings a family back under every cap. Safe to run
// concurrently with matching; evictions use the store's atomic transition
// primitive. Manual and user-confirmed rules are never touched.
func (e *Enforcer) EnforceLimits(ctx context.Context, familyID string) (CapacityReport, error) {
	report := CapacityReport{FamilyID: familyID}
	now := e.now()

	byScope, err := e.store.CountActiveByScope(ctx, familyID)
	if err != nil {
		return report, fmt.Errorf("failed to count rules by scope: %w", err)
	}
	for scope, count := range byScope {
		if count <= MaxRulesPerScope {
			continue
		}
		scope := scope
		n, err := e.evictLowestUtility(ctx, familyID, &scope, nil, count-MaxRulesPerScope, now)
		if err != nil {
			return report, err
		}
		report.Quarantined += n
	}

	byAccount, err := e.store.CountActiveByAccount(ctx, familyID)
	if err != nil {
		return report, fmt.Errorf("failed to count rules by account: %w", err)
	}
	for account, count := range byAccount {
		if count <= MaxRulesPerAccount {
			continue
		}
		account := account
		n, err := e.evictLowestUtility(ctx, familyID, nil, &account, count-MaxRulesPerAccount, now)
		if err != nil {
			return report, err
		}
		report.Quarantined += n
	}

	total, err := e.store.CountActive(ctx, familyID)
	if err != nil {
		return report, fmt.Errorf("failed to count active rules: %w", err)
	}
	if total > MaxRulesPerFamily {
		n, err := e.evictLowestUtility(ctx, familyID, nil, nil, total-MaxRulesPerFamily, now)
		if err != nil {
			return report, err
		}
		report.Quarantined += n
	}

	deleted, err := e.cleanupQuarantine(ctx, familyID, now)
	if err != nil {
		return report, err
	}
	report.Deleted = deleted

	if report.Quarantined > 0 || report.Deleted > 0 {
		slog.Info("capacity limits enforced",
			"family", familyID,
			"quarantined", report.Quarantined,
			"deleted", report.Deleted)
	}
	return report, nil
}

// evictLowestUtility quarantines the n lowest-utility evictable rules.
// Ties break by ascending ID so eviction order is deterministic.
func (e *Enforcer) evictLowestUtility(ctx context.Context, familyID string, scope *model.RuleScope, accountID *string, n int, now time.Time) (int, error) {
	candidates, err := e.store.ListEvictable(ctx, familyID, scope, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to list evictable rules: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		ui, uj := candidates[i].Utility(now), candidates[j].Utility(now)
		if ui != uj {
			return ui < uj
		}
		return candidates[i].ID < candidates[j].ID
	})

	evicted := 0
	for i := 0; i < len(candidates) && evicted < n; i++ {
		_, err := e.store.ApplyTransition(ctx, candidates[i].ID, func(r model.Rule) model.Rule {
			return ApplyQuarantine(r, model.QuarantineAutoPruned, now)
		})
		if err != nil {
			return evicted, fmt.Errorf("failed to quarantine rule %d: %w", candidates[i].ID, err)
		}
		evicted++
	}
	return evicted, nil
}

// cleanupQuarantine deletes expired quarantined rules and trims the
// quarantine pool to its cap, oldest first. Manual rules are exempt.
func (e *Enforcer) cleanupQuarantine(ctx context.Context, familyID string, now time.Time) (int64, error) {
	deleted, err := e.store.DeleteQuarantinedBefore(ctx, familyID, now.Add(-QuarantineRetention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired quarantined rules: %w", err)
	}

	count, err := e.store.CountQuarantined(ctx, familyID)
	if err != nil {
		return deleted, fmt.Errorf("failed to count quarantined rules: %w", err)
	}
	if count > MaxQuarantinedPerFamily {
		trimmed, err := e.store.DeleteOldestQuarantined(ctx, familyID, count-MaxQuarantinedPerFamily)
		if err != nil {
			return deleted, fmt.Errorf("failed to trim quarantined rules: %w", err)
		}
		deleted += trimmed
	}
	return deleted, nil
}
