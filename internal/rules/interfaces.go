package rules

import (
	"context"
	"time"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// RuleStore is the persistence surface the engine needs. The SQLite
// implementation lives in internal/storage.
type RuleStore interface {
	// CreateRule persists a new rule and assigns its ID.
	CreateRule(ctx context.Context, rule *model.Rule) error
	// GetRule retrieves a rule by ID.
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	// UpdateRule is the validated full-save path for state transitions.
	UpdateRule(ctx context.Context, rule *model.Rule) error
	// ApplyTransition atomically loads a rule, applies the pure
	// transition function and saves the result, all under the store's
	// row-level locking. It is the concurrency-safe primitive for
	// counter-mutating lifecycle events; the new state is returned.
	ApplyTransition(ctx context.Context, id int64, fn func(model.Rule) model.Rule) (*model.Rule, error)

	// FindByPattern looks up the rule owning (family, scope, pattern),
	// case-insensitively. Returns nil, nil when no rule owns it.
	FindByPattern(ctx context.Context, familyID string, scope model.RuleScope, pattern string) (*model.Rule, error)
	// GetActiveExactByHash is the fast path: active exact-match rules in
	// the given scopes whose pattern hash equals hash, by priority.
	GetActiveExactByHash(ctx context.Context, familyID, hash string, scopes []model.RuleScope, accountID *string) ([]model.Rule, error)
	// IterateMatchable streams active rules for the given scopes ordered
	// by priority desc, confidence desc, calling fn for each until fn
	// returns stop=true. Rules scoped to an account other than accountID
	// (or any account when accountID is nil) are excluded.
	IterateMatchable(ctx context.Context, familyID string, scopes []model.RuleScope, accountID *string, fn func(*model.Rule) (stop bool, err error)) error

	// ListRules returns rules for a family, optionally filtered by
	// status and scope, ordered by priority desc.
	ListRules(ctx context.Context, familyID string, status *model.RuleStatus, scope *model.RuleScope) ([]model.Rule, error)
	// ListFamilies returns the distinct family IDs present in the store.
	ListFamilies(ctx context.Context) ([]string, error)

	// Capacity-manager queries.
	CountActiveByScope(ctx context.Context, familyID string) (map[model.RuleScope]int, error)
	CountActiveByAccount(ctx context.Context, familyID string) (map[string]int, error)
	CountActive(ctx context.Context, familyID string) (int, error)
	CountQuarantined(ctx context.Context, familyID string) (int, error)
	// ListEvictable returns active, non-manual, non-user-confirmed rules
	// for a family, optionally narrowed to one scope or account.
	ListEvictable(ctx context.Context, familyID string, scope *model.RuleScope, accountID *string) ([]model.Rule, error)
	// DeleteQuarantinedBefore deletes non-manual quarantined rules whose
	// quarantined_at is before cutoff, returning the number deleted.
	DeleteQuarantinedBefore(ctx context.Context, familyID string, cutoff time.Time) (int64, error)
	// DeleteOldestQuarantined deletes the n oldest non-manual
	// quarantined rules, returning the number deleted.
	DeleteOldestQuarantined(ctx context.Context, familyID string, n int) (int64, error)
}
