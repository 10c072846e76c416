package rules

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// fakeStore is an in-memory RuleStore for engine-level unit tests.
type fakeStore struct {
	rules  map[int64]*model.Rule
	nextID int64
	mu     sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{rules: make(map[int64]*model.Rule)}
}

func (f *fakeStore) CreateRule(_ context.Context, rule *model.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rule.ID = f.nextID
	cp := *rule
	f.rules[rule.ID] = &cp
	return nil
}

func (f *fakeStore) GetRule(_ context.Context, id int64) (*model.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) UpdateRule(_ context.Context, rule *model.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[rule.ID]; !ok {
		return errNotFound
	}
	cp := *rule
	f.rules[rule.ID] = &cp
	return nil
}

func (f *fakeStore) ApplyTransition(_ context.Context, id int64, fn func(model.Rule) model.Rule) (*model.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok {
		return nil, errNotFound
	}
	next := fn(*r)
	next.ID = id
	f.rules[id] = &next
	cp := next
	return &cp, nil
}

func (f *fakeStore) FindByPattern(_ context.Context, familyID string, scope model.RuleScope, pattern string) (*model.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.FamilyID == familyID && r.Scope == scope &&
			strings.EqualFold(r.Pattern, pattern) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetActiveExactByHash(_ context.Context, familyID, hash string, scopes []model.RuleScope, accountID *string) ([]model.Rule, error) {
	matched := f.snapshot(func(r *model.Rule) bool {
		return r.FamilyID == familyID &&
			r.Status == model.StatusActive &&
			r.MatchType == model.MatchExact &&
			r.PatternHash != nil && *r.PatternHash == hash &&
			scopeIn(r.Scope, scopes) && accountOK(r, accountID)
	})
	return matched, nil
}

func (f *fakeStore) IterateMatchable(_ context.Context, familyID string, scopes []model.RuleScope, accountID *string, fn func(*model.Rule) (bool, error)) error {
	matched := f.snapshot(func(r *model.Rule) bool {
		return r.FamilyID == familyID &&
			r.Status == model.StatusActive &&
			scopeIn(r.Scope, scopes) && accountOK(r, accountID)
	})
	for i := range matched {
		stop, err := fn(&matched[i])
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (f *fakeStore) ListRules(_ context.Context, familyID string, status *model.RuleStatus, scope *model.RuleScope) ([]model.Rule, error) {
	return f.snapshot(func(r *model.Rule) bool {
		if r.FamilyID != familyID {
			return false
		}
		if status != nil && r.Status != *status {
			return false
		}
		if scope != nil && r.Scope != *scope {
			return false
		}
		return true
	}), nil
}

func (f *fakeStore) ListFamilies(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var families []string
	for _, r := range f.rules {
		if !seen[r.FamilyID] {
			seen[r.FamilyID] = true
			families = append(families, r.FamilyID)
		}
	}
	sort.Strings(families)
	return families, nil
}

func (f *fakeStore) CountActiveByScope(_ context.Context, familyID string) (map[model.RuleScope]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.RuleScope]int)
	for _, r := range f.rules {
		if r.FamilyID == familyID && r.Status == model.StatusActive {
			counts[r.Scope]++
		}
	}
	return counts, nil
}

func (f *fakeStore) CountActiveByAccount(_ context.Context, familyID string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range f.rules {
		if r.FamilyID == familyID && r.Status == model.StatusActive && r.AccountID != nil {
			counts[*r.AccountID]++
		}
	}
	return counts, nil
}

func (f *fakeStore) CountActive(_ context.Context, familyID string) (int, error) {
	return f.count(familyID, model.StatusActive), nil
}

func (f *fakeStore) CountQuarantined(_ context.Context, familyID string) (int, error) {
	return f.count(familyID, model.StatusQuarantined), nil
}

func (f *fakeStore) ListEvictable(_ context.Context, familyID string, scope *model.RuleScope, accountID *string) ([]model.Rule, error) {
	return f.snapshot(func(r *model.Rule) bool {
		if r.FamilyID != familyID || r.Status != model.StatusActive {
			return false
		}
		if r.Source == model.SourceManual || r.UserConfirmed {
			return false
		}
		if scope != nil && r.Scope != *scope {
			return false
		}
		if accountID != nil && (r.AccountID == nil || *r.AccountID != *accountID) {
			return false
		}
		return true
	}), nil
}

func (f *fakeStore) DeleteQuarantinedBefore(_ context.Context, familyID string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, r := range f.rules {
		if r.FamilyID == familyID && r.Status == model.StatusQuarantined &&
			r.Source != model.SourceManual &&
			r.QuarantinedAt != nil && r.QuarantinedAt.Before(cutoff) {
			delete(f.rules, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) DeleteOldestQuarantined(_ context.Context, familyID string, n int) (int64, error) {
	quarantined := f.snapshot(func(r *model.Rule) bool {
		return r.FamilyID == familyID && r.Status == model.StatusQuarantined &&
			r.Source != model.SourceManual
	})
	sort.Slice(quarantined, func(i, j int) bool {
		ti, tj := quarantined[i].QuarantinedAt, quarantined[j].QuarantinedAt
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return quarantined[i].ID < quarantined[j].ID
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for i := 0; i < len(quarantined) && i < n; i++ {
		delete(f.rules, quarantined[i].ID)
		deleted++
	}
	return deleted, nil
}

// snapshot copies matching rules sorted by priority desc, confidence
// desc, id asc, mirroring the store's matching order.
func (f *fakeStore) snapshot(keep func(*model.Rule) bool) []model.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Rule
	for _, r := range f.rules {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeStore) count(familyID string, status model.RuleStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rules {
		if r.FamilyID == familyID && r.Status == status {
			n++
		}
	}
	return n
}

func scopeIn(scope model.RuleScope, scopes []model.RuleScope) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func accountOK(r *model.Rule, accountID *string) bool {
	if r.AccountID == nil {
		return true
	}
	return accountID != nil && *r.AccountID == *accountID
}

var errNotFound = errRuleNotFound{}

type errRuleNotFound struct{}

func (errRuleNotFound) Error() string { return "rule not found" }
