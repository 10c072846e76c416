package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

func newTestMatcher(store RuleStore) *Matcher {
	return NewMatcher(store, NewRegexCache(100))
}

func mustCreate(t *testing.T, store *fakeStore, r model.Rule) model.Rule {
	t.Helper()
	require.NoError(t, store.CreateRule(context.Background(), &r))
	return r
}

func TestFindMatchingRuleBlankDescription(t *testing.T) {
	m := newTestMatcher(newFakeStore())

	rule, err := m.FindMatchingRule(context.Background(), "   ", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestFindMatchingRulePrefersManualOverAI(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Now()

	manual := NewManualRule("hdfc emi", "Loans", "fam1", model.MatchExact, model.ScopeGlobal, nil, now)
	mustCreate(t, store, manual)

	ai := NewAIRule("hdfc", "Banking", "fam1", model.ScopeGlobal, nil, 0.65, now)
	ai.MatchType = model.MatchContains
	ai.Status = model.StatusActive
	mustCreate(t, store, ai)

	m := newTestMatcher(store)
	rule, err := m.FindMatchingRule(ctx, "HDFC EMI", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "Loans", rule.Category)
	assert.Equal(t, model.SourceManual, rule.Source)
}

func TestFindMatchingRulePathIndependence(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Now()

	exact := NewManualRule("hdfc emi", "Loans", "fam1", model.MatchExact, model.ScopeGlobal, nil, now)
	created := mustCreate(t, store, exact)

	// Fast path: hash lookup.
	m := newTestMatcher(store)
	viaHash, err := m.FindMatchingRule(ctx, "HDFC EMI", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NotNil(t, viaHash)

	// General path: same store with the hash index disabled.
	m = newTestMatcher(&noFastPathStore{store})
	viaScan, err := m.FindMatchingRule(ctx, "HDFC EMI", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NotNil(t, viaScan)

	assert.Equal(t, created.ID, viaHash.ID)
	assert.Equal(t, viaHash.ID, viaScan.ID)
}

func TestFindMatchingRuleIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Now()

	mustCreate(t, store, NewManualRule("swiggy", "Food", "fam1", model.MatchContains, model.ScopeGlobal, nil, now))

	m := newTestMatcher(store)
	first, err := m.FindMatchingRule(ctx, "UPI SWIGGY ORDER", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	second, err := m.FindMatchingRule(ctx, "UPI SWIGGY ORDER", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindMatchingRuleEarlyExit(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Now()

	mustCreate(t, store, NewManualRule("swiggy order", "Food", "fam1", model.MatchContains, model.ScopeGlobal, nil, now))

	ai := NewAIRule("swiggy", "Delivery", "fam1", model.ScopeGlobal, nil, 0.65, now)
	ai.Status = model.StatusActive
	mustCreate(t, store, ai)

	counting := &countingStore{fakeStore: store}
	m := newTestMatcher(counting)

	rule, err := m.FindMatchingRule(ctx, "swiggy order 42", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "Food", rule.Category)
	assert.Equal(t, 1, counting.visited, "iteration must stop at the first hit")
}

func TestFindMatchingRuleScopePrecedence(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Now()

	global := NewManualRule("swiggy", "Food", "fam1", model.MatchContains, model.ScopeGlobal, nil, now)
	mustCreate(t, store, global)

	narration := NewManualRule("swiggy", "Dining Out", "fam1", model.MatchContains, model.ScopeNarration, nil, now)
	mustCreate(t, store, narration)

	m := newTestMatcher(store)
	rule, err := m.FindMatchingRule(ctx, "swiggy bangalore", "fam1", model.ScopeNarration, nil)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "Dining Out", rule.Category, "narration scope should outrank global")

	// A global lookup never sees the narration rule.
	rule, err = m.FindMatchingRule(ctx, "swiggy bangalore", "fam1", model.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "Food", rule.Category)
}

func TestFindMatchingRuleAccountFiltering(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	now := time.Now()
	acct := "acct-1"

	scoped := NewManualRule("salary credit", "Income", "fam1", model.MatchContains, model.ScopeAccountSpecific, &acct, now)
	mustCreate(t, store, scoped)

	m := newTestMatcher(store)

	// Without an account, account-scoped rules are invisible.
	rule, err := m.FindMatchingRule(ctx, "salary credit june", "fam1", model.ScopeAccountSpecific, nil)
	require.NoError(t, err)
	assert.Nil(t, rule)

	// A different account doesn't see them either.
	other := "acct-2"
	rule, err = m.FindMatchingRule(ctx, "salary credit june", "fam1", model.ScopeAccountSpecific, &other)
	require.NoError(t, err)
	assert.Nil(t, rule)

	// The owning account does.
	rule, err = m.FindMatchingRule(ctx, "salary credit june", "fam1", model.ScopeAccountSpecific, &acct)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "Income", rule.Category)
}

func TestMatchesPredicates(t *testing.T) {
	m := newTestMatcher(newFakeStore())

	tests := []struct {
		name       string
		matchType  model.MatchType
		pattern    string
		normalized string
		want       bool
	}{
		{"exact hit", model.MatchExact, "hdfc emi", "hdfc emi", true},
		{"exact miss", model.MatchExact, "hdfc emi", "hdfc emi extra", false},
		{"starts_with hit", model.MatchStartsWith, "swiggy", "swiggy order 42", true},
		{"starts_with miss", model.MatchStartsWith, "swiggy", "upi swiggy", false},
		{"ends_with hit", model.MatchEndsWith, "rent", "june rent", true},
		{"ends_with miss", model.MatchEndsWith, "rent", "rent june", false},
		{"contains hit", model.MatchContains, "netflix", "upi netflix renewal", true},
		{"contains miss", model.MatchContains, "netflix", "upi hotstar renewal", false},
		{"generic token needs word boundary", model.MatchContains, "sbi", "transfer to sbixyz", false},
		{"generic token hit on whole word", model.MatchContains, "sbi", "sbi atm withdrawal", true},
		{"regex hit", model.MatchRegex, "swiggy|zomato", "upi zomato order", true},
		{"regex anchored hit", model.MatchRegexAnchored, `^upi swiggy`, "upi swiggy order", true},
		{"regex anchored miss", model.MatchRegexAnchored, `^upi swiggy`, "neft upi swiggy", false},
		{"invalid regex fails closed", model.MatchRegex, "[unclosed", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &model.Rule{Pattern: tt.pattern, MatchType: tt.matchType}
			assert.Equal(t, tt.want, m.Matches(rule, tt.normalized, tt.normalized))
		})
	}
}

// noFastPathStore hides the hash index so lookups take the general path.
type noFastPathStore struct {
	*fakeStore
}

func (s *noFastPathStore) GetActiveExactByHash(_ context.Context, _, _ string, _ []model.RuleScope, _ *string) ([]model.Rule, error) {
	return nil, nil
}

// countingStore counts how many rules the general path visits.
type countingStore struct {
	*fakeStore
	visited int
}

func (s *countingStore) IterateMatchable(ctx context.Context, familyID string, scopes []model.RuleScope, accountID *string, fn func(*model.Rule) (bool, error)) error {
	return s.fakeStore.IterateMatchable(ctx, familyID, scopes, accountID, func(r *model.Rule) (bool, error) {
		s.visited++
		return fn(r)
	})
}
