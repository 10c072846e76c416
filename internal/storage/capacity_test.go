package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkamalssn/rupi-sub000/internal/model"
	"github.com/pkamalssn/rupi-sub000/internal/storage"
	"github.com/pkamalssn/rupi-sub000/internal/testutil"
)

func seedRules(t *testing.T, store *storage.SQLiteStorage, n int, mutate func(i int, r *model.Rule)) []model.Rule {
	t.Helper()
	ctx := context.Background()
	out := make([]model.Rule, 0, n)
	for i := 0; i < n; i++ {
		r := newContainsRule("fam1", fmt.Sprintf("merchant %d", i), "Misc")
		if mutate != nil {
			mutate(i, &r)
		}
		require.NoError(t, store.CreateRule(ctx, &r))
		out = append(out, r)
	}
	return out
}

func TestCountActiveByScope(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	seedRules(t, store, 5, func(i int, r *model.Rule) {
		switch {
		case i < 2:
			r.Scope = model.ScopeNarration
		case i == 4:
			r.Status = model.StatusQuarantined
		}
	})

	counts, err := store.CountActiveByScope(ctx, "fam1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.ScopeNarration])
	assert.Equal(t, 2, counts[model.ScopeGlobal])
}

func TestCountActiveByAccount(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	a1, a2 := "acct-1", "acct-2"

	seedRules(t, store, 5, func(i int, r *model.Rule) {
		switch i {
		case 0, 1:
			r.Scope = model.ScopeAccountSpecific
			r.AccountID = &a1
		case 2:
			r.Scope = model.ScopeAccountSpecific
			r.AccountID = &a2
		}
	})

	counts, err := store.CountActiveByAccount(ctx, "fam1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[a1])
	assert.Equal(t, 1, counts[a2])
	assert.Len(t, counts, 2, "un-scoped rules are not counted per account")
}

func TestCountActiveAndQuarantined(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	seedRules(t, store, 6, func(i int, r *model.Rule) {
		if i >= 4 {
			r.Status = model.StatusQuarantined
		}
	})

	active, err := store.CountActive(ctx, "fam1")
	require.NoError(t, err)
	assert.Equal(t, 4, active)

	quarantined, err := store.CountQuarantined(ctx, "fam1")
	require.NoError(t, err)
	assert.Equal(t, 2, quarantined)
}

func TestListEvictableProtectsTrustedRules(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	seeded := seedRules(t, store, 4, func(i int, r *model.Rule) {
		switch i {
		case 0:
			r.Source = model.SourceManual
		case 1:
			r.UserConfirmed = true
		case 2:
			r.Status = model.StatusQuarantined
		}
	})

	evictable, err := store.ListEvictable(ctx, "fam1", nil, nil)
	require.NoError(t, err)
	require.Len(t, evictable, 1)
	assert.Equal(t, seeded[3].ID, evictable[0].ID)
}

func TestListEvictableScopeAndAccountFilters(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	acct := "acct-1"

	seeded := seedRules(t, store, 3, func(i int, r *model.Rule) {
		switch i {
		case 0:
			r.Scope = model.ScopeNarration
		case 1:
			r.Scope = model.ScopeAccountSpecific
			r.AccountID = &acct
		}
	})

	scope := model.ScopeNarration
	byScope, err := store.ListEvictable(ctx, "fam1", &scope, nil)
	require.NoError(t, err)
	require.Len(t, byScope, 1)
	assert.Equal(t, seeded[0].ID, byScope[0].ID)

	byAccount, err := store.ListEvictable(ctx, "fam1", nil, &acct)
	require.NoError(t, err)
	require.Len(t, byAccount, 1)
	assert.Equal(t, seeded[1].ID, byAccount[0].ID)
}

func TestDeleteQuarantinedBefore(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	now := time.Now().UTC()
	old := now.Add(-100 * 24 * time.Hour)
	recent := now.Add(-24 * time.Hour)

	seeded := seedRules(t, store, 3, func(i int, r *model.Rule) {
		r.Status = model.StatusQuarantined
		r.QuarantineReason = model.QuarantineLowConfidence
		switch i {
		case 0:
			r.QuarantinedAt = &old
		case 1:
			r.QuarantinedAt = &recent
		case 2:
			// Manual quarantined rules are never auto-deleted.
			r.Source = model.SourceManual
			r.QuarantinedAt = &old
		}
	})

	deleted, err := store.DeleteQuarantinedBefore(ctx, "fam1", now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetRule(ctx, seeded[0].ID)
	assert.ErrorIs(t, err, storage.ErrRuleNotFound)
	_, err = store.GetRule(ctx, seeded[1].ID)
	assert.NoError(t, err)
	_, err = store.GetRule(ctx, seeded[2].ID)
	assert.NoError(t, err)
}

func TestDeleteOldestQuarantined(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	seeded := seedRules(t, store, 4, func(i int, r *model.Rule) {
		r.Status = model.StatusQuarantined
		r.QuarantineReason = model.QuarantineLowConfidence
		at := now.Add(-time.Duration(4-i) * time.Hour)
		r.QuarantinedAt = &at
	})

	deleted, err := store.DeleteOldestQuarantined(ctx, "fam1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// The two oldest are gone, the two newest remain.
	_, err = store.GetRule(ctx, seeded[0].ID)
	assert.ErrorIs(t, err, storage.ErrRuleNotFound)
	_, err = store.GetRule(ctx, seeded[1].ID)
	assert.ErrorIs(t, err, storage.ErrRuleNotFound)
	_, err = store.GetRule(ctx, seeded[2].ID)
	assert.NoError(t, err)
	_, err = store.GetRule(ctx, seeded[3].ID)
	assert.NoError(t, err)

	deleted, err = store.DeleteOldestQuarantined(ctx, "fam1", 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
