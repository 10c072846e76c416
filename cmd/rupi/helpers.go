package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pkamalssn/rupi-sub000/internal/common"
	"github.com/pkamalssn/rupi-sub000/internal/config"
	"github.com/pkamalssn/rupi-sub000/internal/model"
	"github.com/pkamalssn/rupi-sub000/internal/rules"
	"github.com/pkamalssn/rupi-sub000/internal/storage"
)

// openEngine opens the rule store and wires the engine with a fresh
// per-process regex cache. The caller must Close the returned store.
func openEngine() (*storage.SQLiteStorage, *rules.Engine, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, nil, common.NewUserError("failed to open rule database", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, nil, common.NewUserError("failed to migrate rule database", err)
	}

	engine := rules.New(store, rules.NewRegexCache(rules.DefaultRegexCacheSize))
	return store, engine, nil
}

// parseScope validates a --scope flag value.
func parseScope(s string) (model.RuleScope, error) {
	scope := model.RuleScope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.Valid() {
		return "", fmt.Errorf("invalid scope %q (use global, narration, merchant, or account_specific)", s)
	}
	return scope, nil
}

// parseMatchType validates a --match-type flag value.
func parseMatchType(s string) (model.MatchType, error) {
	mt := model.MatchType(strings.ToLower(strings.TrimSpace(s)))
	if !mt.Valid() {
		return "", fmt.Errorf("invalid match type %q (use exact, starts_with, ends_with, contains, regex, or regex_anchored)", s)
	}
	return mt, nil
}

// accountFlag turns an optional --account value into the nullable form
// the engine expects.
func accountFlag(account string) *string {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil
	}
	return &account
}
