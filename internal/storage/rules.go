package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pkamalssn/rupi-sub000/internal/common"
	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// dbtx abstracts *sql.DB and *sql.Tx so rule queries run in either.
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const ruleColumns = `id, family_id, category, account_id, pattern, pattern_hash,
	match_type, source, status, scope, confidence, priority,
	probationary, user_confirmed, times_matched, times_overridden,
	last_overridden_at, quarantined_at, quarantine_reason,
	created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (*model.Rule, error) {
	var rule model.Rule
	var accountID, patternHash, quarantineReason sql.NullString
	var lastOverriddenAt, quarantinedAt sql.NullTime

	err := sc.Scan(
		&rule.ID, &rule.FamilyID, &rule.Category, &accountID, &rule.Pattern, &patternHash,
		&rule.MatchType, &rule.Source, &rule.Status, &rule.Scope, &rule.Confidence, &rule.Priority,
		&rule.Probationary, &rule.UserConfirmed, &rule.TimesMatched, &rule.TimesOverridden,
		&lastOverriddenAt, &quarantinedAt, &quarantineReason,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accountID.Valid {
		rule.AccountID = &accountID.String
	}
	if patternHash.Valid {
		rule.PatternHash = &patternHash.String
	}
	if quarantineReason.Valid {
		rule.QuarantineReason = quarantineReason.String
	}
	if lastOverriddenAt.Valid {
		t := lastOverriddenAt.Time
		rule.LastOverriddenAt = &t
	}
	if quarantinedAt.Valid {
		t := quarantinedAt.Time
		rule.QuarantinedAt = &t
	}
	return &rule, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringFrom(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// CreateRule persists a new rule and assigns its ID.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	query := `
		INSERT INTO rules (
			family_id, category, account_id, pattern, pattern_hash,
			match_type, source, status, scope, confidence, priority,
			probationary, user_confirmed, times_matched, times_overridden,
			last_overridden_at, quarantined_at, quarantine_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	result, err := s.db.ExecContext(ctx, query,
		rule.FamilyID, rule.Category, nullString(rule.AccountID), rule.Pattern, nullString(rule.PatternHash),
		rule.MatchType, rule.Source, rule.Status, rule.Scope, rule.Confidence, rule.Priority,
		rule.Probationary, rule.UserConfirmed, rule.TimesMatched, rule.TimesOverridden,
		nullTime(rule.LastOverriddenAt), nullTime(rule.QuarantinedAt), nullStringFrom(rule.QuarantineReason),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: a rule for pattern %q already exists in scope %s",
				common.ErrDuplicateEntry, rule.Pattern, rule.Scope)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id

	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getRule(ctx, s.db, id)
}

func getRule(ctx context.Context, q dbtx, id int64) (*model.Rule, error) {
	row := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM rules WHERE id = ?`, ruleColumns), id)

	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// UpdateRule is the validated full-save path for state transitions.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return updateRule(ctx, s.db, rule)
}

func updateRule(ctx context.Context, q dbtx, rule *model.Rule) error {
	query := `
		UPDATE rules SET
			family_id = ?, category = ?, account_id = ?, pattern = ?, pattern_hash = ?,
			match_type = ?, source = ?, status = ?, scope = ?, confidence = ?, priority = ?,
			probationary = ?, user_confirmed = ?, times_matched = ?, times_overridden = ?,
			last_overridden_at = ?, quarantined_at = ?, quarantine_reason = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := q.ExecContext(ctx, query,
		rule.FamilyID, rule.Category, nullString(rule.AccountID), rule.Pattern, nullString(rule.PatternHash),
		rule.MatchType, rule.Source, rule.Status, rule.Scope, rule.Confidence, rule.Priority,
		rule.Probationary, rule.UserConfirmed, rule.TimesMatched, rule.TimesOverridden,
		nullTime(rule.LastOverriddenAt), nullTime(rule.QuarantinedAt), nullStringFrom(rule.QuarantineReason),
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// ApplyTransition atomically loads a rule, applies the pure transition
// function and saves the result inside one immediate transaction. With
// WAL and a single write connection this is the row-level locking the
// lifecycle counters require: concurrent transitions on the same rule
// serialize and no increment is lost.
func (s *SQLiteStorage) ApplyTransition(ctx context.Context, id int64, fn func(model.Rule) model.Rule) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: fn", ErrNilParameter)
	}

	var updated *model.Rule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rule, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}

		next := fn(*rule)
		next.ID = rule.ID
		if err := validateRule(&next); err != nil {
			return err
		}
		if err := updateRule(ctx, tx, &next); err != nil {
			return err
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FindByPattern looks up the rule owning (family, scope, pattern),
// case-insensitively. Returns nil, nil when no rule owns it.
func (s *SQLiteStorage) FindByPattern(ctx context.Context, familyID string, scope model.RuleScope, pattern string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM rules
		WHERE family_id = ? AND scope = ? AND lower(pattern) = lower(?)
	`, ruleColumns), familyID, scope, pattern)

	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rule by pattern: %w", err)
	}
	return rule, nil
}

// GetActiveExactByHash is the exact-rule fast path.
func (s *SQLiteStorage) GetActiveExactByHash(ctx context.Context, familyID, hash string, scopes []model.RuleScope, accountID *string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM rules
		WHERE family_id = ? AND pattern_hash = ?
			AND status = ? AND match_type = ?
			AND scope IN (%s)
			AND %s
		ORDER BY priority DESC, confidence DESC, id ASC
	`, ruleColumns, placeholders(len(scopes)), accountPredicate(accountID))

	args := []any{familyID, hash, model.StatusActive, model.MatchExact}
	for _, sc := range scopes {
		args = append(args, sc)
	}
	if accountID != nil {
		args = append(args, *accountID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get rules by hash: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// IterateMatchable streams active rules in priority order, stopping as
// soon as fn reports a hit so the general path never materializes rules
// past the first match.
func (s *SQLiteStorage) IterateMatchable(ctx context.Context, familyID string, scopes []model.RuleScope, accountID *string, fn func(*model.Rule) (bool, error)) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return err
	}
	if len(scopes) == 0 {
		scopes = []model.RuleScope{model.ScopeGlobal}
	}

	query := fmt.Sprintf(`
		SELECT %s FROM rules
		WHERE family_id = ? AND status = ?
			AND scope IN (%s)
			AND %s
		ORDER BY priority DESC, confidence DESC, id ASC
	`, ruleColumns, placeholders(len(scopes)), accountPredicate(accountID))

	args := []any{familyID, model.StatusActive}
	for _, sc := range scopes {
		args = append(args, sc)
	}
	if accountID != nil {
		args = append(args, *accountID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query matchable rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		stop, err := fn(rule)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rules: %w", err)
	}
	return nil
}

// ListRules returns rules for a family, optionally filtered by status and
// scope, ordered by priority desc.
func (s *SQLiteStorage) ListRules(ctx context.Context, familyID string, status *model.RuleStatus, scope *model.RuleScope) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM rules WHERE family_id = ?`, ruleColumns)
	args := []any{familyID}
	if status != nil {
		sb.WriteString(` AND status = ?`)
		args = append(args, *status)
	}
	if scope != nil {
		sb.WriteString(` AND scope = ?`)
		args = append(args, *scope)
	}
	sb.WriteString(` ORDER BY priority DESC, confidence DESC, id ASC`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// ListFamilies returns the distinct family IDs present in the store.
func (s *SQLiteStorage) ListFamilies(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT family_id FROM rules ORDER BY family_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list families: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var families []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan family: %w", err)
		}
		families = append(families, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating families: %w", err)
	}
	return families, nil
}

// placeholders builds a "?, ?, ?" list of the given length.
func placeholders(n int) string {
	if n <= 0 {
		return "?"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// accountPredicate restricts matching to rules usable for the given
// account: account-scoped rules only apply when their account is the one
// being classified; otherwise only un-scoped rules are considered.
func accountPredicate(accountID *string) string {
	if accountID == nil {
		return `account_id IS NULL`
	}
	return `(account_id IS NULL OR account_id = ?)`
}
