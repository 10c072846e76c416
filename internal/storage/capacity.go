package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// CountActiveByScope returns active rule counts per scope for a family.
func (s *SQLiteStorage) CountActiveByScope(ctx context.Context, familyID string) (map[model.RuleScope]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, COUNT(*) FROM rules
		WHERE family_id = ? AND status = ?
		GROUP BY scope
	`, familyID, model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules by scope: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.RuleScope]int)
	for rows.Next() {
		var scope model.RuleScope
		var count int
		if err := rows.Scan(&scope, &count); err != nil {
			return nil, fmt.Errorf("failed to scan scope count: %w", err)
		}
		counts[scope] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scope counts: %w", err)
	}
	return counts, nil
}

// CountActiveByAccount returns active rule counts per account for a family.
func (s *SQLiteStorage) CountActiveByAccount(ctx context.Context, familyID string) (map[string]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, COUNT(*) FROM rules
		WHERE family_id = ? AND status = ? AND account_id IS NOT NULL
		GROUP BY account_id
	`, familyID, model.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules by account: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var account string
		var count int
		if err := rows.Scan(&account, &count); err != nil {
			return nil, fmt.Errorf("failed to scan account count: %w", err)
		}
		counts[account] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account counts: %w", err)
	}
	return counts, nil
}

// CountActive returns the total active rule count for a family.
func (s *SQLiteStorage) CountActive(ctx context.Context, familyID string) (int, error) {
	return s.countByStatus(ctx, familyID, model.StatusActive)
}

// CountQuarantined returns the quarantined rule count for a family.
func (s *SQLiteStorage) CountQuarantined(ctx context.Context, familyID string) (int, error) {
	return s.countByStatus(ctx, familyID, model.StatusQuarantined)
}

func (s *SQLiteStorage) countByStatus(ctx context.Context, familyID string, status model.RuleStatus) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rules WHERE family_id = ? AND status = ?`,
		familyID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

// ListEvictable returns active, non-manual, non-user-confirmed rules for a
// family, optionally narrowed to one scope or account.
func (s *SQLiteStorage) ListEvictable(ctx context.Context, familyID string, scope *model.RuleScope, accountID *string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT %s FROM rules
		WHERE family_id = ? AND status = ?
			AND source != ? AND user_confirmed = 0
	`, ruleColumns)
	args := []any{familyID, model.StatusActive, model.SourceManual}
	if scope != nil {
		sb.WriteString(` AND scope = ?`)
		args = append(args, *scope)
	}
	if accountID != nil {
		sb.WriteString(` AND account_id = ?`)
		args = append(args, *accountID)
	}
	sb.WriteString(` ORDER BY id ASC`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evictable rules: %w", err)
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

// DeleteQuarantinedBefore deletes non-manual quarantined rules whose
// quarantined_at is before cutoff, returning the number deleted.
func (s *SQLiteStorage) DeleteQuarantinedBefore(ctx context.Context, familyID string, cutoff time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rules
		WHERE family_id = ? AND status = ? AND source != ?
			AND quarantined_at IS NOT NULL AND quarantined_at < ?
	`, familyID, model.StatusQuarantined, model.SourceManual, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete quarantined rules: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// DeleteOldestQuarantined deletes the n oldest non-manual quarantined
// rules for a family, returning the number deleted.
func (s *SQLiteStorage) DeleteOldestQuarantined(ctx context.Context, familyID string, n int) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(familyID, "familyID"); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rules WHERE id IN (
			SELECT id FROM rules
			WHERE family_id = ? AND status = ? AND source != ?
			ORDER BY quarantined_at ASC, id ASC
			LIMIT ?
		)
	`, familyID, model.StatusQuarantined, model.SourceManual, n)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest quarantined rules: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
