package storage

import (
	"context"
	"database/sql"
	"fmt"

	"taxfolio/internal/core"
)

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.Rule) (core.Rule, error) {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
		INSERT INTO rules (pattern, mode, category, business, priority, confidence, learned, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.Pattern, string(rule.Mode), string(rule.Category), rule.Business,
			rule.Priority, rule.Confidence, rule.Learned, rule.Enabled)
		if err != nil {
			return fmt.Errorf("create rule: %w", err)
		}
		rule.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return appendAudit(tx, ctx, "rule", rule.ID, "create", nil, rule)
	})
	if err != nil {
		return core.Rule{}, err
	}
	return rule, nil
}

const selectRule = `
SELECT id, pattern, mode, category, business, priority, confidence, learned, enabled, hit_count
FROM rules`

func scanRule(row rowScanner) (core.Rule, error) {
	var rule core.Rule
	var mode, category string
	err := row.Scan(&rule.ID, &rule.Pattern, &mode, &category, &rule.Business,
		&rule.Priority, &rule.Confidence, &rule.Learned, &rule.Enabled, &rule.HitCount)
	if err == sql.ErrNoRows {
		return core.Rule{}, core.ErrNotFound
	}
	if err != nil {
		return core.Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	rule.Mode = core.MatchMode(mode)
	rule.Category = core.Category(category)
	return rule, nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id int64) (core.Rule, error) {
	return scanRule(r.db.QueryRowContext(ctx, selectRule+` WHERE id = ?`, id))
}

// ListRules returns rules in evaluation order: priority descending, then
// oldest first. With enabledOnly false, disabled rules are included too.
func (r *SQLiteRepository) ListRules(ctx context.Context, enabledOnly bool) ([]core.Rule, error) {
	query := selectRule
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.Rule) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanRule(tx.QueryRowContext(ctx, selectRule+` WHERE id = ?`, rule.ID))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
		UPDATE rules
		SET pattern = ?, mode = ?, category = ?, business = ?, priority = ?, confidence = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
			rule.Pattern, string(rule.Mode), string(rule.Category), rule.Business,
			rule.Priority, rule.Confidence, rule.Enabled, rule.ID)
		if err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		return appendAudit(tx, ctx, "rule", rule.ID, "update", before, rule)
	})
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		before, err := scanRule(tx.QueryRowContext(ctx, selectRule+` WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		return appendAudit(tx, ctx, "rule", id, "delete", before, nil)
	})
}

// IncrementRuleHits bumps the hit counter after a rule run applies matches.
func (r *SQLiteRepository) IncrementRuleHits(ctx context.Context, id int64, n int64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE rules SET hit_count = hit_count + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("increment rule hits: %w", err)
	}
	return nil
}

// FindRuleByPattern returns the enabled rule with the exact pattern and
// mode, used to avoid learning duplicate rules.
func (r *SQLiteRepository) FindRuleByPattern(ctx context.Context, pattern string, mode core.MatchMode) (core.Rule, error) {
	return scanRule(r.db.QueryRowContext(ctx,
		selectRule+` WHERE pattern = ? AND mode = ? AND enabled = 1`, pattern, string(mode)))
}
