package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

const ruleColumns = `id, property_id, name, level_1, level_2, level_3,
	is_prefix_match, priority, created_at, updated_at`

func scanRule(row scanner) (model.MappingRule, error) {
	var (
		rule model.MappingRule
		l3   sql.NullString
	)
	err := row.Scan(
		&rule.ID, &rule.PropertyID, &rule.Name, &rule.Levels.Level1, &rule.Levels.Level2, &l3,
		&rule.IsPrefixMatch, &rule.Priority, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return model.MappingRule{}, err
	}
	rule.Levels.Level3 = model.Level3(l3.String)
	return rule, nil
}

// GetRuleSet retrieves every rule of a property ordered by priority.
func (s *SQLiteStorage) GetRuleSet(ctx context.Context, propertyID int64) (*model.RuleSet, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getRuleSetTx(ctx, s.db, propertyID)
}

func (s *SQLiteStorage) getRuleSetTx(ctx context.Context, q queryable, propertyID int64) (*model.RuleSet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM mapping_rules
		WHERE property_id = ?
		ORDER BY priority DESC, id ASC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MappingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mapping rules: %w", err)
	}

	return model.NewRuleSet(propertyID, rules)
}

// GetRule retrieves a mapping rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getRuleTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getRuleTx(ctx context.Context, q queryable, id int64) (*model.MappingRule, error) {
	rule, err := scanRule(q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM mapping_rules WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: mapping rule %d", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get mapping rule: %w", err)
	}
	return &rule, nil
}

// GetRuleByName retrieves the rule of a property with exactly that (trimmed) name.
func (s *SQLiteStorage) GetRuleByName(ctx context.Context, propertyID int64, name string) (*model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getRuleByNameTx(ctx, s.db, propertyID, name)
}

func (s *SQLiteStorage) getRuleByNameTx(ctx context.Context, q queryable, propertyID int64, name string) (*model.MappingRule, error) {
	name = strings.TrimSpace(name)
	rule, err := scanRule(q.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM mapping_rules WHERE property_id = ? AND name = ?`,
		propertyID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: mapping rule %q", common.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get mapping rule: %w", err)
	}
	return &rule, nil
}

// CreateRule creates a new mapping rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.createRuleTx(ctx, s.db, rule)
}

func (s *SQLiteStorage) createRuleTx(ctx context.Context, q queryable, rule *model.MappingRule) error {
	now := time.Now()
	rule.Name = strings.TrimSpace(rule.Name)

	result, err := q.ExecContext(ctx, `
		INSERT INTO mapping_rules (
			property_id, name, level_1, level_2, level_3,
			is_prefix_match, priority, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.PropertyID, rule.Name, rule.Levels.Level1, rule.Levels.Level2,
		nullString(string(rule.Levels.Level3)), rule.IsPrefixMatch, rule.Priority, now, now,
	)
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to create mapping rule: %w", err),
			fmt.Sprintf("mapping rule %q", rule.Name))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get mapping rule ID: %w", err)
	}

	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// UpdateRule updates an existing mapping rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.updateRuleTx(ctx, s.db, rule)
}

func (s *SQLiteStorage) updateRuleTx(ctx context.Context, q queryable, rule *model.MappingRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.UpdatedAt = time.Now()

	result, err := q.ExecContext(ctx, `
		UPDATE mapping_rules SET
			name = ?, level_1 = ?, level_2 = ?, level_3 = ?,
			is_prefix_match = ?, priority = ?, updated_at = ?
		WHERE id = ? AND property_id = ?
	`,
		rule.Name, rule.Levels.Level1, rule.Levels.Level2, nullString(string(rule.Levels.Level3)),
		rule.IsPrefixMatch, rule.Priority, rule.UpdatedAt,
		rule.ID, rule.PropertyID,
	)
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to update mapping rule: %w", err),
			fmt.Sprintf("mapping rule %q", rule.Name))
	}
	return checkAffected(result, "mapping rule", rule.ID)
}

// DeleteRule deletes a mapping rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteRuleTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteRuleTx(ctx context.Context, q queryable, id int64) error {
	result, err := q.ExecContext(ctx, "DELETE FROM mapping_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping rule: %w", err)
	}
	return checkAffected(result, "mapping rule", id)
}

// Transaction implementations for mapping rules

func (t *sqliteTransaction) GetRuleSet(ctx context.Context, propertyID int64) (*model.RuleSet, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getRuleSetTx(ctx, t.tx, propertyID)
}

func (t *sqliteTransaction) GetRule(ctx context.Context, id int64) (*model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getRuleTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetRuleByName(ctx context.Context, propertyID int64, name string) (*model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getRuleByNameTx(ctx, t.tx, propertyID, name)
}

func (t *sqliteTransaction) CreateRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return t.storage.createRuleTx(ctx, t.tx, rule)
}

func (t *sqliteTransaction) UpdateRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	return t.storage.updateRuleTx(ctx, t.tx, rule)
}

func (t *sqliteTransaction) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteRuleTx(ctx, t.tx, id)
}
