package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

const combinationColumns = `id, property_id, level_1, level_2, level_3, is_hardcoded`

func scanCombination(row scanner) (model.AllowedCombination, error) {
	var (
		c  model.AllowedCombination
		l3 sql.NullString
	)
	if err := row.Scan(&c.ID, &c.PropertyID, &c.Levels.Level1, &c.Levels.Level2, &l3, &c.IsHardcoded); err != nil {
		return model.AllowedCombination{}, err
	}
	c.Levels.Level3 = model.Level3(l3.String)
	return c, nil
}

// IsCombinationAllowed reports whether the exact triple is whitelisted for the property.
// An unset level 3 only matches rows whose level_3 is NULL.
func (s *SQLiteStorage) IsCombinationAllowed(ctx context.Context, propertyID int64, levels model.Levels) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return s.isCombinationAllowedTx(ctx, s.db, propertyID, levels)
}

func (s *SQLiteStorage) isCombinationAllowedTx(ctx context.Context, q queryable, propertyID int64, levels model.Levels) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM allowed_combinations
			WHERE property_id = ? AND level_1 = ? AND level_2 = ? AND level_3 IS ?
		)
	`, propertyID, levels.Level1, levels.Level2, nullString(string(levels.Level3))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check allowed combination: %w", err)
	}
	return exists, nil
}

// GetCombinations lists every allowed combination of a property.
func (s *SQLiteStorage) GetCombinations(ctx context.Context, propertyID int64) ([]model.AllowedCombination, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCombinationsTx(ctx, s.db, propertyID)
}

func (s *SQLiteStorage) getCombinationsTx(ctx context.Context, q queryable, propertyID int64) ([]model.AllowedCombination, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+combinationColumns+`
		FROM allowed_combinations
		WHERE property_id = ?
		ORDER BY level_1, level_2, COALESCE(level_3, '')
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowed combinations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var combinations []model.AllowedCombination
	for rows.Next() {
		c, err := scanCombination(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allowed combination: %w", err)
		}
		combinations = append(combinations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allowed combinations: %w", err)
	}
	return combinations, nil
}

// GetCombination retrieves an allowed combination by ID.
func (s *SQLiteStorage) GetCombination(ctx context.Context, id int64) (*model.AllowedCombination, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCombinationTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getCombinationTx(ctx context.Context, q queryable, id int64) (*model.AllowedCombination, error) {
	c, err := scanCombination(q.QueryRowContext(ctx,
		`SELECT `+combinationColumns+` FROM allowed_combinations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: allowed combination %d", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get allowed combination: %w", err)
	}
	return &c, nil
}

// CreateCombination inserts a combination and sets its ID.
func (s *SQLiteStorage) CreateCombination(ctx context.Context, combination *model.AllowedCombination) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCombination(combination); err != nil {
		return err
	}
	return s.createCombinationTx(ctx, s.db, combination)
}

func (s *SQLiteStorage) createCombinationTx(ctx context.Context, q queryable, c *model.AllowedCombination) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO allowed_combinations (property_id, level_1, level_2, level_3, is_hardcoded)
		VALUES (?, ?, ?, ?, ?)
	`, c.PropertyID, c.Levels.Level1, c.Levels.Level2, nullString(string(c.Levels.Level3)), c.IsHardcoded)
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to create allowed combination: %w", err),
			fmt.Sprintf("allowed combination %s", c.Levels))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get allowed combination ID: %w", err)
	}
	c.ID = id
	return nil
}

// SetCombinationHardcoded flips the protection flag of a combination.
func (s *SQLiteStorage) SetCombinationHardcoded(ctx context.Context, id int64, hardcoded bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.setCombinationHardcodedTx(ctx, s.db, id, hardcoded)
}

func (s *SQLiteStorage) setCombinationHardcodedTx(ctx context.Context, q queryable, id int64, hardcoded bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE allowed_combinations SET is_hardcoded = ? WHERE id = ?`, hardcoded, id)
	if err != nil {
		return fmt.Errorf("failed to update allowed combination: %w", err)
	}
	return checkAffected(result, "allowed combination", id)
}

// DeleteCombination deletes a combination regardless of its protection flag.
// Protection is enforced by the registry.
func (s *SQLiteStorage) DeleteCombination(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteCombinationTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteCombinationTx(ctx context.Context, q queryable, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM allowed_combinations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete allowed combination: %w", err)
	}
	return checkAffected(result, "allowed combination", id)
}

// DeleteManualCombinations deletes every non-hardcoded combination of a property.
func (s *SQLiteStorage) DeleteManualCombinations(ctx context.Context, propertyID int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.deleteManualCombinationsTx(ctx, s.db, propertyID)
}

func (s *SQLiteStorage) deleteManualCombinationsTx(ctx context.Context, q queryable, propertyID int64) (int, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM allowed_combinations WHERE property_id = ? AND is_hardcoded = 0`, propertyID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete manual combinations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Transaction implementations for allowed combinations

func (t *sqliteTransaction) IsCombinationAllowed(ctx context.Context, propertyID int64, levels model.Levels) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	return t.storage.isCombinationAllowedTx(ctx, t.tx, propertyID, levels)
}

func (t *sqliteTransaction) GetCombinations(ctx context.Context, propertyID int64) ([]model.AllowedCombination, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCombinationsTx(ctx, t.tx, propertyID)
}

func (t *sqliteTransaction) GetCombination(ctx context.Context, id int64) (*model.AllowedCombination, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCombinationTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) CreateCombination(ctx context.Context, combination *model.AllowedCombination) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCombination(combination); err != nil {
		return err
	}
	return t.storage.createCombinationTx(ctx, t.tx, combination)
}

func (t *sqliteTransaction) SetCombinationHardcoded(ctx context.Context, id int64, hardcoded bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.setCombinationHardcodedTx(ctx, t.tx, id, hardcoded)
}

func (t *sqliteTransaction) DeleteCombination(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteCombinationTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) DeleteManualCombinations(ctx context.Context, propertyID int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return t.storage.deleteManualCombinationsTx(ctx, t.tx, propertyID)
}
