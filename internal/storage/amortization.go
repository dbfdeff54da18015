package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

const amortizationTypeColumns = `id, property_id, name, level_2_value, level_1_values,
	duration, start_date, annual_amount`

func scanAmortizationType(row scanner) (model.AmortizationType, error) {
	var (
		a         model.AmortizationType
		level1Raw string
		startDate sql.NullTime
	)
	err := row.Scan(&a.ID, &a.PropertyID, &a.Name, &a.Level2Value, &level1Raw,
		&a.DurationYears, &startDate, &a.AnnualAmountOverride)
	if err != nil {
		return model.AmortizationType{}, err
	}

	if level1Raw != "" {
		if err := json.Unmarshal([]byte(level1Raw), &a.Level1Values); err != nil {
			return model.AmortizationType{}, fmt.Errorf("failed to decode level_1_values: %w", err)
		}
	}
	if startDate.Valid {
		d := model.DateOnly(startDate.Time)
		a.StartDateOverride = &d
	}
	return a, nil
}

func amortizationTypeArgs(a *model.AmortizationType) ([]any, error) {
	values := a.Level1Values
	if values == nil {
		values = []string{}
	}
	level1JSON, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode level_1_values: %w", err)
	}

	var startDate any
	if a.StartDateOverride != nil {
		startDate = a.StartDateOverride.Format(time.DateOnly)
	}

	return []any{a.Name, a.Level2Value, string(level1JSON), a.DurationYears, startDate, a.AnnualAmountOverride}, nil
}

// GetAmortizationTypes lists the amortization types of a property.
func (s *SQLiteStorage) GetAmortizationTypes(ctx context.Context, propertyID int64) ([]model.AmortizationType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAmortizationTypesTx(ctx, s.db, propertyID)
}

func (s *SQLiteStorage) getAmortizationTypesTx(ctx context.Context, q queryable, propertyID int64) ([]model.AmortizationType, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+amortizationTypeColumns+`
		FROM amortization_types
		WHERE property_id = ?
		ORDER BY id
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get amortization types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var types []model.AmortizationType
	for rows.Next() {
		a, err := scanAmortizationType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan amortization type: %w", err)
		}
		types = append(types, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating amortization types: %w", err)
	}
	return types, nil
}

// GetAmortizationType retrieves an amortization type by ID.
func (s *SQLiteStorage) GetAmortizationType(ctx context.Context, id int64) (*model.AmortizationType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAmortizationTypeTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getAmortizationTypeTx(ctx context.Context, q queryable, id int64) (*model.AmortizationType, error) {
	a, err := scanAmortizationType(q.QueryRowContext(ctx,
		`SELECT `+amortizationTypeColumns+` FROM amortization_types WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: amortization type %d", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get amortization type: %w", err)
	}
	return &a, nil
}

// CreateAmortizationType inserts an amortization type and sets its ID.
func (s *SQLiteStorage) CreateAmortizationType(ctx context.Context, amortType *model.AmortizationType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAmortizationType(amortType); err != nil {
		return err
	}
	return s.createAmortizationTypeTx(ctx, s.db, amortType)
}

func (s *SQLiteStorage) createAmortizationTypeTx(ctx context.Context, q queryable, a *model.AmortizationType) error {
	args, err := amortizationTypeArgs(a)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO amortization_types (
			property_id, name, level_2_value, level_1_values, duration, start_date, annual_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, append([]any{a.PropertyID}, args...)...)
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to create amortization type: %w", err),
			fmt.Sprintf("amortization type %q", a.Name))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get amortization type ID: %w", err)
	}
	a.ID = id
	return nil
}

// UpdateAmortizationType rewrites an amortization type.
func (s *SQLiteStorage) UpdateAmortizationType(ctx context.Context, amortType *model.AmortizationType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAmortizationType(amortType); err != nil {
		return err
	}
	return s.updateAmortizationTypeTx(ctx, s.db, amortType)
}

func (s *SQLiteStorage) updateAmortizationTypeTx(ctx context.Context, q queryable, a *model.AmortizationType) error {
	args, err := amortizationTypeArgs(a)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE amortization_types SET
			name = ?, level_2_value = ?, level_1_values = ?, duration = ?, start_date = ?, annual_amount = ?
		WHERE id = ? AND property_id = ?
	`, append(args, a.ID, a.PropertyID)...)
	if err != nil {
		return mapConstraintError(fmt.Errorf("failed to update amortization type: %w", err),
			fmt.Sprintf("amortization type %q", a.Name))
	}
	return checkAffected(result, "amortization type", a.ID)
}

// DeleteAmortizationType deletes an amortization type.
func (s *SQLiteStorage) DeleteAmortizationType(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteAmortizationTypeTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteAmortizationTypeTx(ctx context.Context, q queryable, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM amortization_types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete amortization type: %w", err)
	}
	return checkAffected(result, "amortization type", id)
}

// GetAmortizationResults returns the schedule of a transaction ordered by year.
func (s *SQLiteStorage) GetAmortizationResults(ctx context.Context, transactionID int64) ([]model.AmortizationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAmortizationResultsTx(ctx, s.db, transactionID)
}

func (s *SQLiteStorage) getAmortizationResultsTx(ctx context.Context, q queryable, transactionID int64) ([]model.AmortizationResult, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, year, category, amount
		FROM amortization_results
		WHERE transaction_id = ?
		ORDER BY year
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get amortization results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.AmortizationResult
	for rows.Next() {
		var r model.AmortizationResult
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.Year, &r.Category, &r.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan amortization result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating amortization results: %w", err)
	}
	return results, nil
}

// ReplaceAmortizationResults swaps the whole schedule of a transaction atomically.
func (s *SQLiteStorage) ReplaceAmortizationResults(ctx context.Context, transactionID int64, results []model.AmortizationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.replaceAmortizationResultsTx(ctx, tx, transactionID, results)
	})
}

func (s *SQLiteStorage) replaceAmortizationResultsTx(ctx context.Context, q queryable, transactionID int64, results []model.AmortizationResult) error {
	if err := s.deleteAmortizationResultsTx(ctx, q, transactionID); err != nil {
		return err
	}

	for i := range results {
		r := &results[i]
		r.TransactionID = transactionID
		result, err := q.ExecContext(ctx, `
			INSERT INTO amortization_results (transaction_id, year, category, amount)
			VALUES (?, ?, ?, ?)
		`, transactionID, r.Year, r.Category, r.Amount)
		if err != nil {
			return fmt.Errorf("failed to insert amortization result for %d: %w", r.Year, err)
		}
		if r.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get amortization result ID: %w", err)
		}
	}
	return nil
}

// DeleteAmortizationResults removes the schedule of a transaction.
func (s *SQLiteStorage) DeleteAmortizationResults(ctx context.Context, transactionID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.deleteAmortizationResultsTx(ctx, s.db, transactionID)
}

func (s *SQLiteStorage) deleteAmortizationResultsTx(ctx context.Context, q queryable, transactionID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM amortization_results WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("failed to delete amortization results: %w", err)
	}
	return nil
}

// Transaction implementations for amortization

func (t *sqliteTransaction) GetAmortizationTypes(ctx context.Context, propertyID int64) ([]model.AmortizationType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAmortizationTypesTx(ctx, t.tx, propertyID)
}

func (t *sqliteTransaction) GetAmortizationType(ctx context.Context, id int64) (*model.AmortizationType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAmortizationTypeTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) CreateAmortizationType(ctx context.Context, amortType *model.AmortizationType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAmortizationType(amortType); err != nil {
		return err
	}
	return t.storage.createAmortizationTypeTx(ctx, t.tx, amortType)
}

func (t *sqliteTransaction) UpdateAmortizationType(ctx context.Context, amortType *model.AmortizationType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAmortizationType(amortType); err != nil {
		return err
	}
	return t.storage.updateAmortizationTypeTx(ctx, t.tx, amortType)
}

func (t *sqliteTransaction) DeleteAmortizationType(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteAmortizationTypeTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetAmortizationResults(ctx context.Context, transactionID int64) ([]model.AmortizationResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAmortizationResultsTx(ctx, t.tx, transactionID)
}

func (t *sqliteTransaction) ReplaceAmortizationResults(ctx context.Context, transactionID int64, results []model.AmortizationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.withTx(ctx, func(tx *sql.Tx) error {
		return t.storage.replaceAmortizationResultsTx(ctx, tx, transactionID, results)
	})
}

func (t *sqliteTransaction) DeleteAmortizationResults(ctx context.Context, transactionID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.deleteAmortizationResultsTx(ctx, t.tx, transactionID)
}
