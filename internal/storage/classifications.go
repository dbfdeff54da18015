package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// GetClassification returns the current classification of a transaction.
func (s *SQLiteStorage) GetClassification(ctx context.Context, transactionID int64) (*model.Classification, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getClassificationTx(ctx, s.db, transactionID)
}

func (s *SQLiteStorage) getClassificationTx(ctx context.Context, q queryable, transactionID int64) (*model.Classification, error) {
	var (
		c          model.Classification
		l1, l2, l3 sql.NullString
		at         sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT transaction_id, level_1, level_2, level_3, year, month, classified_at
		FROM classifications
		WHERE transaction_id = ?
	`, transactionID).Scan(&c.TransactionID, &l1, &l2, &l3, &c.Year, &c.Month, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: classification for transaction %d", common.ErrNotFound, transactionID)
		}
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	c.Levels = levelsFromNull(l1, l2, l3)
	c.ClassifiedAt = at.Time
	return &c, nil
}

// SaveClassification upserts the classification of a transaction.
func (s *SQLiteStorage) SaveClassification(ctx context.Context, classification *model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateClassification(classification); err != nil {
		return err
	}
	return s.saveClassificationTx(ctx, s.db, classification)
}

func (s *SQLiteStorage) saveClassificationTx(ctx context.Context, q queryable, c *model.Classification) error {
	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = time.Now()
	}

	// One statement, so the three levels always change together.
	_, err := q.ExecContext(ctx, `
		INSERT INTO classifications (transaction_id, level_1, level_2, level_3, year, month, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			level_1 = excluded.level_1,
			level_2 = excluded.level_2,
			level_3 = excluded.level_3,
			year = excluded.year,
			month = excluded.month,
			classified_at = excluded.classified_at
	`,
		c.TransactionID,
		nullString(c.Levels.Level1),
		nullString(c.Levels.Level2),
		nullString(string(c.Levels.Level3)),
		c.Year,
		c.Month,
		c.ClassifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}
	return nil
}

// GetClassifiedTransactions returns the property's transactions that carry level 1 and level 2.
func (s *SQLiteStorage) GetClassifiedTransactions(ctx context.Context, propertyID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getClassifiedTransactionsTx(ctx, s.db, propertyID)
}

func (s *SQLiteStorage) getClassifiedTransactionsTx(ctx context.Context, q queryable, propertyID int64) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		JOIN classifications c ON c.transaction_id = t.id
		WHERE t.property_id = ? AND c.level_1 IS NOT NULL AND c.level_2 IS NOT NULL
		ORDER BY t.date, t.id
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query classified transactions: %w", err)
	}
	return scanTransactions(rows)
}

// GetUnassignedTransactions returns the property's transactions missing level 1
// or level 2, including those that never had a classification row.
func (s *SQLiteStorage) GetUnassignedTransactions(ctx context.Context, propertyID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getUnassignedTransactionsTx(ctx, s.db, propertyID)
}

func (s *SQLiteStorage) getUnassignedTransactionsTx(ctx context.Context, q queryable, propertyID int64) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		LEFT JOIN classifications c ON c.transaction_id = t.id
		WHERE t.property_id = ? AND (c.level_1 IS NULL OR c.level_2 IS NULL)
		ORDER BY t.date, t.id
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unassigned transactions: %w", err)
	}
	return scanTransactions(rows)
}

// Transaction implementations for classifications

func (t *sqliteTransaction) GetClassification(ctx context.Context, transactionID int64) (*model.Classification, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getClassificationTx(ctx, t.tx, transactionID)
}

func (t *sqliteTransaction) SaveClassification(ctx context.Context, classification *model.Classification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateClassification(classification); err != nil {
		return err
	}
	return t.storage.saveClassificationTx(ctx, t.tx, classification)
}

func (t *sqliteTransaction) GetClassifiedTransactions(ctx context.Context, propertyID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getClassifiedTransactionsTx(ctx, t.tx, propertyID)
}

func (t *sqliteTransaction) GetUnassignedTransactions(ctx context.Context, propertyID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getUnassignedTransactionsTx(ctx, t.tx, propertyID)
}
