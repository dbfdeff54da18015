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
	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

const transactionColumns = `t.id, t.property_id, t.name, t.amount, t.date`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (model.Transaction, error) {
	var txn model.Transaction
	if err := row.Scan(&txn.ID, &txn.PropertyID, &txn.Name, &txn.Amount, &txn.Date); err != nil {
		return model.Transaction{}, err
	}
	txn.Date = model.DateOnly(txn.Date)
	return txn, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// SaveTransaction inserts a new transaction and sets its ID.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return s.saveTransactionTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) saveTransactionTx(ctx context.Context, q queryable, txn *model.Transaction) error {
	txn.Date = model.DateOnly(txn.Date)
	result, err := q.ExecContext(ctx,
		`INSERT INTO transactions (property_id, name, amount, date) VALUES (?, ?, ?, ?)`,
		txn.PropertyID, strings.TrimSpace(txn.Name), txn.Amount, txn.Date.Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transaction ID: %w", err)
	}
	txn.ID = id
	txn.Name = strings.TrimSpace(txn.Name)
	return nil
}

// UpdateTransaction rewrites the label, amount and date of a transaction.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return s.updateTransactionTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) updateTransactionTx(ctx context.Context, q queryable, txn *model.Transaction) error {
	txn.Date = model.DateOnly(txn.Date)
	txn.Name = strings.TrimSpace(txn.Name)
	result, err := q.ExecContext(ctx,
		`UPDATE transactions SET name = ?, amount = ?, date = ? WHERE id = ? AND property_id = ?`,
		txn.Name, txn.Amount, txn.Date.Format(time.DateOnly), txn.ID, txn.PropertyID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return checkAffected(result, "transaction", txn.ID)
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTransactionByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getTransactionByIDTx(ctx context.Context, q queryable, id int64) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %d", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// GetTransactions lists transactions ordered by date then ID.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTransactionsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getTransactionsTx(ctx context.Context, q queryable, filter service.TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE 1=1`
	var args []any

	if filter.PropertyID != 0 {
		query += ` AND t.property_id = ?`
		args = append(args, filter.PropertyID)
	}
	if filter.StartDate != nil {
		query += ` AND t.date >= ?`
		args = append(args, filter.StartDate.Format(time.DateOnly))
	}
	if filter.EndDate != nil {
		query += ` AND t.date <= ?`
		args = append(args, filter.EndDate.Format(time.DateOnly))
	}

	query += ` ORDER BY t.date, t.id`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return scanTransactions(rows)
}

// GetTransactionsContaining returns the property's transactions whose label contains fragment.
func (s *SQLiteStorage) GetTransactionsContaining(ctx context.Context, propertyID int64, fragment string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getTransactionsContainingTx(ctx, s.db, propertyID, fragment)
}

func (s *SQLiteStorage) getTransactionsContainingTx(ctx context.Context, q queryable, propertyID int64, fragment string) ([]model.Transaction, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t
		WHERE t.property_id = ? AND instr(t.name, ?) > 0
		ORDER BY t.date, t.id`,
		propertyID, fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by label: %w", err)
	}
	return scanTransactions(rows)
}

// Transaction methods delegate to the main storage with the transaction.

func (t *sqliteTransaction) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return t.storage.saveTransactionTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return t.storage.updateTransactionTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) GetTransactionByID(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getTransactionByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getTransactionsTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) GetTransactionsContaining(ctx context.Context, propertyID int64, fragment string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getTransactionsContainingTx(ctx, t.tx, propertyID, fragment)
}
