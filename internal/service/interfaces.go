// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	PropertyID int64 // 0 means every property
	Limit      int
	Offset     int
}

// TransactionStore persists bank transactions.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByID(ctx context.Context, id int64) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	// GetTransactionsContaining returns the transactions of a property whose trimmed
	// label contains fragment. Every matching case requires the rule pattern to be a
	// substring of the label, so this is a safe pre-filter for cascades.
	GetTransactionsContaining(ctx context.Context, propertyID int64, fragment string) ([]model.Transaction, error)
}

// ClassificationStore persists the current classification of each transaction.
type ClassificationStore interface {
	// GetClassification returns common.ErrNotFound when the transaction never had a row.
	GetClassification(ctx context.Context, transactionID int64) (*model.Classification, error)
	// SaveClassification upserts all three levels in a single statement.
	SaveClassification(ctx context.Context, classification *model.Classification) error
	GetClassifiedTransactions(ctx context.Context, propertyID int64) ([]model.Transaction, error)
	GetUnassignedTransactions(ctx context.Context, propertyID int64) ([]model.Transaction, error)
}

// RuleStore persists mapping rules.
type RuleStore interface {
	GetRuleSet(ctx context.Context, propertyID int64) (*model.RuleSet, error)
	GetRule(ctx context.Context, id int64) (*model.MappingRule, error)
	GetRuleByName(ctx context.Context, propertyID int64, name string) (*model.MappingRule, error)
	CreateRule(ctx context.Context, rule *model.MappingRule) error
	UpdateRule(ctx context.Context, rule *model.MappingRule) error
	DeleteRule(ctx context.Context, id int64) error
}

// CombinationStore persists the allowed classification triples.
type CombinationStore interface {
	IsCombinationAllowed(ctx context.Context, propertyID int64, levels model.Levels) (bool, error)
	GetCombinations(ctx context.Context, propertyID int64) ([]model.AllowedCombination, error)
	GetCombination(ctx context.Context, id int64) (*model.AllowedCombination, error)
	CreateCombination(ctx context.Context, combination *model.AllowedCombination) error
	SetCombinationHardcoded(ctx context.Context, id int64, hardcoded bool) error
	DeleteCombination(ctx context.Context, id int64) error
	DeleteManualCombinations(ctx context.Context, propertyID int64) (int, error)
}

// AmortizationStore persists amortization types and computed schedules.
type AmortizationStore interface {
	GetAmortizationTypes(ctx context.Context, propertyID int64) ([]model.AmortizationType, error)
	GetAmortizationType(ctx context.Context, id int64) (*model.AmortizationType, error)
	CreateAmortizationType(ctx context.Context, amortType *model.AmortizationType) error
	UpdateAmortizationType(ctx context.Context, amortType *model.AmortizationType) error
	DeleteAmortizationType(ctx context.Context, id int64) error
	GetAmortizationResults(ctx context.Context, transactionID int64) ([]model.AmortizationResult, error)
	// ReplaceAmortizationResults deletes every row of the transaction then inserts results.
	ReplaceAmortizationResults(ctx context.Context, transactionID int64, results []model.AmortizationResult) error
	DeleteAmortizationResults(ctx context.Context, transactionID int64) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionStore
	ClassificationStore
	RuleStore
	CombinationStore
	AmortizationStore

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// AmortizationRecalculator rebuilds the depreciation schedule of a transaction
// using the given store, so callers can keep the rebuild inside their own transaction.
type AmortizationRecalculator interface {
	RecalculateWithStore(ctx context.Context, store Storage, transactionID int64) (int, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ClassificationStats summarizes a bulk reclassification.
type ClassificationStats struct {
	NewlyClassified int // transactions without a row that received one
	Reclassified    int // transactions that already had a row
	Changed         int // rows actually written
}

// ResetStats summarizes an allowed-combination reset.
type ResetStats struct {
	CombinationsDeleted    int
	RulesDeleted           int
	TransactionsUnassigned int
}

// SeedStats summarizes a bulk seed of hardcoded combinations.
type SeedStats struct {
	Inserted int
	Promoted int
	Skipped  int
}

// InTx runs fn inside a storage transaction, reusing store when it already is one.
func InTx(ctx context.Context, store Storage, fn func(Storage) error) error {
	if _, ok := store.(Transaction); ok {
		return fn(store)
	}

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
