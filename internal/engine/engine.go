// Package engine implements the rule-based classification of transactions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/pattern"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

// ClassificationEngine keeps transaction classifications in line with mapping rules.
type ClassificationEngine struct {
	storage      service.Storage
	recalculator service.AmortizationRecalculator
	retry        service.RetryOptions
}

// Config holds configuration options for the classification engine.
type Config struct {
	Retry service.RetryOptions
}

// DefaultConfig returns the default configuration: one retry of a failed write.
func DefaultConfig() Config {
	return Config{
		Retry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
	}
}

// New creates a new classification engine backed by storage.
func New(storage service.Storage) *ClassificationEngine {
	return NewWithConfig(storage, DefaultConfig())
}

// NewWithConfig creates a new classification engine with custom configuration.
func NewWithConfig(storage service.Storage, config Config) *ClassificationEngine {
	return &ClassificationEngine{
		storage: storage,
		retry:   config.Retry,
	}
}

// WithRecalculator rebuilds amortization schedules whenever a classification changes.
func (e *ClassificationEngine) WithRecalculator(recalculator service.AmortizationRecalculator) *ClassificationEngine {
	e.recalculator = recalculator
	return e
}

// Classify matches the transaction against rules and stores the outcome.
// A nil rule set, or one belonging to another property, is replaced by the
// transaction's own rules. Nothing is written when the outcome is unchanged.
func (e *ClassificationEngine) Classify(ctx context.Context, txn model.Transaction, rules *model.RuleSet) (Result, error) {
	var result Result
	err := common.WithRetry(ctx, func() error {
		var err error
		result, err = e.classifyIn(ctx, e.storage, txn, rules, false)
		return err
	}, e.retry)
	if err != nil {
		return Result{}, fmt.Errorf("failed to classify transaction %d: %w", txn.ID, err)
	}
	return result, nil
}

// ClassifyByID loads a transaction and classifies it against its property's rules.
func (e *ClassificationEngine) ClassifyByID(ctx context.Context, transactionID int64) (Result, error) {
	txn, err := e.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return Result{}, err
	}
	return e.Classify(ctx, *txn, nil)
}

// classifyIn runs one classification against store. When store is not already a
// transaction the write and the schedule rebuild share a new one.
func (e *ClassificationEngine) classifyIn(ctx context.Context, store service.Storage, txn model.Transaction, rules *model.RuleSet, forceRecalc bool) (Result, error) {
	if rules == nil || rules.PropertyID() != txn.PropertyID {
		if rules != nil {
			slog.Warn("Discarding rules of another property",
				"transaction_id", txn.ID,
				"property_id", txn.PropertyID,
				"rules_property_id", rules.PropertyID())
		}
		loaded, err := store.GetRuleSet(ctx, txn.PropertyID)
		if err != nil {
			return Result{}, err
		}
		rules = loaded
	}

	res := pattern.Resolve(txn.Name, rules.Rules())
	if res.Ambiguous {
		names := make([]string, 0, len(res.Conflicting()))
		for _, c := range res.Conflicting() {
			names = append(names, c.Rule.Name)
		}
		slog.Debug("Ambiguous match, leaving transaction unassigned",
			"transaction_id", txn.ID,
			"name", txn.Name,
			"rules", names)
	}

	result := Result{Rule: res.Rule}
	if res.Rule != nil {
		result.Levels = res.Rule.Levels
	}

	current, err := store.GetClassification(ctx, txn.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return Result{}, err
	default:
		result.HadRecord = true
	}

	next := model.NewClassification(txn, result.Levels)
	unchanged := (result.HadRecord && current.Levels == next.Levels &&
		current.Year == next.Year && current.Month == next.Month) ||
		(!result.HadRecord && next.Levels.IsEmpty())
	if unchanged && !forceRecalc {
		return result, nil
	}

	err = service.InTx(ctx, store, func(tx service.Storage) error {
		if !unchanged {
			if err := tx.SaveClassification(ctx, &next); err != nil {
				return err
			}
		}
		return e.recalculate(ctx, tx, txn.ID)
	})
	if err != nil {
		return Result{}, err
	}

	result.Changed = !unchanged
	if result.Changed {
		slog.Debug("Transaction classified",
			"transaction_id", txn.ID,
			"property_id", txn.PropertyID,
			"levels", result.Levels.String())
	}
	return result, nil
}

func (e *ClassificationEngine) recalculate(ctx context.Context, store service.Storage, transactionID int64) error {
	if e.recalculator == nil {
		return nil
	}
	_, err := e.recalculator.RecalculateWithStore(ctx, store, transactionID)
	return err
}

// ReclassifyAll classifies every transaction, or only those of propertyID when it
// is non-zero, in a single storage transaction: an error or a cancellation part
// way leaves every classification as it was. progress, when set, is called after
// each transaction.
func (e *ClassificationEngine) ReclassifyAll(ctx context.Context, propertyID int64, progress func(done, total int)) (service.ClassificationStats, error) {
	var stats service.ClassificationStats
	err := common.WithRetry(ctx, func() error {
		stats = service.ClassificationStats{}
		return service.InTx(ctx, e.storage, func(tx service.Storage) error {
			return e.reclassifyIn(ctx, tx, propertyID, progress, &stats)
		})
	}, e.retry)
	if err != nil {
		return service.ClassificationStats{}, fmt.Errorf("failed to reclassify transactions: %w", err)
	}

	slog.Info("Reclassification complete",
		"property_id", propertyID,
		"newly_classified", stats.NewlyClassified,
		"reclassified", stats.Reclassified,
		"changed", stats.Changed)
	return stats, nil
}

func (e *ClassificationEngine) reclassifyIn(ctx context.Context, tx service.Storage, propertyID int64, progress func(done, total int), stats *service.ClassificationStats) error {
	txns, err := tx.GetTransactions(ctx, service.TransactionFilter{PropertyID: propertyID})
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	slog.Info("Reclassifying transactions", "property_id", propertyID, "count", len(txns))

	ruleSets := make(map[int64]*model.RuleSet)
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}

		rules, ok := ruleSets[txn.PropertyID]
		if !ok {
			rules, err = tx.GetRuleSet(ctx, txn.PropertyID)
			if err != nil {
				return fmt.Errorf("failed to load rules of property %d: %w", txn.PropertyID, err)
			}
			ruleSets[txn.PropertyID] = rules
		}

		result, err := e.classifyIn(ctx, tx, txn, rules, false)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", txn.ID, err)
		}

		switch {
		case result.HadRecord:
			stats.Reclassified++
		case result.Changed:
			stats.NewlyClassified++
		}
		if result.Changed {
			stats.Changed++
		}

		if progress != nil {
			progress(i+1, len(txns))
		}
	}
	return nil
}

// SetManualClassification overrides the classification of one transaction,
// independently of the rules. Empty levels unassign it; anything else must be an
// allowed combination of the transaction's property.
func (e *ClassificationEngine) SetManualClassification(ctx context.Context, transactionID int64, levels model.Levels) (*model.Classification, error) {
	levels = levels.Normalize()

	txn, err := e.storage.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if !levels.IsEmpty() {
		if err := combinations.ValidateIn(ctx, e.storage, txn.PropertyID, levels); err != nil {
			return nil, err
		}
	}

	classification := model.NewClassification(*txn, levels)
	err = common.WithRetry(ctx, func() error {
		return service.InTx(ctx, e.storage, func(tx service.Storage) error {
			if err := tx.SaveClassification(ctx, &classification); err != nil {
				return err
			}
			return e.recalculate(ctx, tx, txn.ID)
		})
	}, e.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to set classification of transaction %d: %w", transactionID, err)
	}

	slog.Info("Manual classification saved",
		"transaction_id", transactionID,
		"property_id", txn.PropertyID,
		"levels", levels.String())
	return &classification, nil
}

// Ingest stores a new transaction then classifies it.
func (e *ClassificationEngine) Ingest(ctx context.Context, txn *model.Transaction) (Result, error) {
	if err := e.storage.SaveTransaction(ctx, txn); err != nil {
		return Result{}, fmt.Errorf("failed to save transaction: %w", err)
	}
	return e.Classify(ctx, *txn, nil)
}

// UpdateTransaction rewrites a transaction, reclassifies it and rebuilds its schedule.
func (e *ClassificationEngine) UpdateTransaction(ctx context.Context, txn *model.Transaction) (Result, error) {
	var result Result
	err := service.InTx(ctx, e.storage, func(tx service.Storage) error {
		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		var err error
		result, err = e.classifyIn(ctx, tx, *txn, nil, true)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to update transaction %d: %w", txn.ID, err)
	}
	return result, nil
}
