package amortization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

// Scheduler keeps persisted amortization results in line with transactions,
// their classifications and the amortization types of their property.
type Scheduler struct {
	storage service.Storage
}

// NewScheduler creates a scheduler backed by storage.
func NewScheduler(storage service.Storage) *Scheduler {
	return &Scheduler{storage: storage}
}

// RecalculateForTransaction rebuilds the schedule of one transaction and returns
// the number of yearly rows written.
func (s *Scheduler) RecalculateForTransaction(ctx context.Context, transactionID int64) (int, error) {
	var n int
	err := service.InTx(ctx, s.storage, func(tx service.Storage) error {
		var err error
		n, err = s.RecalculateWithStore(ctx, tx, transactionID)
		return err
	})
	return n, err
}

// RecalculateWithStore is RecalculateForTransaction against the given store.
func (s *Scheduler) RecalculateWithStore(ctx context.Context, store service.Storage, transactionID int64) (int, error) {
	txn, err := store.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return 0, err
	}

	classification, err := store.GetClassification(ctx, transactionID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return 0, err
	}
	if classification == nil || !classification.IsClassified() {
		return 0, store.DeleteAmortizationResults(ctx, transactionID)
	}

	types, err := store.GetAmortizationTypes(ctx, txn.PropertyID)
	if err != nil {
		return 0, err
	}
	amortType := findType(types, classification.Levels)
	if amortType == nil || !amortType.IsDepreciable() {
		return 0, store.DeleteAmortizationResults(ctx, transactionID)
	}

	start := txn.Date
	if amortType.StartDateOverride != nil {
		start = *amortType.StartDateOverride
	}

	amounts := ComputeYearlyAmounts(start, txn.Amount, amortType.DurationYears, amortType.AnnualAmountOverride)
	results := make([]model.AmortizationResult, 0, len(amounts))
	for _, year := range Years(amounts) {
		results = append(results, model.AmortizationResult{
			TransactionID: transactionID,
			Year:          year,
			Category:      amortType.Name,
			Amount:        amounts[year],
		})
	}

	if err := store.ReplaceAmortizationResults(ctx, transactionID, results); err != nil {
		return 0, err
	}

	slog.Debug("Amortization schedule rebuilt",
		"transaction_id", transactionID,
		"type", amortType.Name,
		"years", len(results))
	return len(results), nil
}

func findType(types []model.AmortizationType, levels model.Levels) *model.AmortizationType {
	for i := range types {
		if types[i].Applies(levels) {
			return &types[i]
		}
	}
	return nil
}

// RecalculateAll rebuilds the schedule of every classified transaction of the
// property and returns the total number of rows written.
func (s *Scheduler) RecalculateAll(ctx context.Context, propertyID int64, progress func(done, total int)) (int, error) {
	var total int
	err := service.InTx(ctx, s.storage, func(tx service.Storage) error {
		var err error
		total, err = s.recalculateAllIn(ctx, tx, propertyID, progress)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to recalculate amortization of property %d: %w", propertyID, err)
	}

	slog.Info("Amortization recalculated", "property_id", propertyID, "rows", total)
	return total, nil
}

func (s *Scheduler) recalculateAllIn(ctx context.Context, tx service.Storage, propertyID int64, progress func(done, total int)) (int, error) {
	txns, err := tx.GetClassifiedTransactions(ctx, propertyID)
	if err != nil {
		return 0, err
	}

	rows := 0
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.RecalculateWithStore(ctx, tx, txn.ID)
		if err != nil {
			return 0, fmt.Errorf("transaction %d: %w", txn.ID, err)
		}
		rows += n
		if progress != nil {
			progress(i+1, len(txns))
		}
	}
	return rows, nil
}

// Schedule returns the persisted schedule of a transaction ordered by year.
func (s *Scheduler) Schedule(ctx context.Context, transactionID int64) ([]model.AmortizationResult, error) {
	if _, err := s.storage.GetTransactionByID(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.storage.GetAmortizationResults(ctx, transactionID)
}

// Types lists the amortization types of a property.
func (s *Scheduler) Types(ctx context.Context, propertyID int64) ([]model.AmortizationType, error) {
	return s.storage.GetAmortizationTypes(ctx, propertyID)
}

// CreateType stores a new amortization type and recalculates the property.
func (s *Scheduler) CreateType(ctx context.Context, amortType *model.AmortizationType) (int, error) {
	return s.mutateType(ctx, amortType.PropertyID, "create", func(tx service.Storage) error {
		return tx.CreateAmortizationType(ctx, amortType)
	})
}

// UpdateType rewrites an amortization type and recalculates the property.
func (s *Scheduler) UpdateType(ctx context.Context, amortType *model.AmortizationType) (int, error) {
	return s.mutateType(ctx, amortType.PropertyID, "update", func(tx service.Storage) error {
		return tx.UpdateAmortizationType(ctx, amortType)
	})
}

// DeleteType removes an amortization type and recalculates its property.
func (s *Scheduler) DeleteType(ctx context.Context, id int64) (int, error) {
	existing, err := s.storage.GetAmortizationType(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.mutateType(ctx, existing.PropertyID, "delete", func(tx service.Storage) error {
		return tx.DeleteAmortizationType(ctx, id)
	})
}

func (s *Scheduler) mutateType(ctx context.Context, propertyID int64, action string, mutate func(service.Storage) error) (int, error) {
	var rows int
	err := service.InTx(ctx, s.storage, func(tx service.Storage) error {
		if err := mutate(tx); err != nil {
			return err
		}
		var err error
		rows, err = s.recalculateAllIn(ctx, tx, propertyID, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to %s amortization type: %w", action, err)
	}

	slog.Info("Amortization type changed",
		"action", action,
		"property_id", propertyID,
		"rows", rows)
	return rows, nil
}
