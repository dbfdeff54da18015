// Package storage provides the data persistence layer for the bookkeeping core.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext            = errors.New("context cannot be nil")
	ErrEmptyString           = errors.New("string parameter cannot be empty")
	ErrNilParameter          = errors.New("parameter cannot be nil")
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrInvalidClassification = errors.New("invalid classification")
	ErrInvalidRule           = errors.New("invalid mapping rule")
	ErrInvalidCombination    = errors.New("invalid allowed combination")
	ErrInvalidAmortization   = errors.New("invalid amortization type")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.PropertyID == 0 {
		return fmt.Errorf("%w: missing property ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if strings.TrimSpace(txn.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTransaction)
	}
	return nil
}

// validateClassification checks that a row is either fully unassigned or has both
// level 1 and level 2. Whitelist checks belong to the service layer.
func validateClassification(c *model.Classification) error {
	if c == nil {
		return fmt.Errorf("%w: classification", ErrNilParameter)
	}
	if c.TransactionID == 0 {
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidClassification)
	}
	if c.Levels.IsEmpty() {
		return nil
	}
	if c.Levels.Level1 == "" || c.Levels.Level2 == "" {
		return fmt.Errorf("%w: level 1 and level 2 are required", ErrInvalidClassification)
	}
	if !c.Levels.Level3.IsValid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidLevel3, c.Levels.Level3)
	}
	return nil
}

// validateRule validates a mapping rule.
func validateRule(rule *model.MappingRule) error {
	if rule == nil {
		return fmt.Errorf("%w: mapping rule", ErrNilParameter)
	}
	if rule.PropertyID == 0 {
		return fmt.Errorf("%w: missing property ID", ErrInvalidRule)
	}
	if err := validateString(rule.Name, "name"); err != nil {
		return err
	}
	if rule.Levels.Level1 == "" || rule.Levels.Level2 == "" {
		return fmt.Errorf("%w: level 1 and level 2 are required", ErrInvalidRule)
	}
	if !rule.Levels.Level3.IsValid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidLevel3, rule.Levels.Level3)
	}
	return nil
}

// validateCombination validates an allowed combination.
func validateCombination(c *model.AllowedCombination) error {
	if c == nil {
		return fmt.Errorf("%w: combination", ErrNilParameter)
	}
	if c.PropertyID == 0 {
		return fmt.Errorf("%w: missing property ID", ErrInvalidCombination)
	}
	if c.Levels.Level1 == "" || c.Levels.Level2 == "" {
		return fmt.Errorf("%w: level 1 and level 2 are required", ErrInvalidCombination)
	}
	if !c.Levels.Level3.IsValid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidLevel3, c.Levels.Level3)
	}
	return nil
}

// validateAmortizationType validates an amortization type.
func validateAmortizationType(a *model.AmortizationType) error {
	if a == nil {
		return fmt.Errorf("%w: amortization type", ErrNilParameter)
	}
	if a.PropertyID == 0 {
		return fmt.Errorf("%w: missing property ID", ErrInvalidAmortization)
	}
	if err := validateString(a.Name, "name"); err != nil {
		return err
	}
	if err := validateString(a.Level2Value, "level_2_value"); err != nil {
		return err
	}
	if a.DurationYears < 0 {
		return fmt.Errorf("%w: duration cannot be negative", ErrInvalidAmortization)
	}
	return nil
}
