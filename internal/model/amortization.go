package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmortizationType describes a depreciation category and which classifications it applies to.
type AmortizationType struct {
	StartDateOverride    *time.Time
	AnnualAmountOverride decimal.NullDecimal
	Name                 string
	Level2Value          string
	Level1Values         []string
	DurationYears        float64
	ID                   int64
	PropertyID           int64
}

// IsDepreciable reports whether the type produces a schedule at all.
func (a *AmortizationType) IsDepreciable() bool {
	return a.DurationYears > 0
}

// Applies reports whether a classification falls under this type.
func (a *AmortizationType) Applies(levels Levels) bool {
	if levels.Level2 != a.Level2Value {
		return false
	}
	for _, l1 := range a.Level1Values {
		if l1 == levels.Level1 {
			return true
		}
	}
	return false
}

// AmortizationResult is the depreciation charge of one transaction for one year.
// Amount is negative.
type AmortizationResult struct {
	Amount        decimal.Decimal
	Category      string
	ID            int64
	TransactionID int64
	Year          int
}
