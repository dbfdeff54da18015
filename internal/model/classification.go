// Package model defines the core domain models used throughout the application.
package model

import "time"

// Classification is the current (level_1, level_2, level_3) of a transaction.
// An empty Levels value means the transaction is unassigned.
type Classification struct {
	ClassifiedAt  time.Time
	Levels        Levels
	TransactionID int64
	Year          int
	Month         int
}

// NewClassification builds the classification row for txn with the given levels.
func NewClassification(txn Transaction, levels Levels) Classification {
	return Classification{
		TransactionID: txn.ID,
		Levels:        levels,
		Year:          txn.Date.Year(),
		Month:         int(txn.Date.Month()),
	}
}

// IsClassified reports whether both level 1 and level 2 are present.
func (c Classification) IsClassified() bool {
	return c.Levels.Level1 != "" && c.Levels.Level2 != ""
}
