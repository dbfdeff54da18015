package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single bank movement belonging to a property.
type Transaction struct {
	Date       time.Time
	Amount     decimal.Decimal
	Name       string // Raw bank label
	ID         int64
	PropertyID int64
}

// NormalizedName returns the label as used for rule matching.
func (t *Transaction) NormalizedName() string {
	return strings.TrimSpace(t.Name)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}
