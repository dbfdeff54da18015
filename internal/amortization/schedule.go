// Package amortization computes 30/360 depreciation schedules for classified transactions.
package amortization

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SumTolerance is the largest gap between the schedule total and the asset cost
// left uncorrected.
const SumTolerance = "0.01"

var sumTolerance = decimal.RequireFromString(SumTolerance)

var daysPerYear = decimal.NewFromInt(360)

// Days360 counts the days between two dates with every month 30 days long.
func Days360(start, end time.Time) int {
	return (end.Year()-start.Year())*360 +
		(int(end.Month())-int(start.Month()))*30 +
		(end.Day() - start.Day())
}

// addYears moves t by whole calendar years. February 29 lands on February 28
// in non-leap years.
func addYears(t time.Time, years int) time.Time {
	y, m, d := t.Date()
	y += years
	if m == time.February && d == 29 && !isLeap(y) {
		d = 28
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ComputeYearlyAmounts spreads totalAmount over durationYears starting at start.
// The annuity is annualOverride when set and non-zero, otherwise |total|/duration.
// Amounts are rounded to the cent and negative. The schedule stops at the year
// where the running total reaches |totalAmount|, that year taking only what is
// left; a shortfall above SumTolerance is added to the last year.
func ComputeYearlyAmounts(start time.Time, totalAmount decimal.Decimal, durationYears float64, annualOverride decimal.NullDecimal) map[int]decimal.Decimal {
	amounts := make(map[int]decimal.Decimal)
	if durationYears <= 0 {
		return amounts
	}

	total := totalAmount.Abs()
	annuity := total.Div(decimal.NewFromFloat(durationYears))
	if annualOverride.Valid && !annualOverride.Decimal.IsZero() {
		annuity = annualOverride.Decimal.Abs()
	}
	daily := annuity.Div(daysPerYear)

	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end := addYears(start, int(math.Trunc(durationYears)))
	prorate := func(from, to time.Time) decimal.Decimal {
		return daily.Mul(decimal.NewFromInt(int64(Days360(from, to)))).Round(2)
	}

	startYear, endYear := start.Year(), end.Year()
	raw := make(map[int]decimal.Decimal)
	if startYear == endYear {
		raw[startYear] = prorate(start, end)
	} else {
		raw[startYear] = prorate(start, time.Date(startYear, time.December, 31, 0, 0, 0, 0, time.UTC))
		for year := startYear + 1; year < endYear; year++ {
			raw[year] = annuity.Round(2)
		}
		raw[endYear] = prorate(time.Date(endYear, time.January, 1, 0, 0, 0, 0, time.UTC), end)
	}

	sum := decimal.Zero
	lastYear := startYear
	for year := startYear; year <= endYear; year++ {
		remaining := total.Sub(sum)
		amount := raw[year]
		if amount.GreaterThan(remaining) {
			if remaining.IsPositive() {
				amounts[year] = remaining
				lastYear = year
			}
			sum = total
			break
		}
		amounts[year] = amount
		sum = sum.Add(amount)
		lastYear = year
	}

	if diff := total.Sub(sum); diff.GreaterThan(sumTolerance) {
		amounts[lastYear] = amounts[lastYear].Add(diff)
	}

	for year, amount := range amounts {
		amounts[year] = amount.Neg()
	}
	return amounts
}

// Years returns the keys of a schedule in ascending order.
func Years(amounts map[int]decimal.Decimal) []int {
	years := make([]int, 0, len(amounts))
	for year := range amounts {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}
