package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of decimal places money is kept at.
const CurrencyPlaces = 2

// CalculateInstallmentAmount splits an amount evenly over a number of terms.
// Formula: Amount / Terms, rounded to currency precision
func CalculateInstallmentAmount(amount decimal.Decimal, terms int) decimal.Decimal {
	return amount.DivRound(decimal.NewFromInt(int64(terms)), CurrencyPlaces)
}

// CalculateDueDate calculates the due date for a specific term
// Term 1 is due one period after the start, term 2 two periods after, etc.
func CalculateDueDate(startDate time.Time, termNumber, periodDays int) time.Time {
	return startDate.AddDate(0, 0, termNumber*periodDays)
}

// HasCurrencyPrecision reports whether d carries no more than two decimals.
func HasCurrencyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(CurrencyPlaces))
}
