// Package grading holds the fixed-point arithmetic behind every published
// grade: averages, the 50/50 bimester blend, commercial rounding and the
// UGEL letter scale. Functions are pure and never touch float64.
package grading

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal digits kept on every persisted grade.
const Scale int32 = 2

var (
	// MinScore is the lowest valid grade on the vigesimal scale.
	MinScore = decimal.Zero
	// MaxScore is the highest valid grade on the vigesimal scale.
	MaxScore = decimal.NewFromInt(20)

	two = decimal.NewFromInt(2)
)

// ErrOutOfRange indicates a grade outside [0,20].
var ErrOutOfRange = errors.New("grade must be between 0 and 20")

// Quantize rounds half-up to two decimal places. Grades are never negative,
// so decimal's half-away-from-zero rounding is half-up on this domain.
func Quantize(value decimal.Decimal) decimal.Decimal {
	return value.Round(Scale)
}

// Validate checks the [0,20] range.
func Validate(value decimal.Decimal) error {
	if value.LessThan(MinScore) || value.GreaterThan(MaxScore) {
		return fmt.Errorf("%s: %w", value.String(), ErrOutOfRange)
	}
	return nil
}

// Average returns the arithmetic mean rounded half-up to two decimals.
// An empty input yields 0.00.
func Average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}

	return Quantize(sum.Div(decimal.NewFromInt(int64(len(values)))))
}

// AverageNullable averages only the valid entries.
func AverageNullable(values []decimal.NullDecimal) decimal.Decimal {
	present := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if v.Valid {
			present = append(present, v.Decimal)
		}
	}
	return Average(present)
}

// Blend5050 applies the bimester rule (monthly + exam) / 2, rounding after
// the division.
func Blend5050(monthlyAverage, exam decimal.Decimal) decimal.Decimal {
	return Quantize(monthlyAverage.Add(exam).Div(two))
}

// CommercialRound rounds half-up to a whole grade (14.5 -> 15, 14.4 -> 14).
// Only used for banding; persisted averages keep two decimals.
func CommercialRound(value decimal.Decimal) int64 {
	return value.Round(0).IntPart()
}
