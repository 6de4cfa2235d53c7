// Package money provides the integer money arithmetic used by the split engine.
//
// Amounts are whole currency units with no fractional part. Every division
// floors, and fractional values only ever exist as an intermediate step right
// before that floor.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a stored amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid money amount")

var hundred = decimal.NewFromInt(100)

// Parse converts a stored amount ("120000", "120000.00", "") into whole units.
// An empty string is zero. A fractional part is floored away.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d.Floor().IntPart(), nil
}

// Format renders whole units the way they are stored.
func Format(amount int64) string {
	return decimal.NewFromInt(amount).String()
}

// ParseRate parses a percentage rate such as "10" or "8.5". Empty is zero.
func ParseRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: rate %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative rate %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// Prorate returns floor(amount * part / whole). A zero whole yields zero.
func Prorate(amount, part, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	num := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(part))
	return floorQuo(num, decimal.NewFromInt(whole))
}

// ReverseTax strips a tax-inclusive percentage from gross:
//
//	floor(gross / (1 + rate/100))
func ReverseTax(gross int64, rate decimal.Decimal) int64 {
	num := decimal.NewFromInt(gross).Mul(hundred)
	return floorQuo(num, hundred.Add(rate))
}

// floorQuo divides exactly and floors. QuoRem truncates toward zero, so a
// non-zero remainder with mixed signs needs one step down.
func floorQuo(num, den decimal.Decimal) int64 {
	q, r := num.QuoRem(den, 0)
	if !r.IsZero() && num.Sign()*den.Sign() < 0 {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q.IntPart()
}
