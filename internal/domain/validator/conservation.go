// Package validator checks that a split keeps every money figure of the
// original order.
//
// A split replaces one order with several. The new orders plus what is left
// on the original must add back up to the original's subtotal, discount, tax
// and total exactly; amounts are whole currency units, so there is no
// tolerance.
package validator

import (
	"fmt"
	"strings"
)

// Amounts is the set of figures conserved by a split.
type Amounts struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Total    int64
}

func (a Amounts) add(o Amounts) Amounts {
	return Amounts{
		Subtotal: a.Subtotal + o.Subtotal,
		Discount: a.Discount + o.Discount,
		Tax:      a.Tax + o.Tax,
		Total:    a.Total + o.Total,
	}
}

// ConservationResult contains the result of validating a split.
type ConservationResult struct {
	// Valid is true if the parts add up to the original
	Valid bool

	// Expected is the original order's figures
	Expected Amounts

	// Actual is the sum of all parts
	Actual Amounts

	// Difference is Actual minus Expected, per figure
	Difference Amounts

	// Reason lists the figures that do not match (empty if valid)
	Reason string
}

// ValidateConservation checks that parts sum to original in every figure.
func ValidateConservation(original Amounts, parts ...Amounts) *ConservationResult {
	var actual Amounts
	for _, p := range parts {
		actual = actual.add(p)
	}

	diff := Amounts{
		Subtotal: actual.Subtotal - original.Subtotal,
		Discount: actual.Discount - original.Discount,
		Tax:      actual.Tax - original.Tax,
		Total:    actual.Total - original.Total,
	}

	result := &ConservationResult{
		Valid:      diff == Amounts{},
		Expected:   original,
		Actual:     actual,
		Difference: diff,
	}
	if result.Valid {
		return result
	}

	var mismatches []string
	for _, f := range []struct {
		name      string
		got, want int64
	}{
		{"subtotal", actual.Subtotal, original.Subtotal},
		{"discount", actual.Discount, original.Discount},
		{"tax", actual.Tax, original.Tax},
		{"total", actual.Total, original.Total},
	} {
		if f.got != f.want {
			mismatches = append(mismatches, fmt.Sprintf("%s %d != %d", f.name, f.got, f.want))
		}
	}
	result.Reason = "split does not add up: " + strings.Join(mismatches, ", ")
	return result
}
