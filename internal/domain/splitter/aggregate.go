package splitter

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/allocator"
	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
)

// Aggregate merges raw line items that share a product into one MergedLine
// per product, in first-seen order. Tax rate comes from the first line seen
// for the product; every line of a product must share one unit price.
func Aggregate(raw []RawLine) ([]MergedLine, error) {
	merged := make([]MergedLine, 0, len(raw))
	index := make(map[string]int, len(raw))

	for _, r := range raw {
		if r.Quantity < 0 {
			return nil, &ValidationError{Err: ErrInvalidQuantity, ProductID: r.ProductID, Quantity: r.Quantity}
		}
		total, err := money.Parse(r.Total)
		if err != nil {
			return nil, fmt.Errorf("line total for %s: %w", r.ProductID, err)
		}
		discount, err := money.Parse(r.Discount)
		if err != nil {
			return nil, fmt.Errorf("line discount for %s: %w", r.ProductID, err)
		}

		i, seen := index[r.ProductID]
		if !seen {
			rate, err := money.ParseRate(r.TaxRate)
			if err != nil {
				return nil, fmt.Errorf("tax rate for %s: %w", r.ProductID, err)
			}
			index[r.ProductID] = len(merged)
			merged = append(merged, MergedLine{
				ProductID:   r.ProductID,
				ProductName: r.ProductName,
				UnitPrice:   r.UnitPrice,
				TaxRate:     rate,
			})
			i = len(merged) - 1
		} else if merged[i].UnitPrice != r.UnitPrice {
			return nil, &ValidationError{Err: ErrMixedUnitPrice, ProductID: r.ProductID, Quantity: r.Quantity}
		}

		line := &merged[i]
		line.TotalQuantity += r.Quantity
		line.LineTotal += total
		line.LineDiscount += discount
	}

	for i := range merged {
		merged[i].RemainingQuantity = merged[i].TotalQuantity
	}
	return merged, nil
}

// AllocateTax spreads orderTax across lines in proportion to each line's
// share of the summed line totals, setting AllocatedTax in place. Every line
// but the last is floored; the last absorbs the slack.
func AllocateTax(lines []MergedLine, orderTax int64) error {
	if len(lines) == 0 {
		return nil
	}

	items := lo.Map(lines, func(l MergedLine, _ int) allocator.Item {
		return allocator.Item{Key: l.ProductID, Weight: l.LineTotal}
	})
	result, err := allocator.Allocate(items, orderTax)
	if err != nil {
		return fmt.Errorf("allocate tax: %w", err)
	}

	for i, a := range result.Allocations {
		lines[i].AllocatedTax = a.Share
	}
	return nil
}
