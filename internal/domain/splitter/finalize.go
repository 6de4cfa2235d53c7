package splitter

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
)

// Finalize builds the split payload from the current ledger state. It does
// not change the ledger, so a failed commit can be retried with the same
// ledger.
//
// Each bucket line and each remainder line takes a floored share of its
// source line's allocated tax and discount. The remainder then absorbs the
// difference between the source order and the summed figures, per dimension.
// When nothing remains on the original order the last bucket absorbs it.
func (l *Ledger) Finalize() (*SplitResult, error) {
	if lo.EveryBy(l.buckets, SplitBucket.IsEmpty) {
		return nil, ErrEmptySplit
	}

	result := &SplitResult{
		OriginalOrderID: l.order.ID,
		OrderVersion:    l.order.Version,
	}

	for _, b := range l.buckets {
		if b.IsEmpty() {
			continue
		}
		payload := BucketPayload{
			Name:            b.Label,
			TableID:         b.TableID,
			ParentOrderID:   l.order.ID,
			PriceIncludeTax: l.order.PriceIncludesTax,
			CustomerCount:   l.order.CustomerCount,
			CustomerName:    l.order.CustomerName,
			Items:           make([]PayloadItem, 0, len(b.Lines)),
		}
		for _, bl := range b.Lines {
			src := l.lines[l.index[bl.ProductID]]
			item := l.payloadItem(src, bl.Quantity, bl.Total, bl.Discount)
			payload.Items = append(payload.Items, item)
			payload.Totals = payload.Totals.Add(l.itemTotals(item))
		}
		result.Buckets = append(result.Buckets, payload)
	}

	for _, src := range l.lines {
		if src.RemainingQuantity == 0 {
			continue
		}
		gross := src.UnitPrice * src.RemainingQuantity
		discount := money.Prorate(src.LineDiscount, src.RemainingQuantity, src.TotalQuantity)
		item := l.payloadItem(src, src.RemainingQuantity, gross, discount)
		result.Remainder.Items = append(result.Remainder.Items, item)
		result.Remainder.Totals = result.Remainder.Totals.Add(l.itemTotals(item))
	}

	l.reconcile(result)

	if got, want := result.Sum(), l.order.Totals(); got != want {
		return nil, fmt.Errorf("%w: got %+v, want %+v", ErrArithmeticInconsistency, got, want)
	}
	return result, nil
}

// reconcile folds the rounding residual of every dimension into one target.
func (l *Ledger) reconcile(result *SplitResult) {
	result.Residual = l.order.Totals().Sub(result.Sum())
	if result.Residual.IsZero() {
		return
	}
	if len(result.Remainder.Items) > 0 {
		result.Remainder.Totals = result.Remainder.Totals.Add(result.Residual)
		return
	}
	last := &result.Buckets[len(result.Buckets)-1]
	last.Totals = last.Totals.Add(result.Residual)
}

func (l *Ledger) payloadItem(src MergedLine, qty, gross, discount int64) PayloadItem {
	tax := money.Prorate(src.AllocatedTax, qty, src.TotalQuantity)
	return PayloadItem{
		ProductID:      src.ProductID,
		ProductName:    src.ProductName,
		Quantity:       qty,
		UnitPrice:      src.UnitPrice,
		Total:          gross,
		Discount:       discount,
		Tax:            tax,
		TaxRate:        src.TaxRate,
		PriceBeforeTax: l.priceBeforeTax(src, gross, discount, tax),
	}
}

// priceBeforeTax reverses the product's tax rate out of a tax-inclusive
// price. The rate-based figure can differ from the allocated tax on the
// same line; both are reported as computed.
func (l *Ledger) priceBeforeTax(src MergedLine, gross, discount, tax int64) int64 {
	if !l.order.PriceIncludesTax {
		return gross
	}
	return money.ReverseTax(gross-discount, src.TaxRate) - tax
}

func (l *Ledger) itemTotals(item PayloadItem) Totals {
	subtotal := item.Total - item.Discount
	if l.order.PriceIncludesTax {
		subtotal -= item.Tax
	}
	return Totals{
		Subtotal: subtotal,
		Discount: item.Discount,
		Tax:      item.Tax,
		Total:    subtotal + item.Tax,
	}
}
