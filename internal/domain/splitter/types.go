// Package splitter implements the order split engine.
//
// A split session starts from a persisted order and its raw line items. The
// items are merged per product, the order's tax is allocated across the
// merged lines, and a Ledger then tracks quantities as they are moved into
// destination buckets. Finalize turns the ledger into a payload of new orders
// plus the shrunken remainder of the original, with every money dimension
// adding back up to the source order exactly.
package splitter

import "github.com/shopspring/decimal"

// SourceOrder is the read-only snapshot of the order being split.
type SourceOrder struct {
	ID               string
	Subtotal         int64
	Tax              int64
	Discount         int64
	Total            int64
	PriceIncludesTax bool
	TableID          string
	CustomerCount    int
	CustomerName     string
	Version          int64
}

// Totals returns the order's four aggregate figures.
func (o SourceOrder) Totals() Totals {
	return Totals{Subtotal: o.Subtotal, Discount: o.Discount, Tax: o.Tax, Total: o.Total}
}

// RawLine is an order line item as stored. Money fields are decimal strings;
// missing values count as zero.
type RawLine struct {
	ProductID   string
	ProductName string
	Quantity    int64
	UnitPrice   int64
	Total       string
	Discount    string
	TaxRate     string
}

// MergedLine is one distinct product of the source order.
type MergedLine struct {
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	UnitPrice         int64           `json:"unit_price"`
	TotalQuantity     int64           `json:"total_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	LineTotal         int64           `json:"line_total"`
	LineDiscount      int64           `json:"line_discount"`
	AllocatedTax      int64           `json:"allocated_tax"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
}

// BucketLine is the quantity of one product sitting in a bucket. Total is
// always quantity times unit price, undiscounted.
type BucketLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   int64           `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
	Total       int64           `json:"total"`
	Discount    int64           `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// SplitBucket is a destination order under construction.
type SplitBucket struct {
	Label   string       `json:"label"`
	TableID string       `json:"table_id"`
	Lines   []BucketLine `json:"lines"`
}

// IsEmpty reports whether the bucket holds no quantity.
func (b SplitBucket) IsEmpty() bool {
	return len(b.Lines) == 0
}

// Totals groups the four money dimensions that must be conserved.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Add returns the per-dimension sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Subtotal: t.Subtotal + o.Subtotal,
		Discount: t.Discount + o.Discount,
		Tax:      t.Tax + o.Tax,
		Total:    t.Total + o.Total,
	}
}

// Sub returns the per-dimension difference t - o.
func (t Totals) Sub(o Totals) Totals {
	return Totals{
		Subtotal: t.Subtotal - o.Subtotal,
		Discount: t.Discount - o.Discount,
		Tax:      t.Tax - o.Tax,
		Total:    t.Total - o.Total,
	}
}

// IsZero reports whether every dimension is zero.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// PayloadItem is a bucket or remainder line in persistence-ready shape.
type PayloadItem struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      int64           `json:"unit_price"`
	Total          int64           `json:"total"`
	Discount       int64           `json:"discount"`
	Tax            int64           `json:"tax"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	PriceBeforeTax int64           `json:"price_before_tax"`
}

// BucketPayload describes one new order to create.
type BucketPayload struct {
	Name            string        `json:"name"`
	TableID         string        `json:"table_id"`
	ParentOrderID   string        `json:"parent_order_id"`
	PriceIncludeTax bool          `json:"price_include_tax"`
	CustomerCount   int           `json:"customer_count"`
	CustomerName    string        `json:"customer_name"`
	Items           []PayloadItem `json:"items"`
	Totals
}

// RemainderUpdate is what the original order keeps.
type RemainderUpdate struct {
	Items []PayloadItem `json:"items"`
	Totals
}

// SplitResult is the output of Finalize, handed to the store as one unit.
type SplitResult struct {
	OriginalOrderID string          `json:"original_order_id"`
	OrderVersion    int64           `json:"order_version"`
	Buckets         []BucketPayload `json:"buckets"`
	Remainder       RemainderUpdate `json:"remainder"`
	// Residual is the rounding slack folded in by reconciliation.
	Residual Totals `json:"residual"`
}

// Sum adds every bucket and the remainder together.
func (r *SplitResult) Sum() Totals {
	sum := r.Remainder.Totals
	for _, b := range r.Buckets {
		sum = sum.Add(b.Totals)
	}
	return sum
}
