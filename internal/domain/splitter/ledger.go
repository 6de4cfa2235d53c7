package splitter

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
)

// DefaultLabelPrefix is used for generated bucket labels.
const DefaultLabelPrefix = "Split"

// Ledger tracks where every unit of the source order currently sits: still on
// its merged line, or in one of the buckets. A Ledger is not safe for
// concurrent use.
type Ledger struct {
	order   SourceOrder
	lines   []MergedLine
	index   map[string]int
	buckets []SplitBucket

	labelPrefix string
	labelSeq    int
}

// NewSession aggregates raw, allocates the order's tax and returns a ledger
// holding one empty bucket.
func NewSession(order SourceOrder, raw []RawLine, labelPrefix string) (*Ledger, error) {
	lines, err := Aggregate(raw)
	if err != nil {
		return nil, fmt.Errorf("aggregate lines: %w", err)
	}
	if err := AllocateTax(lines, order.Tax); err != nil {
		return nil, err
	}
	return NewLedger(order, lines, labelPrefix), nil
}

// NewLedger builds a ledger over already-allocated lines. The ledger takes a
// copy of lines.
func NewLedger(order SourceOrder, lines []MergedLine, labelPrefix string) *Ledger {
	if labelPrefix == "" {
		labelPrefix = DefaultLabelPrefix
	}
	l := &Ledger{
		order:       order,
		lines:       slices.Clone(lines),
		index:       make(map[string]int, len(lines)),
		labelPrefix: labelPrefix,
	}
	for i, line := range l.lines {
		l.index[line.ProductID] = i
	}
	l.buckets = append(l.buckets, SplitBucket{Label: l.nextLabel(), TableID: order.TableID})
	return l
}

// Order returns the source order snapshot.
func (l *Ledger) Order() SourceOrder {
	return l.order
}

// Lines returns a copy of the merged lines.
func (l *Ledger) Lines() []MergedLine {
	return slices.Clone(l.lines)
}

// Line returns a copy of the merged line for productID.
func (l *Ledger) Line(productID string) (MergedLine, bool) {
	i, ok := l.index[productID]
	if !ok {
		return MergedLine{}, false
	}
	return l.lines[i], true
}

// Buckets returns a deep copy of the buckets.
func (l *Ledger) Buckets() []SplitBucket {
	out := make([]SplitBucket, len(l.buckets))
	for i, b := range l.buckets {
		if len(b.Lines) == 0 {
			b.Lines = nil
		} else {
			b.Lines = slices.Clone(b.Lines)
		}
		out[i] = b
	}
	return out
}

// BucketCount returns the number of buckets.
func (l *Ledger) BucketCount() int {
	return len(l.buckets)
}

// MoveQuantity moves qty units of productID from its source line into the
// bucket at bucketIndex. On error nothing changes.
func (l *Ledger) MoveQuantity(productID string, bucketIndex int, qty int64) error {
	bucket, err := l.bucket(bucketIndex)
	if err != nil {
		return &ValidationError{Err: err, ProductID: productID, Bucket: bucketIndex, Quantity: qty}
	}
	li, ok := l.index[productID]
	if !ok {
		return &ValidationError{Err: ErrUnknownProduct, ProductID: productID, Bucket: bucketIndex, Quantity: qty}
	}
	line := &l.lines[li]

	if qty <= 0 {
		return &ValidationError{Err: ErrInvalidQuantity, ProductID: productID, Bucket: bucketIndex, Quantity: qty, Available: line.RemainingQuantity}
	}
	if qty > line.RemainingQuantity {
		return &ValidationError{Err: ErrInsufficientRemaining, ProductID: productID, Bucket: bucketIndex, Quantity: qty, Available: line.RemainingQuantity}
	}

	line.RemainingQuantity -= qty

	if _, bi, found := lo.FindIndexOf(bucket.Lines, func(bl BucketLine) bool { return bl.ProductID == productID }); found {
		reprice(&bucket.Lines[bi], *line, bucket.Lines[bi].Quantity+qty)
		return nil
	}

	bl := BucketLine{
		ProductID:   line.ProductID,
		ProductName: line.ProductName,
		UnitPrice:   line.UnitPrice,
		TaxRate:     line.TaxRate,
	}
	reprice(&bl, *line, qty)
	bucket.Lines = append(bucket.Lines, bl)
	return nil
}

// RemoveQuantity returns qty units of productID from the bucket at
// bucketIndex to its source line. A bucket line that reaches zero is dropped.
func (l *Ledger) RemoveQuantity(bucketIndex int, productID string, qty int64) error {
	bucket, err := l.bucket(bucketIndex)
	if err != nil {
		return &ValidationError{Err: err, ProductID: productID, Bucket: bucketIndex, Quantity: qty}
	}
	li, ok := l.index[productID]
	if !ok {
		return &ValidationError{Err: ErrUnknownProduct, ProductID: productID, Bucket: bucketIndex, Quantity: qty}
	}

	_, bi, found := lo.FindIndexOf(bucket.Lines, func(bl BucketLine) bool { return bl.ProductID == productID })
	var held int64
	if found {
		held = bucket.Lines[bi].Quantity
	}
	if qty <= 0 || qty > held {
		return &ValidationError{Err: ErrInvalidQuantity, ProductID: productID, Bucket: bucketIndex, Quantity: qty, Available: held}
	}

	line := &l.lines[li]
	line.RemainingQuantity += qty

	if held == qty {
		bucket.Lines = slices.Delete(bucket.Lines, bi, bi+1)
		return nil
	}
	reprice(&bucket.Lines[bi], *line, held-qty)
	return nil
}

// AddBucket appends an empty bucket. An empty label gets a generated one.
func (l *Ledger) AddBucket(label string) (SplitBucket, error) {
	if label == "" {
		label = l.nextLabel()
	} else if l.hasLabel(label) {
		return SplitBucket{}, &ValidationError{Err: fmt.Errorf("%w: %q", ErrDuplicateBucket, label), Bucket: len(l.buckets)}
	}
	b := SplitBucket{Label: label, TableID: l.order.TableID}
	l.buckets = append(l.buckets, b)
	return b, nil
}

// RemoveBucket returns everything in the bucket at index to the source lines
// and deletes it. The last remaining bucket cannot be removed.
func (l *Ledger) RemoveBucket(index int) error {
	bucket, err := l.bucket(index)
	if err != nil {
		return &ValidationError{Err: err, Bucket: index}
	}
	if len(l.buckets) == 1 {
		return &ValidationError{Err: ErrLastBucket, Bucket: index}
	}

	for _, bl := range bucket.Lines {
		l.lines[l.index[bl.ProductID]].RemainingQuantity += bl.Quantity
	}
	l.buckets = slices.Delete(l.buckets, index, index+1)
	return nil
}

func (l *Ledger) bucket(index int) (*SplitBucket, error) {
	if index < 0 || index >= len(l.buckets) {
		return nil, ErrBucketNotFound
	}
	return &l.buckets[index], nil
}

func (l *Ledger) hasLabel(label string) bool {
	return lo.ContainsBy(l.buckets, func(b SplitBucket) bool { return b.Label == label })
}

func (l *Ledger) nextLabel() string {
	for {
		l.labelSeq++
		label := fmt.Sprintf("%s %d", l.labelPrefix, l.labelSeq)
		if !l.hasLabel(label) {
			return label
		}
	}
}

// reprice sets a bucket line to qty units, deriving discount and total from
// the source line so the result does not depend on the order of moves.
// Merging into an existing line recomputes floor(lineDiscount*qty/totalQty)
// rather than adding a floored per-unit share to the old discount.
func reprice(bl *BucketLine, line MergedLine, qty int64) {
	bl.Quantity = qty
	bl.Total = line.UnitPrice * qty
	bl.Discount = money.Prorate(line.LineDiscount, qty, line.TotalQuantity)
}
