package splitter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidQuantity is returned for a non-positive quantity, or a remove
	// larger than the bucket line holds.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInsufficientRemaining is returned when a move asks for more than is
	// left on the source line.
	ErrInsufficientRemaining = errors.New("insufficient remaining quantity")
	// ErrEmptySplit is returned by Finalize when no bucket holds anything.
	ErrEmptySplit = errors.New("nothing to split: every bucket is empty")
	// ErrCommitFailure wraps an error from the persistence collaborator.
	ErrCommitFailure = errors.New("split commit failed")
	// ErrArithmeticInconsistency means reconciled totals do not add back up to
	// the source order. It indicates a bug, not bad input.
	ErrArithmeticInconsistency = errors.New("split totals do not reconcile with source order")
	// ErrUnknownProduct is returned when a product is not part of the order.
	ErrUnknownProduct = errors.New("product not in order")
	// ErrBucketNotFound is returned for an out-of-range bucket index.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrLastBucket is returned when removing the only bucket left.
	ErrLastBucket = errors.New("cannot remove the last bucket")
	// ErrMixedUnitPrice is returned when lines of one product carry different
	// unit prices.
	ErrMixedUnitPrice = errors.New("product has more than one unit price")
	// ErrDuplicateBucket is returned when a bucket label is already taken.
	ErrDuplicateBucket = errors.New("bucket label already in use")
)

// ValidationError describes a rejected ledger operation. No state was changed.
type ValidationError struct {
	Err       error
	ProductID string
	Bucket    int
	Quantity  int64
	Available int64
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.ProductID != "" {
		fmt.Fprintf(&b, ": product=%s", e.ProductID)
	}
	fmt.Fprintf(&b, " bucket=%d quantity=%d", e.Bucket, e.Quantity)
	if errors.Is(e.Err, ErrInsufficientRemaining) || errors.Is(e.Err, ErrInvalidQuantity) {
		fmt.Fprintf(&b, " available=%d", e.Available)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a rejected user operation rather than a
// system failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrEmptySplit)
}
