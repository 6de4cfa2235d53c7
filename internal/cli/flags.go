package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// MoveSpec is one --move flag: PRODUCT:BUCKET:QTY
type MoveSpec struct {
	ProductID   string
	BucketIndex int
	Quantity    int64
}

// ParseMoveSpec parses PRODUCT:BUCKET:QTY. The product ID may itself contain
// colons; bucket and quantity are the last two fields.
func ParseMoveSpec(s string) (MoveSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return MoveSpec{}, fmt.Errorf("move %q: want PRODUCT:BUCKET:QTY", s)
	}
	n := len(parts)

	product := strings.Join(parts[:n-2], ":")
	if product == "" {
		return MoveSpec{}, fmt.Errorf("move %q: empty product", s)
	}
	bucket, err := strconv.Atoi(parts[n-2])
	if err != nil || bucket < 0 {
		return MoveSpec{}, fmt.Errorf("move %q: bucket must be a non-negative integer", s)
	}
	qty, err := strconv.ParseInt(parts[n-1], 10, 64)
	if err != nil {
		return MoveSpec{}, fmt.Errorf("move %q: quantity must be an integer", s)
	}
	return MoveSpec{ProductID: product, BucketIndex: bucket, Quantity: qty}, nil
}

// ParseMoveSpecs parses every --move value
func ParseMoveSpecs(values []string) ([]MoveSpec, error) {
	specs := make([]MoveSpec, 0, len(values))
	for _, v := range values {
		spec, err := ParseMoveSpec(v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
