// Package allocator distributes an integer amount across weighted items.
//
// Every item except the last receives its proportional share, floored:
//
//	share = floor(amount * weight / total_weight)
//
// The last item receives whatever is left, so the shares always sum to the
// amount exactly. The same rule serves order tax and order discount.
package allocator

import (
	"errors"

	"github.com/samber/lo"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
)

var (
	// ErrNoItems is returned when there is nothing to allocate to.
	ErrNoItems = errors.New("no items to allocate")
	// ErrNegativeWeight is returned when an item carries a negative weight.
	ErrNegativeWeight = errors.New("item weight cannot be negative")
)

// Item is one allocation target.
type Item struct {
	Key    string
	Weight int64
}

// Allocation is the share assigned to a single item.
type Allocation struct {
	Key    string
	Weight int64
	Share  int64
}

// Result contains the allocation results.
type Result struct {
	Allocations    []Allocation
	TotalWeight    int64
	TotalAllocated int64
}

// Shares returns the allocated shares in item order.
func (r *Result) Shares() []int64 {
	return lo.Map(r.Allocations, func(a Allocation, _ int) int64 { return a.Share })
}

// Allocate distributes amount across items proportionally to their weights.
// When the total weight is zero every share is zero, whatever the amount.
func Allocate(items []Item, amount int64) (*Result, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if _, neg := lo.Find(items, func(it Item) bool { return it.Weight < 0 }); neg {
		return nil, ErrNegativeWeight
	}

	totalWeight := lo.SumBy(items, func(it Item) int64 { return it.Weight })
	allocations := make([]Allocation, len(items))

	if totalWeight == 0 {
		for i, item := range items {
			allocations[i] = Allocation{Key: item.Key, Weight: item.Weight}
		}
		return &Result{Allocations: allocations}, nil
	}

	var allocated int64
	last := len(items) - 1
	for i, item := range items[:last] {
		share := money.Prorate(amount, item.Weight, totalWeight)
		allocations[i] = Allocation{Key: item.Key, Weight: item.Weight, Share: share}
		allocated += share
	}
	allocations[last] = Allocation{
		Key:    items[last].Key,
		Weight: items[last].Weight,
		Share:  amount - allocated,
	}

	return &Result{
		Allocations:    allocations,
		TotalWeight:    totalWeight,
		TotalAllocated: amount,
	}, nil
}
