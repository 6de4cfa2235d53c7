package storage

import "context"

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	OrderRepository
	SplitRepository
	Close() error
}

// OrderRepository handles orders and their line items
type OrderRepository interface {
	// GetOrder retrieves an order with its items. Returns nil, nil when absent.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// ListOrderItems returns the stored line items of an order in entry order
	ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)

	// ListOrders returns orders matching the given filters with pagination
	ListOrders(ctx context.Context, filters OrderFilters) (*OrderListResult, error)

	// SaveOrder creates an order and its items
	SaveOrder(ctx context.Context, order *Order) error
}

// SplitRepository handles committing splits and their audit trail
type SplitRepository interface {
	// CommitSplit applies a split atomically: new orders, the shrunken
	// original and the audit row are written together or not at all.
	CommitSplit(ctx context.Context, commit *SplitCommit) (*SplitRecord, error)

	// ListSplits returns the committed splits of an order, oldest first
	ListSplits(ctx context.Context, orderID string) ([]SplitRecord, error)
}

// OrderFilters defines filters for listing orders
type OrderFilters struct {
	TableID       string // Filter by table (empty = all)
	Status        string // Filter by status (empty = all)
	ParentOrderID string // Only orders split off this order (empty = all)
	Limit         int    // Max results (0 = default 50)
	Offset        int    // Pagination offset
}

// OrderListResult contains paginated order results
type OrderListResult struct {
	Orders     []*Order `json:"orders"`
	TotalCount int      `json:"total_count"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

const defaultListLimit = 50

func (f OrderFilters) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
