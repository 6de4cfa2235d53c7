package storage

import (
	"errors"
	"time"
)

// Order statuses
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

var (
	// ErrOrderNotFound is returned when an order referenced by a write does not exist
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderClosed is returned when splitting an order that is no longer open
	ErrOrderClosed = errors.New("order is not open")
	// ErrStaleOrder is returned when the order changed after the split was prepared
	ErrStaleOrder = errors.New("order was modified since the split was prepared")
	// ErrUnbalancedSplit is returned when a split's parts do not add up to the original
	ErrUnbalancedSplit = errors.New("unbalanced split")
)

// Order is a persisted order with aggregate money figures in whole units
type Order struct {
	ID               string      `json:"id"`
	ParentOrderID    string      `json:"parent_order_id,omitempty"`
	TableID          string      `json:"table_id"`
	CustomerName     string      `json:"customer_name"`
	CustomerCount    int         `json:"customer_count"`
	Subtotal         int64       `json:"subtotal"`
	Tax              int64       `json:"tax"`
	Discount         int64       `json:"discount"`
	Total            int64       `json:"total"`
	PriceIncludesTax bool        `json:"price_includes_tax"`
	Status           string      `json:"status"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	Items            []OrderItem `json:"items,omitempty"`
}

// OrderItem is a stored line item. Total, Discount and TaxRate are kept as
// decimal strings the way the point of sale writes them.
type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	Total          string `json:"total"`
	Discount       string `json:"discount"`
	TaxRate        string `json:"tax_rate"`
	PriceBeforeTax int64  `json:"price_before_tax"`
}

// SplitCommit is everything needed to apply one split
type SplitCommit struct {
	OriginalOrderID string
	// ExpectedVersion is the order version the split was computed from
	ExpectedVersion int64
	// NewOrders are created as children of the original; IDs are assigned when empty
	NewOrders []*Order
	// RemainderItems replace the original order's items
	RemainderItems []OrderItem

	Subtotal int64
	Tax      int64
	Discount int64
	Total    int64

	// Payload is the JSON split result kept for audit
	Payload string
}

// SplitRecord is an audit row for a committed split
type SplitRecord struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	NewOrderIDs []string  `json:"new_order_ids"`
	BucketCount int       `json:"bucket_count"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}
