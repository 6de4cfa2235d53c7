package dto

import (
	"time"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/splitter"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	ActiveSessions int    `json:"active_sessions"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID               string         `json:"id"`
	ParentOrderID    string         `json:"parent_order_id,omitempty"`
	TableID          string         `json:"table_id"`
	CustomerName     string         `json:"customer_name,omitempty"`
	CustomerCount    int            `json:"customer_count"`
	Subtotal         int64          `json:"subtotal"`
	Tax              int64          `json:"tax"`
	Discount         int64          `json:"discount"`
	Total            int64          `json:"total"`
	PriceIncludesTax bool           `json:"price_includes_tax"`
	Status           string         `json:"status"`
	Version          int64          `json:"version"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	Items            []ItemResponse `json:"items,omitempty"`
}

// ItemResponse represents a line item within an order.
type ItemResponse struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	Total          string `json:"total"`
	Discount       string `json:"discount,omitempty"`
	TaxRate        string `json:"tax_rate,omitempty"`
	PriceBeforeTax int64  `json:"price_before_tax,omitempty"`
}

// OrderListResponse is returned when listing orders.
type OrderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	TotalCount int             `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

// SplitRecordResponse is one committed split of an order.
type SplitRecordResponse struct {
	ID          string   `json:"id"`
	OrderID     string   `json:"order_id"`
	NewOrderIDs []string `json:"new_order_ids"`
	BucketCount int      `json:"bucket_count"`
	CreatedAt   string   `json:"created_at"`
}

// SplitListResponse is returned when listing an order's splits.
type SplitListResponse struct {
	Splits []SplitRecordResponse `json:"splits"`
	Count  int                   `json:"count"`
}

// SessionResponse is the state of a split session.
type SessionResponse struct {
	ID           string                 `json:"id"`
	OrderID      string                 `json:"order_id"`
	OrderVersion int64                  `json:"order_version"`
	Lines        []splitter.MergedLine  `json:"lines"`
	Buckets      []splitter.SplitBucket `json:"buckets"`
	CreatedAt    string                 `json:"created_at"`
	LastUsed     string                 `json:"last_used"`
}

// SessionListResponse is returned when listing open sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

// PreviewResponse is the split that would be committed.
type PreviewResponse struct {
	SessionID string                `json:"session_id"`
	Split     *splitter.SplitResult `json:"split"`
}

// FinalizeResponse is returned after a split is committed.
type FinalizeResponse struct {
	SplitID     string                `json:"split_id"`
	OrderID     string                `json:"order_id"`
	NewOrderIDs []string              `json:"new_order_ids"`
	Split       *splitter.SplitResult `json:"split"`
}
