package dto

import "errors"

// OrderListParams represents query parameters for listing orders.
type OrderListParams struct {
	TableID       string `json:"table_id"`
	Status        string `json:"status"`
	ParentOrderID string `json:"parent_order_id"`
	Limit         int    `json:"limit"`
	Offset        int    `json:"offset"`
}

// DefaultOrderListParams returns default values for order list params.
func DefaultOrderListParams() OrderListParams {
	return OrderListParams{
		Limit:  50,
		Offset: 0,
	}
}

// AddBucketRequest is the body of POST /api/split-sessions/{sid}/buckets.
// An empty label gets a generated one.
type AddBucketRequest struct {
	Label string `json:"label"`
}

// QuantityRequest is the body of the moves and returns endpoints.
type QuantityRequest struct {
	ProductID   string `json:"product_id"`
	BucketIndex int    `json:"bucket_index"`
	Quantity    int64  `json:"quantity"`
}

// Validate checks the fields the ledger cannot check itself.
func (r QuantityRequest) Validate() error {
	if r.ProductID == "" {
		return errors.New("product_id is required")
	}
	return nil
}
