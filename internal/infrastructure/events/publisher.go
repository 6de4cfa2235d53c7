// Package events announces committed splits to downstream consumers
// (kitchen and table displays) over RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventSplitCommitted is the type of the event published after a split commit
const EventSplitCommitted = "order.split.committed"

// SplitCommittedEvent is the JSON body published after a successful commit
type SplitCommittedEvent struct {
	Type            string          `json:"type"`
	OriginalOrderID string          `json:"original_order_id"`
	TableID         string          `json:"table_id,omitempty"`
	NewOrderIDs     []string        `json:"new_order_ids"`
	Buckets         []BucketSummary `json:"buckets"`
	Remainder       Totals          `json:"remainder"`
	CommittedAt     time.Time       `json:"committed_at"`
}

// BucketSummary describes one new order created by the split
type BucketSummary struct {
	OrderID string `json:"order_id"`
	Name    string `json:"name"`
	Totals
}

// Totals are formatted money amounts
type Totals struct {
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Tax      string `json:"tax"`
	Total    string `json:"total"`
}

// Publisher sends split events
type Publisher interface {
	PublishSplitCommitted(ctx context.Context, ev SplitCommittedEvent) error
	Close() error
}

// RoutingKey returns the topic routing key for a table, e.g. orders.split.t12
func RoutingKey(tableID string) string {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		tableID = "none"
	}
	// Dots would add topic segments
	return "orders.split." + strings.ReplaceAll(tableID, ".", "_")
}

// Encode fills in the event type and marshals the event
func Encode(ev SplitCommittedEvent) ([]byte, error) {
	if ev.Type == "" {
		ev.Type = EventSplitCommitted
	}
	if ev.CommittedAt.IsZero() {
		ev.CommittedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode split event: %w", err)
	}
	return body, nil
}

// NopPublisher discards events. Used when events are disabled.
type NopPublisher struct{}

// PublishSplitCommitted does nothing
func (NopPublisher) PublishSplitCommitted(context.Context, SplitCommittedEvent) error { return nil }

// Close does nothing
func (NopPublisher) Close() error { return nil }
