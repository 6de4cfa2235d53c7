package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/validator"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu     sync.Mutex
	orders map[string]*Order
	items  map[string][]OrderItem // Keyed by order_id
	splits map[string][]SplitRecord

	// Hooks for test assertions
	CommitSplitCalls int
	LastCommit       *SplitCommit
	SaveOrderCalled  bool

	// Error injection for testing error paths
	GetOrderErr       error
	ListOrderItemsErr error
	ListOrdersErr     error
	SaveOrderErr      error
	CommitSplitErr    error
	ListSplitsErr     error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		orders: make(map[string]*Order),
		items:  make(map[string][]OrderItem),
		splits: make(map[string][]SplitRecord),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// GetOrder returns a copy of the stored order with its items
func (m *MockRepository) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetOrderErr != nil {
		return nil, m.GetOrderErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	copied.Items = append([]OrderItem(nil), m.items[id]...)
	return &copied, nil
}

// ListOrderItems returns a copy of the order's items
func (m *MockRepository) ListOrderItems(_ context.Context, orderID string) ([]OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListOrderItemsErr != nil {
		return nil, m.ListOrderItemsErr
	}
	return append(make([]OrderItem, 0), m.items[orderID]...), nil
}

// ListOrders filters the in-memory orders, ordered by ID
func (m *MockRepository) ListOrders(_ context.Context, filters OrderFilters) (*OrderListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListOrdersErr != nil {
		return nil, m.ListOrdersErr
	}

	var matched []*Order
	for _, o := range m.orders {
		if filters.TableID != "" && o.TableID != filters.TableID {
			continue
		}
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if filters.ParentOrderID != "" && o.ParentOrderID != filters.ParentOrderID {
			continue
		}
		copied := *o
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	result := &OrderListResult{
		Orders:     make([]*Order, 0),
		TotalCount: len(matched),
		Limit:      filters.limit(),
		Offset:     filters.Offset,
	}
	if filters.Offset < len(matched) {
		end := min(filters.Offset+result.Limit, len(matched))
		result.Orders = append(result.Orders, matched[filters.Offset:end]...)
	}
	return result, nil
}

// SaveOrder stores an order and its items
func (m *MockRepository) SaveOrder(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveOrderCalled = true
	if m.SaveOrderErr != nil {
		return m.SaveOrderErr
	}
	m.storeOrder(order)
	return nil
}

func (m *MockRepository) storeOrder(order *Order) {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = StatusOpen
	}
	if order.Version == 0 {
		order.Version = 1
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	items := make([]OrderItem, len(order.Items))
	for i, item := range order.Items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.OrderID = order.ID
		items[i] = item
	}
	copied := *order
	copied.Items = nil
	m.orders[order.ID] = &copied
	m.items[order.ID] = items
}

// CommitSplit applies the split to the in-memory state with the same checks
// as the SQL store
func (m *MockRepository) CommitSplit(_ context.Context, commit *SplitCommit) (*SplitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CommitSplitCalls++
	m.LastCommit = commit
	if m.CommitSplitErr != nil {
		return nil, m.CommitSplitErr
	}

	original, ok := m.orders[commit.OriginalOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, commit.OriginalOrderID)
	}
	if original.Status != StatusOpen {
		return nil, fmt.Errorf("%w: %s", ErrOrderClosed, commit.OriginalOrderID)
	}
	if original.Version != commit.ExpectedVersion {
		return nil, fmt.Errorf("%w: %s", ErrStaleOrder, commit.OriginalOrderID)
	}
	stored := validator.Amounts{
		Subtotal: original.Subtotal,
		Discount: original.Discount,
		Tax:      original.Tax,
		Total:    original.Total,
	}
	if err := checkBalanced(stored, commit); err != nil {
		return nil, err
	}

	newIDs := make([]string, 0, len(commit.NewOrders))
	for _, order := range commit.NewOrders {
		order.ParentOrderID = commit.OriginalOrderID
		m.storeOrder(order)
		newIDs = append(newIDs, order.ID)
	}

	remainder := make([]OrderItem, len(commit.RemainderItems))
	for i, item := range commit.RemainderItems {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.OrderID = commit.OriginalOrderID
		remainder[i] = item
	}
	m.items[commit.OriginalOrderID] = remainder

	original.Subtotal = commit.Subtotal
	original.Tax = commit.Tax
	original.Discount = commit.Discount
	original.Total = commit.Total
	original.Version++
	original.UpdatedAt = time.Now().UTC()

	record := SplitRecord{
		ID:          uuid.New().String(),
		OrderID:     commit.OriginalOrderID,
		NewOrderIDs: newIDs,
		BucketCount: len(newIDs),
		Payload:     commit.Payload,
		CreatedAt:   original.UpdatedAt,
	}
	m.splits[commit.OriginalOrderID] = append(m.splits[commit.OriginalOrderID], record)
	return &record, nil
}

// ListSplits returns the recorded splits of an order
func (m *MockRepository) ListSplits(_ context.Context, orderID string) ([]SplitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListSplitsErr != nil {
		return nil, m.ListSplitsErr
	}
	return append(make([]SplitRecord, 0), m.splits[orderID]...), nil
}

// AddOrder stores an order directly (test helper)
func (m *MockRepository) AddOrder(order *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeOrder(order)
}

// SetOrderVersion overwrites an order's version to simulate a concurrent edit
func (m *MockRepository) SetOrderVersion(id string, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Version = version
	}
}
