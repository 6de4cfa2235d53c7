package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderColumns = `id, parent_order_id, table_id, customer_name, customer_count,
	subtotal, tax, discount, total, price_includes_tax, status, version, created_at, updated_at`

const itemColumns = `id, order_id, product_id, product_name, quantity, unit_price,
	total, discount, tax_rate, price_before_tax`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	o := &Order{}
	var parent sql.NullString
	err := row.Scan(
		&o.ID,
		&parent,
		&o.TableID,
		&o.CustomerName,
		&o.CustomerCount,
		&o.Subtotal,
		&o.Tax,
		&o.Discount,
		&o.Total,
		&o.PriceIncludesTax,
		&o.Status,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ParentOrderID = parent.String
	return o, nil
}

// GetOrder retrieves an order and its items by ID
func (s *Storage) GetOrder(ctx context.Context, id string) (*Order, error) {
	query := s.rebind(`SELECT ` + orderColumns + ` FROM orders WHERE id = ?`)

	order, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}

	order.Items, err = s.listItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrderItems returns the line items of an order in entry order
func (s *Storage) ListOrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	return s.listItems(ctx, s.db, orderID)
}

func (s *Storage) listItems(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	query := s.rebind(`SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ? ORDER BY position`)

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for order %s: %w", orderID, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Total,
			&item.Discount,
			&item.TaxRate,
			&item.PriceBeforeTax,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ListOrders returns orders matching the filters, newest first
func (s *Storage) ListOrders(ctx context.Context, filters OrderFilters) (*OrderListResult, error) {
	var (
		where []string
		args  []any
	)
	if filters.TableID != "" {
		where = append(where, "table_id = ?")
		args = append(args, filters.TableID)
	}
	if filters.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.ParentOrderID != "" {
		where = append(where, "parent_order_id = ?")
		args = append(args, filters.ParentOrderID)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	result := &OrderListResult{
		Orders: make([]*Order, 0),
		Limit:  filters.limit(),
		Offset: filters.Offset,
	}

	countQuery := s.rebind(`SELECT COUNT(*) FROM orders` + whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.TotalCount); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	query := s.rebind(`SELECT ` + orderColumns + ` FROM orders` + whereClause +
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, query, append(args, result.Limit, result.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result.Orders = append(result.Orders, order)
	}

	return result, rows.Err()
}

// SaveOrder creates an order with its items. Missing IDs are generated.
func (s *Storage) SaveOrder(ctx context.Context, order *Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertOrder(ctx, tx, order); err != nil {
		return err
	}
	if err := s.insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order %s: %w", order.ID, err)
	}
	return nil
}

func (s *Storage) insertOrder(ctx context.Context, q querier, order *Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = StatusOpen
	}
	if order.Version == 0 {
		order.Version = 1
	}
	now := time.Now().UTC().Truncate(time.Second)
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	query := s.rebind(`
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := q.ExecContext(ctx, query,
		order.ID,
		nullString(order.ParentOrderID),
		order.TableID,
		order.CustomerName,
		order.CustomerCount,
		order.Subtotal,
		order.Tax,
		order.Discount,
		order.Total,
		order.PriceIncludesTax,
		order.Status,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}
	return nil
}

func (s *Storage) insertItems(ctx context.Context, q querier, orderID string, items []OrderItem) error {
	query := s.rebind(`
		INSERT INTO order_items (` + itemColumns + `, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.OrderID = orderID

		_, err := q.ExecContext(ctx, query,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.Total,
			item.Discount,
			item.TaxRate,
			item.PriceBeforeTax,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.ProductID, err)
		}
	}
	return nil
}
