package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/validator"
)

// CommitSplit creates the new orders, replaces the original order's items
// with the remainder, updates its totals and records an audit row, all in one
// transaction. The original must be open and still at ExpectedVersion.
func (s *Storage) CommitSplit(ctx context.Context, commit *SplitCommit) (*SplitRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		version  int64
		status   string
		original validator.Amounts
	)
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT version, status, subtotal, discount, tax, total FROM orders WHERE id = ?`),
		commit.OriginalOrderID,
	).Scan(&version, &status, &original.Subtotal, &original.Discount, &original.Tax, &original.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, commit.OriginalOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order %s: %w", commit.OriginalOrderID, err)
	}
	if status != StatusOpen {
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderClosed, commit.OriginalOrderID, status)
	}
	if version != commit.ExpectedVersion {
		return nil, fmt.Errorf("%w: %s at version %d, split prepared at %d",
			ErrStaleOrder, commit.OriginalOrderID, version, commit.ExpectedVersion)
	}
	if err := checkBalanced(original, commit); err != nil {
		return nil, err
	}

	newIDs := make([]string, 0, len(commit.NewOrders))
	for _, order := range commit.NewOrders {
		order.ParentOrderID = commit.OriginalOrderID
		if err := s.insertOrder(ctx, tx, order); err != nil {
			return nil, err
		}
		if err := s.insertItems(ctx, tx, order.ID, order.Items); err != nil {
			return nil, err
		}
		newIDs = append(newIDs, order.ID)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM order_items WHERE order_id = ?`),
		commit.OriginalOrderID,
	); err != nil {
		return nil, fmt.Errorf("failed to clear items of %s: %w", commit.OriginalOrderID, err)
	}
	if err := s.insertItems(ctx, tx, commit.OriginalOrderID, commit.RemainderItems); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE orders
		SET subtotal = ?, tax = ?, discount = ?, total = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`),
		commit.Subtotal,
		commit.Tax,
		commit.Discount,
		commit.Total,
		now,
		commit.OriginalOrderID,
		commit.ExpectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", commit.OriginalOrderID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStaleOrder, commit.OriginalOrderID)
	}

	idsJSON, err := json.Marshal(newIDs)
	if err != nil {
		return nil, err
	}
	record := &SplitRecord{
		ID:          uuid.New().String(),
		OrderID:     commit.OriginalOrderID,
		NewOrderIDs: newIDs,
		BucketCount: len(newIDs),
		Payload:     commit.Payload,
		CreatedAt:   now,
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO order_splits (id, order_id, bucket_count, new_order_ids, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`),
		record.ID,
		record.OrderID,
		record.BucketCount,
		string(idsJSON),
		record.Payload,
		record.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record split of %s: %w", commit.OriginalOrderID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit split of %s: %w", commit.OriginalOrderID, err)
	}

	s.logger.Info("split committed",
		"order_id", commit.OriginalOrderID,
		"new_orders", len(newIDs),
		"remainder_items", len(commit.RemainderItems))
	return record, nil
}

// ListSplits returns the committed splits of an order, oldest first
func (s *Storage) ListSplits(ctx context.Context, orderID string) ([]SplitRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, order_id, bucket_count, new_order_ids, payload, created_at
		FROM order_splits
		WHERE order_id = ?
		ORDER BY created_at ASC, id
	`), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits for %s: %w", orderID, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]SplitRecord, 0)
	for rows.Next() {
		var (
			record  SplitRecord
			idsJSON string
		)
		if err := rows.Scan(
			&record.ID,
			&record.OrderID,
			&record.BucketCount,
			&idsJSON,
			&record.Payload,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(idsJSON), &record.NewOrderIDs); err != nil {
			return nil, fmt.Errorf("corrupt new_order_ids on split %s: %w", record.ID, err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// checkBalanced rejects a commit whose new orders and remainder do not add up
// to the original order's stored figures
func checkBalanced(original validator.Amounts, commit *SplitCommit) error {
	parts := make([]validator.Amounts, 0, len(commit.NewOrders)+1)
	for _, o := range commit.NewOrders {
		parts = append(parts, validator.Amounts{Subtotal: o.Subtotal, Discount: o.Discount, Tax: o.Tax, Total: o.Total})
	}
	parts = append(parts, validator.Amounts{
		Subtotal: commit.Subtotal,
		Discount: commit.Discount,
		Tax:      commit.Tax,
		Total:    commit.Total,
	})

	if result := validator.ValidateConservation(original, parts...); !result.Valid {
		return fmt.Errorf("%w: %s: %s", ErrUnbalancedSplit, commit.OriginalOrderID, result.Reason)
	}
	return nil
}
