// Package service holds the application services that sit between the HTTP
// API and the domain engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
	"github.com/eshaffer321/tablesplit-backend/internal/domain/splitter"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/config"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/events"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/tablesplit-backend/internal/observability"
)

// ErrSessionNotFound is returned for an unknown, finalized, cancelled or expired session
var ErrSessionNotFound = errors.New("split session not found")

// Ledger operation names used for metrics and logs
const (
	OpMove         = "move"
	OpRemove       = "remove"
	OpAddBucket    = "add_bucket"
	OpRemoveBucket = "remove_bucket"
)

// SessionView is a point-in-time copy of a split session
type SessionView struct {
	ID           string                 `json:"id"`
	OrderID      string                 `json:"order_id"`
	OrderVersion int64                  `json:"order_version"`
	Lines        []splitter.MergedLine  `json:"lines"`
	Buckets      []splitter.SplitBucket `json:"buckets"`
	CreatedAt    time.Time              `json:"created_at"`
	LastUsed     time.Time              `json:"last_used"`
}

// FinalizeResult is the outcome of a committed split
type FinalizeResult struct {
	Split       *splitter.SplitResult
	Record      *storage.SplitRecord
	NewOrderIDs []string
}

// session is one in-memory split. All fields are guarded by mu.
type session struct {
	mu        sync.Mutex
	id        string
	ledger    *splitter.Ledger
	createdAt time.Time
	lastUsed  time.Time
	closed    bool
}

func (s *session) view() *SessionView {
	order := s.ledger.Order()
	return &SessionView{
		ID:           s.id,
		OrderID:      order.ID,
		OrderVersion: order.Version,
		Lines:        s.ledger.Lines(),
		Buckets:      s.ledger.Buckets(),
		CreatedAt:    s.createdAt,
		LastUsed:     s.lastUsed,
	}
}

// SplitService manages split sessions: it loads orders, applies ledger
// operations, commits finalized splits and announces them.
type SplitService struct {
	repo      storage.Repository
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger

	idleTimeout time.Duration
	labelPrefix string
	now         func() time.Time

	sessions      map[string]*session
	sessionsMutex sync.RWMutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewSplitService creates a new split service. A nil publisher disables
// events; nil metrics disables recording.
func NewSplitService(
	repo storage.Repository,
	publisher events.Publisher,
	metrics *observability.Metrics,
	logger *slog.Logger,
	cfg config.SessionsConfig,
) *SplitService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultIdleTimeout
	}
	return &SplitService{
		repo:        repo,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		idleTimeout: cfg.IdleTimeout,
		labelPrefix: cfg.DefaultBucketLabel,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

// StartSession loads an open order and opens a split session over it
func (s *SplitService) StartSession(ctx context.Context, orderID string) (*SessionView, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrOrderNotFound, orderID)
	}
	if order.Status != storage.StatusOpen {
		return nil, fmt.Errorf("%w: %s is %s", storage.ErrOrderClosed, orderID, order.Status)
	}

	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items of %s: %w", orderID, err)
	}

	ledger, err := splitter.NewSession(sourceOrder(order), rawLines(items), s.labelPrefix)
	if err != nil {
		return nil, err
	}

	products := len(ledger.Lines())
	now := s.now()
	sess := &session{
		id:        uuid.New().String(),
		ledger:    ledger,
		createdAt: now,
		lastUsed:  now,
	}

	s.sessionsMutex.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMutex.Unlock()

	s.metrics.SessionStarted()
	s.logger.Info("split session started",
		"session_id", sess.id,
		"order_id", orderID,
		"products", products,
		"order_version", order.Version,
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// GetSession returns the current state of a session
func (s *SplitService) GetSession(id string) (*SessionView, error) {
	var view *SessionView
	err := s.withSession(id, func(sess *session) error {
		view = sess.view()
		return nil
	})
	return view, err
}

// MoveQuantity moves qty units of a product into a bucket
func (s *SplitService) MoveQuantity(id, productID string, bucketIndex int, qty int64) (*SessionView, error) {
	return s.mutate(id, OpMove, func(l *splitter.Ledger) error {
		return l.MoveQuantity(productID, bucketIndex, qty)
	}, "product_id", productID, "bucket", bucketIndex, "qty", qty)
}

// RemoveQuantity returns qty units of a product from a bucket to the order
func (s *SplitService) RemoveQuantity(id, productID string, bucketIndex int, qty int64) (*SessionView, error) {
	return s.mutate(id, OpRemove, func(l *splitter.Ledger) error {
		return l.RemoveQuantity(bucketIndex, productID, qty)
	}, "product_id", productID, "bucket", bucketIndex, "qty", qty)
}

// AddBucket appends a bucket; an empty label gets a generated one
func (s *SplitService) AddBucket(id, label string) (*SessionView, error) {
	return s.mutate(id, OpAddBucket, func(l *splitter.Ledger) error {
		_, err := l.AddBucket(label)
		return err
	}, "label", label)
}

// RemoveBucket deletes a bucket and returns its contents to the order
func (s *SplitService) RemoveBucket(id string, bucketIndex int) (*SessionView, error) {
	return s.mutate(id, OpRemoveBucket, func(l *splitter.Ledger) error {
		return l.RemoveBucket(bucketIndex)
	}, "bucket", bucketIndex)
}

func (s *SplitService) mutate(id, op string, fn func(*splitter.Ledger) error, attrs ...any) (*SessionView, error) {
	var view *SessionView
	err := s.withSession(id, func(sess *session) error {
		err := fn(sess.ledger)
		s.metrics.ObserveLedgerOp(op, err)
		if err != nil {
			s.logger.Warn("ledger operation rejected",
				append([]any{"session_id", id, "op", op, "error", err}, attrs...)...)
			return err
		}
		s.logger.Debug("ledger operation applied", append([]any{"session_id", id, "op", op}, attrs...)...)
		view = sess.view()
		return nil
	})
	return view, err
}

// Preview computes the split payload without committing it
func (s *SplitService) Preview(id string) (*splitter.SplitResult, error) {
	var result *splitter.SplitResult
	err := s.withSession(id, func(sess *session) error {
		var err error
		result, err = sess.ledger.Finalize()
		return err
	})
	return result, err
}

// Finalize computes the split, commits it and publishes a split event. On a
// failed commit the session is kept unchanged so the call can be retried.
func (s *SplitService) Finalize(ctx context.Context, id string) (*FinalizeResult, error) {
	var out *FinalizeResult
	err := s.withSession(id, func(sess *session) error {
		result, err := sess.ledger.Finalize()
		if err != nil {
			if splitter.IsValidation(err) {
				s.metrics.ObserveFinalize(observability.ResultRejected)
				s.logger.Warn("finalize rejected", "session_id", id, "error", err)
			} else {
				s.metrics.ObserveFinalize(observability.ResultError)
				s.logger.Error("finalize failed", "session_id", id, "error", err)
			}
			return err
		}

		commit, err := buildCommit(result, sess.ledger.Order())
		if err != nil {
			s.metrics.ObserveFinalize(observability.ResultError)
			return err
		}

		start := time.Now()
		record, err := s.repo.CommitSplit(ctx, commit)
		s.metrics.ObserveCommit(start)
		if err != nil {
			s.metrics.ObserveFinalize(observability.ResultError)
			s.logger.Error("split commit failed",
				"session_id", id,
				"order_id", result.OriginalOrderID,
				"error", err,
			)
			return fmt.Errorf("%w: %w", splitter.ErrCommitFailure, err)
		}

		sess.closed = true
		s.sessionsMutex.Lock()
		delete(s.sessions, id)
		s.sessionsMutex.Unlock()

		s.metrics.ObserveFinalize(observability.ResultOK)
		s.metrics.SessionEnded(false)

		newIDs := make([]string, len(commit.NewOrders))
		for i, o := range commit.NewOrders {
			newIDs[i] = o.ID
		}
		out = &FinalizeResult{Split: result, Record: record, NewOrderIDs: newIDs}

		s.logger.Info("split finalized",
			"session_id", id,
			"order_id", result.OriginalOrderID,
			"buckets", len(result.Buckets),
			"remainder_items", len(result.Remainder.Items),
		)

		s.publish(ctx, sess.ledger.Order(), out)
		return nil
	})
	return out, err
}

// publish announces a committed split. Failures never undo the commit.
func (s *SplitService) publish(ctx context.Context, order splitter.SourceOrder, fr *FinalizeResult) {
	ev := events.SplitCommittedEvent{
		Type:            events.EventSplitCommitted,
		OriginalOrderID: order.ID,
		TableID:         order.TableID,
		NewOrderIDs:     fr.NewOrderIDs,
		Remainder:       eventTotals(fr.Split.Remainder.Totals),
		CommittedAt:     s.now().UTC(),
	}
	for i, b := range fr.Split.Buckets {
		ev.Buckets = append(ev.Buckets, events.BucketSummary{
			OrderID: fr.NewOrderIDs[i],
			Name:    b.Name,
			Totals:  eventTotals(b.Totals),
		})
	}

	// The commit is done; a cancelled request must not drop the event
	if err := s.publisher.PublishSplitCommitted(context.WithoutCancel(ctx), ev); err != nil {
		s.metrics.PublishFailed()
		s.logger.Warn("failed to publish split event", "order_id", order.ID, "error", err)
	}
}

// Cancel discards a session without committing anything
func (s *SplitService) Cancel(id string) error {
	return s.withSession(id, func(sess *session) error {
		sess.closed = true
		s.sessionsMutex.Lock()
		delete(s.sessions, id)
		s.sessionsMutex.Unlock()

		s.metrics.SessionEnded(false)
		s.logger.Info("split session cancelled", "session_id", id)
		return nil
	})
}

// ListSessions returns views of all open sessions, oldest first
func (s *SplitService) ListSessions() []*SessionView {
	s.sessionsMutex.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.sessionsMutex.RUnlock()

	views := make([]*SessionView, 0, len(all))
	for _, sess := range all {
		sess.mu.Lock()
		if !sess.closed {
			views = append(views, sess.view())
		}
		sess.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	return views
}

// withSession runs fn with the session locked. Operations on one session are
// serialized; different sessions proceed in parallel.
func (s *SplitService) withSession(id string, fn func(*session) error) error {
	s.sessionsMutex.RLock()
	sess, ok := s.sessions[id]
	s.sessionsMutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Finalized or expired while we waited for the lock
	if sess.closed {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.lastUsed = s.now()
	return fn(sess)
}

// CleanupIdleSessions drops sessions unused for longer than the idle timeout.
// Sessions busy with an operation are skipped. Returns the number removed.
func (s *SplitService) CleanupIdleSessions() int {
	cutoff := s.now().Add(-s.idleTimeout)

	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.lastUsed.Before(cutoff) {
			sess.closed = true
			delete(s.sessions, id)
			removed++
			s.metrics.SessionEnded(true)
			s.logger.Info("split session expired", "session_id", id, "idle_since", sess.lastUsed)
		}
		sess.mu.Unlock()
	}
	return removed
}

// ActiveSessions returns the number of sessions held in memory
func (s *SplitService) ActiveSessions() int {
	s.sessionsMutex.RLock()
	defer s.sessionsMutex.RUnlock()
	return len(s.sessions)
}

// StartBackgroundCleanup starts a goroutine that expires idle sessions every
// checkInterval. Call StopBackgroundCleanup to stop it.
func (s *SplitService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		s.logger.Info("background session cleanup started",
			"check_interval", checkInterval,
			"idle_timeout", s.idleTimeout,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("background session cleanup stopped")
				return
			case <-ticker.C:
				if n := s.CleanupIdleSessions(); n > 0 {
					s.logger.Debug("expired idle sessions", "count", n)
				}
			}
		}
	}()
}

// StopBackgroundCleanup stops the background cleanup goroutine.
// This method blocks until the cleanup goroutine has fully stopped.
func (s *SplitService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}
	close(s.cleanupStop)
	<-s.cleanupDone
	s.cleanupStop = nil
}

func sourceOrder(o *storage.Order) splitter.SourceOrder {
	return splitter.SourceOrder{
		ID:               o.ID,
		Subtotal:         o.Subtotal,
		Tax:              o.Tax,
		Discount:         o.Discount,
		Total:            o.Total,
		PriceIncludesTax: o.PriceIncludesTax,
		TableID:          o.TableID,
		CustomerCount:    o.CustomerCount,
		CustomerName:     o.CustomerName,
		Version:          o.Version,
	}
}

func rawLines(items []storage.OrderItem) []splitter.RawLine {
	raw := make([]splitter.RawLine, len(items))
	for i, item := range items {
		raw[i] = splitter.RawLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			Discount:    item.Discount,
			TaxRate:     item.TaxRate,
		}
	}
	return raw
}

// buildCommit converts a split result into the storage commit
func buildCommit(result *splitter.SplitResult, order splitter.SourceOrder) (*storage.SplitCommit, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode split payload: %w", err)
	}

	commit := &storage.SplitCommit{
		OriginalOrderID: result.OriginalOrderID,
		ExpectedVersion: order.Version,
		NewOrders:       make([]*storage.Order, 0, len(result.Buckets)),
		RemainderItems:  orderItems(result.Remainder.Items),
		Subtotal:        result.Remainder.Subtotal,
		Tax:             result.Remainder.Tax,
		Discount:        result.Remainder.Discount,
		Total:           result.Remainder.Total,
		Payload:         string(payload),
	}
	for _, b := range result.Buckets {
		commit.NewOrders = append(commit.NewOrders, &storage.Order{
			TableID:          b.TableID,
			CustomerName:     b.CustomerName,
			CustomerCount:    b.CustomerCount,
			Subtotal:         b.Subtotal,
			Tax:              b.Tax,
			Discount:         b.Discount,
			Total:            b.Total,
			PriceIncludesTax: b.PriceIncludeTax,
			Items:            orderItems(b.Items),
		})
	}
	return commit, nil
}

func orderItems(items []splitter.PayloadItem) []storage.OrderItem {
	out := make([]storage.OrderItem, len(items))
	for i, item := range items {
		out[i] = storage.OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Total:          money.Format(item.Total),
			Discount:       money.Format(item.Discount),
			TaxRate:        item.TaxRate.String(),
			PriceBeforeTax: item.PriceBeforeTax,
		}
	}
	return out
}

func eventTotals(t splitter.Totals) events.Totals {
	return events.Totals{
		Subtotal: money.Format(t.Subtotal),
		Discount: money.Format(t.Discount),
		Tax:      money.Format(t.Tax),
		Total:    money.Format(t.Total),
	}
}
