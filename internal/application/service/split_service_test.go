package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/splitter"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/config"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/events"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/tablesplit-backend/internal/observability"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []events.SplitCommittedEvent
	err    error
}

func (p *fakePublisher) PublishSplitCommitted(_ context.Context, ev events.SplitCommittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedOrder stores the three-bowl order: 3 x 100,000 at 10% tax on top.
func seedOrder(repo *storage.MockRepository) {
	repo.AddOrder(&storage.Order{
		ID:            "order-1",
		TableID:       "T4",
		CustomerName:  "Lan",
		CustomerCount: 3,
		Subtotal:      300000,
		Tax:           30000,
		Total:         330000,
		Items: []storage.OrderItem{
			{ProductID: "P", ProductName: "Pho", Quantity: 2, UnitPrice: 100000, Total: "200000", TaxRate: "10"},
			{ProductID: "P", ProductName: "Pho", Quantity: 1, UnitPrice: 100000, Total: "100000", TaxRate: "10"},
		},
	})
}

func newTestService(t *testing.T) (*SplitService, *storage.MockRepository, *fakePublisher, *observability.Metrics) {
	t.Helper()
	repo := storage.NewMockRepository()
	seedOrder(repo)
	pub := &fakePublisher{}
	metrics := observability.NewMetrics()
	svc := NewSplitService(repo, pub, metrics, testLogger(), config.SessionsConfig{IdleTimeout: time.Minute})
	return svc, repo, pub, metrics
}

func TestStartSession(t *testing.T) {
	svc, _, _, metrics := newTestService(t)

	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "order-1", view.OrderID)
	assert.Equal(t, int64(1), view.OrderVersion)
	require.Len(t, view.Lines, 1, "raw lines of one product are merged")
	assert.Equal(t, int64(3), view.Lines[0].TotalQuantity)
	assert.Equal(t, int64(30000), view.Lines[0].AllocatedTax)
	require.Len(t, view.Buckets, 1)
	assert.Equal(t, "Split 1", view.Buckets[0].Label)

	assert.Equal(t, 1, svc.ActiveSessions())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsActive))
}

func TestStartSession_Errors(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)

	repo.AddOrder(&storage.Order{ID: "closed", Status: storage.StatusClosed})
	_, err = svc.StartSession(ctx, "closed")
	assert.ErrorIs(t, err, storage.ErrOrderClosed)

	repo.AddOrder(&storage.Order{ID: "bad", Items: []storage.OrderItem{
		{ProductID: "X", Quantity: 1, UnitPrice: 10, Total: "ten"},
	}})
	_, err = svc.StartSession(ctx, "bad")
	assert.Error(t, err)

	repo.GetOrderErr = errors.New("db down")
	_, err = svc.StartSession(ctx, "order-1")
	assert.ErrorContains(t, err, "db down")

	assert.Equal(t, 0, svc.ActiveSessions())
}

func TestStartSession_CustomLabelPrefix(t *testing.T) {
	repo := storage.NewMockRepository()
	seedOrder(repo)
	svc := NewSplitService(repo, nil, nil, testLogger(), config.SessionsConfig{DefaultBucketLabel: "Guest"})

	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "Guest 1", view.Buckets[0].Label)
}

func TestLedgerOperations(t *testing.T) {
	svc, _, _, metrics := newTestService(t)
	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)
	id := view.ID

	view, err = svc.AddBucket(id, "")
	require.NoError(t, err)
	require.Len(t, view.Buckets, 2)
	assert.Equal(t, "Split 2", view.Buckets[1].Label)

	view, err = svc.MoveQuantity(id, "P", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Lines[0].RemainingQuantity)
	require.Len(t, view.Buckets[1].Lines, 1)
	assert.Equal(t, int64(2), view.Buckets[1].Lines[0].Quantity)

	_, err = svc.MoveQuantity(id, "P", 0, 5)
	assert.ErrorIs(t, err, splitter.ErrInsufficientRemaining)

	view, err = svc.RemoveQuantity(id, "P", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Lines[0].RemainingQuantity)

	view, err = svc.RemoveBucket(id, 1)
	require.NoError(t, err)
	assert.Len(t, view.Buckets, 1)
	assert.Equal(t, int64(3), view.Lines[0].RemainingQuantity)

	_, err = svc.RemoveBucket(id, 0)
	assert.ErrorIs(t, err, splitter.ErrLastBucket)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LedgerOps.WithLabelValues(OpMove, observability.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LedgerOps.WithLabelValues(OpMove, observability.ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LedgerOps.WithLabelValues(OpRemoveBucket, observability.ResultRejected)))
}

func TestUnknownSession(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.MoveQuantity("nope", "P", 0, 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Preview("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Finalize(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Cancel("nope"), ErrSessionNotFound)
}

func TestPreview_DoesNotCommit(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	_, err = svc.Preview(view.ID)
	assert.ErrorIs(t, err, splitter.ErrEmptySplit)

	_, err = svc.MoveQuantity(view.ID, "P", 0, 1)
	require.NoError(t, err)

	result, err := svc.Preview(view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(110000), result.Buckets[0].Total)
	assert.Equal(t, 0, repo.CommitSplitCalls)
	assert.Equal(t, 1, svc.ActiveSessions())
}

func TestFinalize_CommitsAndPublishes(t *testing.T) {
	svc, repo, pub, metrics := newTestService(t)
	ctx := context.Background()
	view, err := svc.StartSession(ctx, "order-1")
	require.NoError(t, err)
	_, err = svc.MoveQuantity(view.ID, "P", 0, 1)
	require.NoError(t, err)

	fr, err := svc.Finalize(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, fr.NewOrderIDs, 1)
	assert.Equal(t, "order-1", fr.Record.OrderID)

	commit := repo.LastCommit
	require.NotNil(t, commit)
	assert.Equal(t, int64(1), commit.ExpectedVersion)
	assert.Equal(t, int64(200000), commit.Subtotal)
	assert.Equal(t, int64(20000), commit.Tax)
	assert.Equal(t, int64(220000), commit.Total)
	require.Len(t, commit.RemainderItems, 1)
	assert.Equal(t, int64(2), commit.RemainderItems[0].Quantity)
	assert.Equal(t, "200000", commit.RemainderItems[0].Total)
	assert.Equal(t, "10", commit.RemainderItems[0].TaxRate)

	require.Len(t, commit.NewOrders, 1)
	child := commit.NewOrders[0]
	assert.Equal(t, "T4", child.TableID)
	assert.Equal(t, int64(110000), child.Total)
	require.Len(t, child.Items, 1)
	assert.Equal(t, int64(100000), child.Items[0].PriceBeforeTax)

	var payload splitter.SplitResult
	require.NoError(t, json.Unmarshal([]byte(commit.Payload), &payload))
	assert.Equal(t, "order-1", payload.OriginalOrderID)

	// The order was rewritten to the remainder
	order, err := repo.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.Version)
	assert.Equal(t, int64(220000), order.Total)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, events.EventSplitCommitted, ev.Type)
	assert.Equal(t, "T4", ev.TableID)
	assert.Equal(t, fr.NewOrderIDs, ev.NewOrderIDs)
	require.Len(t, ev.Buckets, 1)
	assert.Equal(t, fr.NewOrderIDs[0], ev.Buckets[0].OrderID)
	assert.Equal(t, "110000", ev.Buckets[0].Total)
	assert.Equal(t, "220000", ev.Remainder.Total)

	// The session is gone
	_, err = svc.GetSession(view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finalizations.WithLabelValues(observability.ResultOK)))
}

func TestFinalize_CommitFailureKeepsSession(t *testing.T) {
	svc, repo, pub, metrics := newTestService(t)
	ctx := context.Background()
	view, err := svc.StartSession(ctx, "order-1")
	require.NoError(t, err)
	_, err = svc.MoveQuantity(view.ID, "P", 0, 1)
	require.NoError(t, err)

	repo.CommitSplitErr = errors.New("disk full")
	_, err = svc.Finalize(ctx, view.ID)
	assert.ErrorIs(t, err, splitter.ErrCommitFailure)
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, pub.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finalizations.WithLabelValues(observability.ResultError)))

	after, err := svc.GetSession(view.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Lines[0].TotalQuantity-1, after.Lines[0].RemainingQuantity, "ledger untouched")

	// Retry succeeds once the store recovers
	repo.CommitSplitErr = nil
	_, err = svc.Finalize(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.CommitSplitCalls)
}

func TestFinalize_StaleOrder(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	view, err := svc.StartSession(ctx, "order-1")
	require.NoError(t, err)
	_, err = svc.MoveQuantity(view.ID, "P", 0, 1)
	require.NoError(t, err)

	repo.SetOrderVersion("order-1", 5)

	_, err = svc.Finalize(ctx, view.ID)
	assert.ErrorIs(t, err, storage.ErrStaleOrder)
	assert.ErrorIs(t, err, splitter.ErrCommitFailure)
}

func TestFinalize_PublishFailureDoesNotFail(t *testing.T) {
	svc, _, pub, metrics := newTestService(t)
	pub.err = errors.New("broker down")
	ctx := context.Background()

	view, err := svc.StartSession(ctx, "order-1")
	require.NoError(t, err)
	_, err = svc.MoveQuantity(view.ID, "P", 0, 3)
	require.NoError(t, err)

	fr, err := svc.Finalize(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, fr.Split.Remainder.Items)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventPublishFailures))
}

func TestFinalize_EmptySplitRejected(t *testing.T) {
	svc, repo, _, metrics := newTestService(t)
	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), view.ID)
	assert.ErrorIs(t, err, splitter.ErrEmptySplit)
	assert.Equal(t, 0, repo.CommitSplitCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Finalizations.WithLabelValues(observability.ResultRejected)))
}

func TestCancel(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(view.ID))
	assert.Equal(t, 0, svc.ActiveSessions())
	assert.Equal(t, 0, repo.CommitSplitCalls)
	assert.ErrorIs(t, svc.Cancel(view.ID), ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.StartSession(ctx, "order-1")
	require.NoError(t, err)
	second, err := svc.StartSession(ctx, "order-1")
	require.NoError(t, err)

	views := svc.ListSessions()
	require.Len(t, views, 2)
	ids := []string{views[0].ID, views[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
}

func TestCleanupIdleSessions(t *testing.T) {
	svc, _, _, metrics := newTestService(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	idle, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	clock = clock.Add(50 * time.Second)
	fresh, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	clock = clock.Add(20 * time.Second)
	assert.Equal(t, 1, svc.CleanupIdleSessions())

	_, err = svc.GetSession(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.GetSession(fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsExpired))
}

func TestBackgroundCleanup_StartStop(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.StartBackgroundCleanup(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	svc.StopBackgroundCleanup()

	// Stopping twice is harmless
	svc.StopBackgroundCleanup()
}

func TestConcurrentOperationsOnOneSession(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	view, err := svc.StartSession(context.Background(), "order-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	moved := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.MoveQuantity(view.ID, "P", 0, 1); err == nil {
				mu.Lock()
				moved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, moved, "only the available quantity can be moved")
	after, err := svc.GetSession(view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Lines[0].RemainingQuantity)
}

// Run with -race: a session must not be read by StartSession once other
// callers can reach it through the session map.
func TestStartSession_ConcurrentWithOperationsOnNewSessions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, v := range svc.ListSessions() {
				_, _ = svc.MoveQuantity(v.ID, "P", 0, 1)
				_, _ = svc.RemoveQuantity(v.ID, "P", 0, 1)
			}
		}
	}()

	for i := 0; i < 50; i++ {
		_, err := svc.StartSession(ctx, "order-1")
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 50, svc.ActiveSessions())
}
