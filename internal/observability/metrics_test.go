package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Sessions(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsExpired))
}

func TestMetrics_LedgerOps(t *testing.T) {
	m := NewMetrics()

	m.ObserveLedgerOp("move", nil)
	m.ObserveLedgerOp("move", errors.New("insufficient"))
	m.ObserveLedgerOp("move", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerOps.WithLabelValues("move", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerOps.WithLabelValues("move", ResultRejected)))
}

func TestMetrics_FinalizeAndCommit(t *testing.T) {
	m := NewMetrics()

	m.ObserveFinalize(ResultOK)
	m.ObserveFinalize(ResultError)
	m.ObserveCommit(time.Now().Add(-10 * time.Millisecond))
	m.PublishFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Finalizations.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Finalizations.WithLabelValues(ResultError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommitDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionEnded(false)
		m.ObserveLedgerOp("move", nil)
		m.ObserveFinalize(ResultOK)
		m.ObserveCommit(time.Now())
		m.PublishFailed()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SessionStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tablesplit_sessions_started_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
