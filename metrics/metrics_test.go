package metrics

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

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.ObserveAggregation("daily", "success", 20*time.Millisecond)
	c.ObserveAggregation("daily", "success", 10*time.Millisecond)
	c.AddFolded("daily", 7)
	c.TaskDone("archive_message", errors.New("db down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.AggregationRuns.WithLabelValues("daily", "success")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.RecordsFolded.WithLabelValues("daily")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BackgroundTasks.WithLabelValues("archive_message", "error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := New()
	c.EventsTracked.WithLabelValues("PAGE_VIEW").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `portfolio_events_tracked_total{type="PAGE_VIEW"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
