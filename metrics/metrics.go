// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	EventsTracked       *prometheus.CounterVec
	AggregationRuns     *prometheus.CounterVec
	AggregationDuration *prometheus.HistogramVec
	RecordsFolded       *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	BackgroundTasks     *prometheus.CounterVec
}

// New registers every collector on a private registry, plus the Go and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		EventsTracked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_events_tracked_total",
				Help: "Raw analytics events accepted by /track",
			},
			[]string{"type"},
		),
		AggregationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_aggregation_runs_total",
				Help: "Aggregation runs by level and outcome",
			},
			[]string{"level", "status"},
		),
		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_aggregation_duration_seconds",
				Help:    "Aggregation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"level"},
		),
		RecordsFolded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_records_folded_total",
				Help: "Records consumed by aggregation, by level",
			},
			[]string{"level"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		BackgroundTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_background_tasks_total",
				Help: "Background queue tasks by name and outcome",
			},
			[]string{"task", "status"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.EventsTracked,
		c.AggregationRuns,
		c.AggregationDuration,
		c.RecordsFolded,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		c.BackgroundTasks,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveAggregation(scope, status string, elapsed time.Duration) {
	c.AggregationRuns.WithLabelValues(scope, status).Inc()
	c.AggregationDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

func (c *Collector) AddFolded(scope string, n int) {
	c.RecordsFolded.WithLabelValues(scope).Add(float64(n))
}

func (c *Collector) TaskDone(task string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.BackgroundTasks.WithLabelValues(task, status).Inc()
}
