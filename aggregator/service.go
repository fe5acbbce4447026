// Package aggregator folds raw analytics events into daily summaries, daily
// summaries into monthly ones and monthly summaries into yearly ones. Every
// level merges additively into an existing summary and then deletes exactly
// the records it consumed, so levels can run concurrently with each other.
package aggregator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"aurelienallenic/api/apperrors"
	"aurelienallenic/api/store"
)

const (
	ScopeDaily   = "daily"
	ScopeMonthly = "monthly"
	ScopeYearly  = "yearly"
)

// HealthChecker is a pool that can be pinged before a run.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Recorder receives run outcomes. metrics.Collector implements it.
type Recorder interface {
	ObserveAggregation(scope, status string, elapsed time.Duration)
	AddFolded(scope string, n int)
}

type Service struct {
	events    store.EventStore
	summaries store.SummaryStore
	checks    []HealthChecker
	recorder  Recorder
	log       *logrus.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithHealthChecks pings the given pools before every run.
func WithHealthChecks(checks ...HealthChecker) Option {
	return func(s *Service) { s.checks = append(s.checks, checks...) }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(events store.EventStore, summaries store.SummaryStore, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		events:    events,
		summaries: summaries,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock in UTC. Handlers use it to derive default periods.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

func (s *Service) preflight(ctx context.Context) error {
	for _, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			return apperrors.Aggregation("storage unavailable", err)
		}
	}
	return nil
}

// track records duration and outcome of one run.
func (s *Service) track(scope string, start time.Time, err error) {
	if s.recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.recorder.ObserveAggregation(scope, status, time.Since(start))
}

func (s *Service) folded(scope string, n int) {
	if s.recorder != nil && n > 0 {
		s.recorder.AddFolded(scope, n)
	}
}
