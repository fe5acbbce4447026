package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"aurelienallenic/api/apperrors"
	"aurelienallenic/api/models"
	"aurelienallenic/api/store"
)

type MonthlyResult struct {
	Year           int              `json:"year"`
	Month          int              `json:"month"`
	DaysCount      int              `json:"daysCount"`
	PageViews      int64            `json:"pageViews"`
	UniqueVisitors int              `json:"uniqueVisitors"`
	Clicks         map[string]int64 `json:"clicks"`
	DeletedCount   int64            `json:"deletedCount"`
	Message        string           `json:"message,omitempty"`
}

// AggregateMonth folds the daily summaries of year-month into its monthly
// summary and removes the consumed days.
func (s *Service) AggregateMonth(ctx context.Context, year, month int) (res *MonthlyResult, err error) {
	start := time.Now()
	defer func() { s.track(ScopeMonthly, start, err) }()

	if year < 1 || month < 1 || month > 12 {
		return nil, apperrors.Validation(fmt.Sprintf("invalid period %d-%02d", year, month))
	}
	if err := s.preflight(ctx); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"scope": ScopeMonthly, "year": year, "month": month})

	days, err := s.summaries.DailyForMonth(ctx, year, month)
	if err != nil {
		return nil, apperrors.Aggregation("load daily summaries", err)
	}
	if len(days) == 0 {
		log.Info("no daily summaries to aggregate")
		return &MonthlyResult{
			Year:    year,
			Month:   month,
			Clicks:  map[string]int64{},
			Message: "No daily summaries to aggregate",
		}, nil
	}

	var existingDays []models.DailySummary
	existing, err := s.summaries.GetMonthly(ctx, year, month)
	switch {
	case err == nil:
		existingDays = existing.DailyStats
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, apperrors.Aggregation("load monthly summary", err)
	}

	summary := monthFromDays(year, month, mergeDailyStats(existingDays, days))
	if err := s.summaries.UpsertMonthly(ctx, &summary); err != nil {
		return nil, apperrors.Aggregation("save monthly summary", err)
	}

	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Date
	}
	deleted, err := s.summaries.DeleteDaily(ctx, dates)
	if err != nil {
		return nil, apperrors.Aggregation("delete daily summaries", err)
	}
	s.folded(ScopeMonthly, len(days))

	log.WithFields(logrus.Fields{"days": len(days), "deleted": deleted}).Info("monthly aggregation finished")

	return &MonthlyResult{
		Year:           year,
		Month:          month,
		DaysCount:      len(days),
		PageViews:      summary.PageViews,
		UniqueVisitors: summary.UniqueVisitors,
		Clicks:         summary.Clicks,
		DeletedCount:   deleted,
	}, nil
}
