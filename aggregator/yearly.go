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

type YearlyResult struct {
	Year           int              `json:"year"`
	MonthsCount    int              `json:"monthsCount"`
	PageViews      int64            `json:"pageViews"`
	UniqueVisitors int              `json:"uniqueVisitors"`
	Clicks         map[string]int64 `json:"clicks"`
	DeletedCount   int64            `json:"deletedCount"`
	Message        string           `json:"message,omitempty"`
}

// AggregateYear folds the monthly summaries of year into its yearly summary.
func (s *Service) AggregateYear(ctx context.Context, year int) (res *YearlyResult, err error) {
	start := time.Now()
	defer func() { s.track(ScopeYearly, start, err) }()

	if year < 1 {
		return nil, apperrors.Validation(fmt.Sprintf("invalid year %d", year))
	}
	if err := s.preflight(ctx); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"scope": ScopeYearly, "year": year})

	months, err := s.summaries.MonthlyForYear(ctx, year)
	if err != nil {
		return nil, apperrors.Aggregation("load monthly summaries", err)
	}
	if len(months) == 0 {
		log.Info("no monthly summaries to aggregate")
		return &YearlyResult{
			Year:    year,
			Clicks:  map[string]int64{},
			Message: "No monthly summaries to aggregate",
		}, nil
	}

	var existingMonths []models.MonthlySummary
	existing, err := s.summaries.GetYearly(ctx, year)
	switch {
	case err == nil:
		existingMonths = existing.MonthlyStats
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, apperrors.Aggregation("load yearly summary", err)
	}

	summary := yearFromMonths(year, mergeMonthlyStats(existingMonths, months))
	if err := s.summaries.UpsertYearly(ctx, &summary); err != nil {
		return nil, apperrors.Aggregation("save yearly summary", err)
	}

	consumed := make([]int, len(months))
	for i, m := range months {
		consumed[i] = m.Month
	}
	deleted, err := s.summaries.DeleteMonthly(ctx, year, consumed)
	if err != nil {
		return nil, apperrors.Aggregation("delete monthly summaries", err)
	}
	s.folded(ScopeYearly, len(months))

	log.WithFields(logrus.Fields{"months": len(months), "deleted": deleted}).Info("yearly aggregation finished")

	return &YearlyResult{
		Year:           year,
		MonthsCount:    len(months),
		PageViews:      summary.PageViews,
		UniqueVisitors: summary.UniqueVisitors,
		Clicks:         summary.Clicks,
		DeletedCount:   deleted,
	}, nil
}
