package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"aurelienallenic/api/apperrors"
	"aurelienallenic/api/models"
	"aurelienallenic/api/store"
)

// DayDetail describes what one run folded into one date.
type DayDetail struct {
	Date            string `json:"date"`
	EventsProcessed int    `json:"eventsProcessed"`
	PageViews       int64  `json:"pageViews"`
	UniqueVisitors  int    `json:"uniqueVisitors"`
}

type DailyResult struct {
	EventsProcessed int         `json:"eventsProcessed"`
	DaysAggregated  int         `json:"daysAggregated"`
	DeletedCount    int64       `json:"deletedCount"`
	Details         []DayDetail `json:"details"`
	Message         string      `json:"message"`
}

// AggregateAll folds every stored raw event, whatever its date.
func (s *Service) AggregateAll(ctx context.Context) (*DailyResult, error) {
	start := time.Now()
	res, err := s.aggregateDaily(ctx, nil)
	s.track(ScopeDaily, start, err)
	return res, err
}

// AggregateDay folds the raw events created in [day, day+1) UTC.
func (s *Service) AggregateDay(ctx context.Context, day time.Time) (*DailyResult, error) {
	start := time.Now()
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	res, err := s.aggregateDaily(ctx, &d)
	s.track(ScopeDaily, start, err)
	return res, err
}

func (s *Service) aggregateDaily(ctx context.Context, day *time.Time) (*DailyResult, error) {
	if err := s.preflight(ctx); err != nil {
		return nil, err
	}

	fields := logrus.Fields{"scope": ScopeDaily}
	var (
		events []models.RawEvent
		err    error
	)
	if day == nil {
		fields["date"] = "all"
		events, err = s.events.AllEvents(ctx)
	} else {
		fields["date"] = day.Format(dateLayout)
		events, err = s.events.EventsInWindow(ctx, *day, day.AddDate(0, 0, 1))
	}
	if err != nil {
		return nil, apperrors.Aggregation("load raw events", err)
	}

	log := s.log.WithFields(fields)
	if len(events) == 0 {
		log.Info("no raw events to aggregate")
		return &DailyResult{Details: []DayDetail{}, Message: "No events to aggregate"}, nil
	}
	log.WithField("events", len(events)).Info("daily aggregation started")

	dates, groups := groupByDay(events)
	details := make([]DayDetail, 0, len(dates))
	for _, date := range dates {
		incoming := foldDay(date, groups[date])

		merged := incoming
		existing, err := s.summaries.GetDaily(ctx, date)
		switch {
		case err == nil:
			merged = mergeDaily(*existing, incoming)
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, apperrors.Aggregation("load daily summary "+date, err)
		}

		if err := s.summaries.UpsertDaily(ctx, &merged); err != nil {
			return nil, apperrors.Aggregation("save daily summary "+date, err)
		}
		details = append(details, DayDetail{
			Date:            date,
			EventsProcessed: len(groups[date]),
			PageViews:       merged.PageViews,
			UniqueVisitors:  merged.UniqueVisitors,
		})
	}

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	deleted, err := s.events.DeleteEvents(ctx, ids)
	if err != nil {
		return nil, apperrors.Aggregation("delete folded events", err)
	}
	s.folded(ScopeDaily, len(events))

	log.WithFields(logrus.Fields{
		"events":  len(events),
		"days":    len(dates),
		"deleted": deleted,
	}).Info("daily aggregation finished")

	return &DailyResult{
		EventsProcessed: len(events),
		DaysAggregated:  len(dates),
		DeletedCount:    deleted,
		Details:         details,
		Message:         "Aggregation completed successfully",
	}, nil
}
