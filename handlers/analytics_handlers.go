// api/handlers/analytics_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"aurelienallenic/api/aggregator"
	"aurelienallenic/api/apperrors"
	"aurelienallenic/api/metrics"
	"aurelienallenic/api/models"
	"aurelienallenic/api/store"
	"aurelienallenic/api/utils"
)

const (
	defaultDailyLimit  = 30
	maxDailyLimit      = 366
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	topClicksLimit     = 10
)

type AnalyticsHandlers struct {
	Events     store.EventStore
	Summaries  store.SummaryStore
	Aggregator *aggregator.Service
	Metrics    *metrics.Collector
	Salt       string
	Log        *logrus.Logger
}

func NewAnalyticsHandlers(events store.EventStore, summaries store.SummaryStore, agg *aggregator.Service, m *metrics.Collector, salt string, log *logrus.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Events:     events,
		Summaries:  summaries,
		Aggregator: agg,
		Metrics:    m,
		Salt:       salt,
		Log:        log,
	}
}

// TrackEvent stores one pseudonymized event. The client IP only feeds the
// visitor hash and is never stored or logged.
func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	var req models.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Type is required"})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event type"})
		return
	}

	userAgent := c.Request.UserAgent()
	if userAgent == "" {
		userAgent = "unknown"
	}
	event := &models.RawEvent{
		ID:        uuid.NewString(),
		VisitorID: utils.VisitorID(c.ClientIP(), userAgent, h.Salt),
		Type:      req.Type,
		Path:      req.Path,
		Label:     req.Label,
		Metadata:  req.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if event.Path == "" {
		event.Path = "/"
	}
	if event.Label != nil && *event.Label == "" {
		event.Label = nil
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Events.InsertEvent(ctx, event); err != nil {
		h.Log.WithError(err).WithField("type", event.Type).Error("TrackEvent: failed to store event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics event"})
		return
	}
	if h.Metrics != nil {
		h.Metrics.EventsTracked.WithLabelValues(string(event.Type)).Inc()
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Aggregate is the admin trigger. Without a date it folds every stored event.
func (h *AnalyticsHandlers) Aggregate(c *gin.Context) {
	var (
		result *aggregator.DailyResult
		err    error
	)
	if date := c.Query("date"); date != "" {
		day, perr := utils.ParseDate(date)
		if perr != nil {
			respondError(c, h.Log, apperrors.Validation(perr.Error()))
			return
		}
		result, err = h.Aggregator.AggregateDay(c.Request.Context(), day)
	} else {
		result, err = h.Aggregator.AggregateAll(c.Request.Context())
	}
	if err != nil {
		respondError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// CronDaily folds one day, yesterday UTC unless ?date= is given.
func (h *AnalyticsHandlers) CronDaily(c *gin.Context) {
	day := utils.Yesterday(h.Aggregator.Now())
	if date := c.Query("date"); date != "" {
		parsed, err := utils.ParseDate(date)
		if err != nil {
			respondError(c, h.Log, apperrors.Validation(err.Error()))
			return
		}
		day = parsed
	}

	result, err := h.Aggregator.AggregateDay(c.Request.Context(), day)
	if err != nil {
		respondError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// CronMonthly folds the previous month unless ?year= and/or ?month= override it.
func (h *AnalyticsHandlers) CronMonthly(c *gin.Context) {
	year, month := utils.PreviousMonth(h.Aggregator.Now())
	if v := c.Query("year"); v != "" {
		y, err := utils.ParseYear(v)
		if err != nil {
			respondError(c, h.Log, apperrors.Validation(err.Error()))
			return
		}
		year = y
	}
	if v := c.Query("month"); v != "" {
		m, err := utils.ParseMonth(v)
		if err != nil {
			respondError(c, h.Log, apperrors.Validation(err.Error()))
			return
		}
		month = m
	}

	result, err := h.Aggregator.AggregateMonth(c.Request.Context(), year, month)
	if err != nil {
		respondError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scope":   aggregator.ScopeMonthly,
		"year":    year,
		"month":   month,
		"result":  result,
	})
}

func (h *AnalyticsHandlers) CronYearly(c *gin.Context) {
	year := utils.PreviousYear(h.Aggregator.Now())
	if v := c.Query("year"); v != "" {
		y, err := utils.ParseYear(v)
		if err != nil {
			respondError(c, h.Log, apperrors.Validation(err.Error()))
			return
		}
		year = y
	}

	result, err := h.Aggregator.AggregateYear(c.Request.Context(), year)
	if err != nil {
		respondError(c, h.Log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scope":   aggregator.ScopeYearly,
		"year":    year,
		"result":  result,
	})
}

func (h *AnalyticsHandlers) GetDaily(c *gin.Context) {
	r := models.DailyRange{StartDate: c.Query("startDate"), EndDate: c.Query("endDate")}
	for _, d := range []string{r.StartDate, r.EndDate} {
		if d != "" && !utils.IsValidDate(d) {
			respondError(c, h.Log, apperrors.Validation("dates must be YYYY-MM-DD"))
			return
		}
	}
	limit, err := utils.ParseLimit(c.Query("limit"), defaultDailyLimit, maxDailyLimit)
	if err != nil {
		respondError(c, h.Log, apperrors.Validation(err.Error()))
		return
	}
	r.Limit = limit

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	days, err := h.Summaries.ListDaily(ctx, r)
	if err != nil {
		respondError(c, h.Log, apperrors.Wrap(http.StatusInternalServerError, "Failed to retrieve daily summaries", err))
		return
	}
	if days == nil {
		days = []models.DailySummary{}
	}
	c.JSON(http.StatusOK, days)
}

// GetMonthly lists the monthly summaries of ?year=, or of every year.
func (h *AnalyticsHandlers) GetMonthly(c *gin.Context) {
	year := 0
	if v := c.Query("year"); v != "" {
		y, err := utils.ParseYear(v)
		if err != nil {
			respondError(c, h.Log, apperrors.Validation(err.Error()))
			return
		}
		year = y
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	months, err := h.Summaries.ListMonthly(ctx, year)
	if err != nil {
		respondError(c, h.Log, apperrors.Wrap(http.StatusInternalServerError, "Failed to retrieve monthly summaries", err))
		return
	}
	if months == nil {
		months = []models.MonthlySummary{}
	}
	c.JSON(http.StatusOK, months)
}

func (h *AnalyticsHandlers) GetYearly(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	years, err := h.Summaries.ListYearly(ctx)
	if err != nil {
		respondError(c, h.Log, apperrors.Wrap(http.StatusInternalServerError, "Failed to retrieve yearly summaries", err))
		return
	}
	if years == nil {
		years = []models.YearlySummary{}
	}
	c.JSON(http.StatusOK, years)
}

// GetOverview reports on the raw events not yet aggregated.
func (h *AnalyticsHandlers) GetOverview(c *gin.Context) {
	filter := models.EventFilter{Type: models.EventType(c.Query("type"))}
	if filter.Type != "" && !filter.Type.Valid() {
		respondError(c, h.Log, apperrors.Validation("Unknown event type"))
		return
	}
	limit, err := utils.ParseLimit(c.Query("limit"), defaultEventsLimit, maxEventsLimit)
	if err != nil {
		respondError(c, h.Log, apperrors.Validation(err.Error()))
		return
	}
	filter.Limit = limit

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var (
		events    []models.RawEvent
		stats     []models.EventTypeStat
		topClicks []models.ClickStat
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		events, err = h.Events.ListEvents(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		stats, err = h.Events.EventTypeStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		topClicks, err = h.Events.TopClicks(gctx, topClicksLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, h.Log, apperrors.Wrap(http.StatusInternalServerError, "Failed to retrieve analytics", err))
		return
	}

	if events == nil {
		events = []models.RawEvent{}
	}
	if stats == nil {
		stats = []models.EventTypeStat{}
	}
	if topClicks == nil {
		topClicks = []models.ClickStat{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "stats": stats, "topClicks": topClicks})
}
