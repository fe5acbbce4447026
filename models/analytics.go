// api/models/analytics.go
package models

import (
	"time"
)

// EventType is the kind of interaction a tracking call reports.
type EventType string

const (
	EventPageView    EventType = "PAGE_VIEW"
	EventClick       EventType = "CLICK"
	EventSectionView EventType = "SECTION_VIEW"
	EventDuration    EventType = "DURATION"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPageView, EventClick, EventSectionView, EventDuration:
		return true
	default:
		return false
	}
}

// RawEvent is a single pseudonymized visitor interaction. It is never
// updated; the daily aggregator deletes it once folded.
type RawEvent struct {
	ID        string         `json:"id"`
	VisitorID string         `json:"visitorId"`
	Type      EventType      `json:"type"`
	Path      string         `json:"path"`
	Label     *string        `json:"label"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TrackRequest is the body accepted by POST /track.
type TrackRequest struct {
	Type     EventType      `json:"type"`
	Path     string         `json:"path"`
	Label    *string        `json:"label"`
	Metadata map[string]any `json:"metadata"`
}

// DailySummary is the folded view of one UTC calendar day.
// UniqueVisitors always equals len(VisitorIDs).
type DailySummary struct {
	Date           string           `json:"date"`
	PageViews      int64            `json:"pageViews"`
	Clicks         map[string]int64 `json:"clicks"`
	UniqueVisitors int              `json:"uniqueVisitors"`
	VisitorIDs     []string         `json:"visitorIds"`
}

// MonthlySummary embeds the daily summaries it was built from, ordered by date.
type MonthlySummary struct {
	Year           int              `json:"year"`
	Month          int              `json:"month"`
	PageViews      int64            `json:"pageViews"`
	Clicks         map[string]int64 `json:"clicks"`
	UniqueVisitors int              `json:"uniqueVisitors"`
	VisitorIDs     []string         `json:"visitorIds"`
	DailyStats     []DailySummary   `json:"dailyStats"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// YearlySummary embeds the monthly summaries it was built from, ordered by month.
type YearlySummary struct {
	Year           int              `json:"year"`
	PageViews      int64            `json:"pageViews"`
	Clicks         map[string]int64 `json:"clicks"`
	UniqueVisitors int              `json:"uniqueVisitors"`
	VisitorIDs     []string         `json:"visitorIds"`
	MonthlyStats   []MonthlySummary `json:"monthlyStats"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// EventFilter narrows a raw event listing.
type EventFilter struct {
	Type  EventType
	Limit int
}

// EventTypeStat is a per-type count over the raw events currently stored.
type EventTypeStat struct {
	Type           EventType `json:"type"`
	Count          int64     `json:"count"`
	UniqueVisitors int64     `json:"uniqueVisitors"`
}

// ClickStat is a click label and how many raw CLICK events carry it.
type ClickStat struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// DailyRange bounds a daily summary listing. Empty dates are open ends.
type DailyRange struct {
	StartDate string
	EndDate   string
	Limit     int
}
