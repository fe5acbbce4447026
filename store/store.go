package store

import (
	"context"
	"errors"
	"time"

	"aurelienallenic/api/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// EventStore holds raw tracking events until the daily aggregator folds them.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.RawEvent) error
	// AllEvents returns every stored event, oldest first.
	AllEvents(ctx context.Context) ([]models.RawEvent, error)
	// EventsInWindow returns events with from <= created_at < to, oldest first.
	EventsInWindow(ctx context.Context, from, to time.Time) ([]models.RawEvent, error)
	// DeleteEvents removes exactly the given ids and reports how many went away.
	DeleteEvents(ctx context.Context, ids []string) (int64, error)

	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.RawEvent, error)
	EventTypeStats(ctx context.Context) ([]models.EventTypeStat, error)
	TopClicks(ctx context.Context, limit int) ([]models.ClickStat, error)
}

type DailyStore interface {
	GetDaily(ctx context.Context, date string) (*models.DailySummary, error)
	UpsertDaily(ctx context.Context, summary *models.DailySummary) error
	// DailyForMonth returns the summaries dated "{year}-{MM}-*", ordered by date.
	DailyForMonth(ctx context.Context, year, month int) ([]models.DailySummary, error)
	DeleteDaily(ctx context.Context, dates []string) (int64, error)
	ListDaily(ctx context.Context, r models.DailyRange) ([]models.DailySummary, error)
}

type MonthlyStore interface {
	GetMonthly(ctx context.Context, year, month int) (*models.MonthlySummary, error)
	UpsertMonthly(ctx context.Context, summary *models.MonthlySummary) error
	// MonthlyForYear returns the summaries of year ordered by month.
	MonthlyForYear(ctx context.Context, year int) ([]models.MonthlySummary, error)
	DeleteMonthly(ctx context.Context, year int, months []int) (int64, error)
	// ListMonthly lists every month of year, or of all years when year is 0.
	ListMonthly(ctx context.Context, year int) ([]models.MonthlySummary, error)
}

type YearlyStore interface {
	GetYearly(ctx context.Context, year int) (*models.YearlySummary, error)
	UpsertYearly(ctx context.Context, summary *models.YearlySummary) error
	ListYearly(ctx context.Context) ([]models.YearlySummary, error)
}

// SummaryStore is the full roll-up persistence used by the aggregator and the read endpoints.
type SummaryStore interface {
	DailyStore
	MonthlyStore
	YearlyStore
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmailOrGoogleID(ctx context.Context, email, googleID string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

type CVRepository interface {
	GetCV(ctx context.Context) (*models.Cv, error)
	UpsertCV(ctx context.Context, cv *models.Cv) error
	DeleteCV(ctx context.Context) error
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context) ([]models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}
