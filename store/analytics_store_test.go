package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelienallenic/api/models"
)

func newMock(t *testing.T) (*AnalyticsStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAnalyticsStore(db), mock
}

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "visitor_id", "type", "path", "label", "metadata", "created_at"})
}

func TestInsertEvent(t *testing.T) {
	s, mock := newMock(t)
	label := "nav_linkedin"
	at := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	event := &models.RawEvent{
		ID:        "5f0c3a64-8f44-4b43-9b44-1e0f6f0d2a11",
		VisitorID: "abcdef0123456789",
		Type:      models.EventClick,
		Path:      "/",
		Label:     &label,
		CreatedAt: at,
	}

	mock.ExpectExec("INSERT INTO analytics_events").
		WithArgs(event.ID, event.VisitorID, "CLICK", "/", label, []byte("{}"), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.InsertEvent(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("INSERT INTO analytics_events").WillReturnError(errors.New("disk full"))

	err := s.InsertEvent(context.Background(), &models.RawEvent{ID: "x", Type: models.EventPageView})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert analytics event")
}

func TestEventsInWindow(t *testing.T) {
	s, mock := newMock(t)
	from := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_at >= $1 AND created_at < $2")).
		WithArgs(from, to).
		WillReturnRows(eventRows().
			AddRow("e1", "v1", "PAGE_VIEW", "/", nil, []byte(`{}`), from.Add(time.Hour)).
			AddRow("e2", "v1", "CLICK", "/", "nav_github", []byte(`{"x":1}`), from.Add(2*time.Hour)))

	events, err := s.EventsInWindow(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, models.EventPageView, events[0].Type)
	assert.Nil(t, events[0].Label)
	assert.Empty(t, events[0].Metadata)
	require.NotNil(t, events[1].Label)
	assert.Equal(t, "nav_github", *events[1].Label)
	assert.Equal(t, float64(1), events[1].Metadata["x"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllEvents(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM analytics_events ORDER BY created_at ASC").
		WillReturnRows(eventRows())

	events, err := s.AllEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEventsScopedToIDs(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_events WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.DeleteEvents(context.Background(), []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEventsEmptyIsNoop(t *testing.T) {
	s, mock := newMock(t)

	n, err := s.DeleteEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsWithTypeFilter(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE type = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("CLICK", 100).
		WillReturnRows(eventRows())

	_, err := s.ListEvents(context.Background(), models.EventFilter{Type: models.EventClick, Limit: 100})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventTypeStatsAndTopClicks(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT type, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"type", "count", "unique"}).
			AddRow("CLICK", 3, 2).
			AddRow("PAGE_VIEW", 5, 4))
	mock.ExpectQuery("SELECT label, COUNT").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"label", "click_count"}).
			AddRow("nav_linkedin", 2).
			AddRow("nav_github", 1))

	stats, err := s.EventTypeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.EventTypeStat{
		{Type: models.EventClick, Count: 3, UniqueVisitors: 2},
		{Type: models.EventPageView, Count: 5, UniqueVisitors: 4},
	}, stats)

	clicks, err := s.TopClicks(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []models.ClickStat{{Label: "nav_linkedin", Count: 2}, {Label: "nav_github", Count: 1}}, clicks)
	assert.NoError(t, mock.ExpectationsWereMet())
}
