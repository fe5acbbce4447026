package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelienallenic/api/models"
)

func newSummaryMock(t *testing.T) (*SummaryPostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSummaryStore(db), mock
}

func dailyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"date", "page_views", "clicks", "unique_visitors", "visitor_ids"})
}

func TestGetDailyNotFound(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectQuery("FROM analytics_daily WHERE date").
		WithArgs("2026-02-03").
		WillReturnRows(dailyRows())

	_, err := s.GetDaily(context.Background(), "2026-02-03")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDaily(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectQuery("FROM analytics_daily WHERE date").
		WithArgs("2026-02-03").
		WillReturnRows(dailyRows().AddRow("2026-02-03", 4, []byte(`{"nav_linkedin":2}`), 2, "{v1,v2}"))

	d, err := s.GetDaily(context.Background(), "2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.PageViews)
	assert.Equal(t, map[string]int64{"nav_linkedin": 2}, d.Clicks)
	assert.Equal(t, []string{"v1", "v2"}, d.VisitorIDs)
	assert.Equal(t, 2, d.UniqueVisitors)
}

func TestUpsertDaily(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectExec("INSERT INTO analytics_daily (.+) ON CONFLICT \\(date\\) DO UPDATE").
		WithArgs("2026-02-03", int64(1), []byte(`{"nav_linkedin":1}`), 1, pq.Array([]string{"v1"})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertDaily(context.Background(), &models.DailySummary{
		Date:           "2026-02-03",
		PageViews:      1,
		Clicks:         map[string]int64{"nav_linkedin": 1},
		UniqueVisitors: 1,
		VisitorIDs:     []string{"v1"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyForMonthUsesZeroPaddedPrefix(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE date LIKE $1")).
		WithArgs("2026-01-%").
		WillReturnRows(dailyRows().
			AddRow("2026-01-14", 1, []byte(`{}`), 1, "{v1}").
			AddRow("2026-01-15", 2, []byte(`{}`), 1, "{v2}"))

	days, err := s.DailyForMonth(context.Background(), 2026, 1)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-01-14", days[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDaily(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_daily WHERE date = ANY($1)")).
		WithArgs(pq.Array([]string{"2026-01-14", "2026-01-15"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.DeleteDaily(context.Background(), []string{"2026-01-14", "2026-01-15"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDailyRange(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE date >= $1 AND date <= $2 ORDER BY date DESC LIMIT $3")).
		WithArgs("2026-01-01", "2026-01-31", 30).
		WillReturnRows(dailyRows())

	_, err := s.ListDaily(context.Background(), models.DailyRange{StartDate: "2026-01-01", EndDate: "2026-01-31", Limit: 30})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMonthlyReturnsTimestamps(t *testing.T) {
	s, mock := newSummaryMock(t)
	created := time.Date(2026, 2, 1, 0, 15, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO analytics_monthly (.+) RETURNING created_at, updated_at").
		WithArgs(2026, 1, int64(3), sqlmock.AnyArg(), 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	summary := &models.MonthlySummary{
		Year: 2026, Month: 1, PageViews: 3, UniqueVisitors: 2,
		VisitorIDs: []string{"v1", "v2"},
		DailyStats: []models.DailySummary{{Date: "2026-01-15", PageViews: 3}},
	}
	require.NoError(t, s.UpsertMonthly(context.Background(), summary))
	assert.Equal(t, created, summary.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthlyForYearDecodesDailyStats(t *testing.T) {
	s, mock := newSummaryMock(t)
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM analytics_monthly WHERE year = \\$1 ORDER BY month ASC").
		WithArgs(2026).
		WillReturnRows(sqlmock.NewRows([]string{"year", "month", "page_views", "clicks", "unique_visitors", "visitor_ids", "daily_stats", "created_at", "updated_at"}).
			AddRow(2026, 1, 3, []byte(`{"a":1}`), 1, "{v1}",
				[]byte(`[{"date":"2026-01-15","pageViews":3,"clicks":{"a":1},"uniqueVisitors":1,"visitorIds":["v1"]}]`), ts, ts))

	months, err := s.MonthlyForYear(context.Background(), 2026)
	require.NoError(t, err)
	require.Len(t, months, 1)
	require.Len(t, months[0].DailyStats, 1)
	assert.Equal(t, "2026-01-15", months[0].DailyStats[0].Date)
	assert.Equal(t, int64(3), months[0].DailyStats[0].PageViews)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMonthly(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analytics_monthly WHERE year = $1 AND month = ANY($2)")).
		WithArgs(2026, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.DeleteMonthly(context.Background(), 2026, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMonthlyAllYears(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectQuery("FROM analytics_monthly ORDER BY year DESC, month DESC").
		WillReturnRows(sqlmock.NewRows([]string{"year", "month", "page_views", "clicks", "unique_visitors", "visitor_ids", "daily_stats", "created_at", "updated_at"}))

	months, err := s.ListMonthly(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, months)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetYearlyNotFound(t *testing.T) {
	s, mock := newSummaryMock(t)
	mock.ExpectQuery("FROM analytics_yearly WHERE year").
		WithArgs(2025).
		WillReturnRows(sqlmock.NewRows([]string{"year", "page_views", "clicks", "unique_visitors", "visitor_ids", "monthly_stats", "created_at", "updated_at"}))

	_, err := s.GetYearly(context.Background(), 2025)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertYearly(t *testing.T) {
	s, mock := newSummaryMock(t)
	ts := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO analytics_yearly (.+) ON CONFLICT \\(year\\)").
		WithArgs(2025, int64(10), sqlmock.AnyArg(), 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))

	summary := &models.YearlySummary{Year: 2025, PageViews: 10, UniqueVisitors: 3, VisitorIDs: []string{"a", "b", "c"}}
	require.NoError(t, s.UpsertYearly(context.Background(), summary))
	assert.Equal(t, ts, summary.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListYearlyWrapsScanError(t *testing.T) {
	s, mock := newSummaryMock(t)
	ts := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	mock.ExpectQuery("FROM analytics_yearly ORDER BY year DESC").
		WillReturnRows(sqlmock.NewRows([]string{"year", "page_views", "clicks", "unique_visitors", "visitor_ids", "monthly_stats", "created_at", "updated_at"}).
			AddRow(2025, int64(4), []byte("not-json"), 1, "{a}", []byte("[]"), ts, ts))

	_, err := s.ListYearly(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan yearly summary")
	assert.Contains(t, err.Error(), "failed to decode clicks")
}
