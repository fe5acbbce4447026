package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"aurelienallenic/api/models"
)

// SummaryPostgresStore persists daily, monthly and yearly roll-ups. Nested
// dailyStats and monthlyStats are stored as JSONB documents.
type SummaryPostgresStore struct {
	db *sql.DB
}

func NewSummaryStore(db *sql.DB) *SummaryPostgresStore {
	return &SummaryPostgresStore{db: db}
}

// --- daily ---

const dailyColumns = `date, page_views, clicks, unique_visitors, visitor_ids`

func (s *SummaryPostgresStore) GetDaily(ctx context.Context, date string) (*models.DailySummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dailyColumns+` FROM analytics_daily WHERE date = $1`, date)
	summary, err := scanDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary %s: %w", date, err)
	}
	return summary, nil
}

func (s *SummaryPostgresStore) UpsertDaily(ctx context.Context, summary *models.DailySummary) error {
	clicks, err := json.Marshal(nonNilClicks(summary.Clicks))
	if err != nil {
		return fmt.Errorf("failed to encode clicks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics_daily (`+dailyColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (date) DO UPDATE SET
			page_views = EXCLUDED.page_views,
			clicks = EXCLUDED.clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			visitor_ids = EXCLUDED.visitor_ids,
			updated_at = NOW()
	`, summary.Date, summary.PageViews, clicks, summary.UniqueVisitors, pq.Array(nonNilIDs(summary.VisitorIDs)))
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary %s: %w", summary.Date, err)
	}
	return nil
}

func (s *SummaryPostgresStore) DailyForMonth(ctx context.Context, year, month int) ([]models.DailySummary, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dailyColumns+`
		FROM analytics_daily
		WHERE date LIKE $1
		ORDER BY date ASC
	`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries for %s: %w", strings.TrimSuffix(prefix, "-"), err)
	}
	return scanDailyRows(rows)
}

func (s *SummaryPostgresStore) DeleteDaily(ctx context.Context, dates []string) (int64, error) {
	if len(dates) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM analytics_daily WHERE date = ANY($1)`, pq.Array(dates))
	if err != nil {
		return 0, fmt.Errorf("failed to delete daily summaries: %w", err)
	}
	return res.RowsAffected()
}

func (s *SummaryPostgresStore) ListDaily(ctx context.Context, r models.DailyRange) ([]models.DailySummary, error) {
	var (
		conds []string
		args  []any
	)
	if r.StartDate != "" {
		args = append(args, r.StartDate)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if r.EndDate != "" {
		args = append(args, r.EndDate)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := `SELECT ` + dailyColumns + ` FROM analytics_daily`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, r.Limit)
	query += fmt.Sprintf(` ORDER BY date DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily summaries: %w", err)
	}
	return scanDailyRows(rows)
}

// --- monthly ---

const monthlyColumns = `year, month, page_views, clicks, unique_visitors, visitor_ids, daily_stats, created_at, updated_at`

func (s *SummaryPostgresStore) GetMonthly(ctx context.Context, year, month int) (*models.MonthlySummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monthlyColumns+` FROM analytics_monthly WHERE year = $1 AND month = $2`, year, month)
	summary, err := scanMonthly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly summary %04d-%02d: %w", year, month, err)
	}
	return summary, nil
}

func (s *SummaryPostgresStore) UpsertMonthly(ctx context.Context, summary *models.MonthlySummary) error {
	clicks, err := json.Marshal(nonNilClicks(summary.Clicks))
	if err != nil {
		return fmt.Errorf("failed to encode clicks: %w", err)
	}
	dailyStats, err := json.Marshal(nonNilDaily(summary.DailyStats))
	if err != nil {
		return fmt.Errorf("failed to encode daily stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO analytics_monthly (year, month, page_views, clicks, unique_visitors, visitor_ids, daily_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (year, month) DO UPDATE SET
			page_views = EXCLUDED.page_views,
			clicks = EXCLUDED.clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			visitor_ids = EXCLUDED.visitor_ids,
			daily_stats = EXCLUDED.daily_stats,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, summary.Year, summary.Month, summary.PageViews, clicks, summary.UniqueVisitors,
		pq.Array(nonNilIDs(summary.VisitorIDs)), dailyStats,
	).Scan(&summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert monthly summary %04d-%02d: %w", summary.Year, summary.Month, err)
	}
	return nil
}

func (s *SummaryPostgresStore) MonthlyForYear(ctx context.Context, year int) ([]models.MonthlySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+monthlyColumns+`
		FROM analytics_monthly
		WHERE year = $1
		ORDER BY month ASC
	`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly summaries for %d: %w", year, err)
	}
	return scanMonthlyRows(rows)
}

func (s *SummaryPostgresStore) DeleteMonthly(ctx context.Context, year int, months []int) (int64, error) {
	if len(months) == 0 {
		return 0, nil
	}
	monthArgs := make([]int64, len(months))
	for i, m := range months {
		monthArgs[i] = int64(m)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM analytics_monthly WHERE year = $1 AND month = ANY($2)`, year, pq.Array(monthArgs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete monthly summaries for %d: %w", year, err)
	}
	return res.RowsAffected()
}

func (s *SummaryPostgresStore) ListMonthly(ctx context.Context, year int) ([]models.MonthlySummary, error) {
	query := `SELECT ` + monthlyColumns + ` FROM analytics_monthly`
	var args []any
	if year != 0 {
		query += ` WHERE year = $1`
		args = append(args, year)
	}
	query += ` ORDER BY year DESC, month DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly summaries: %w", err)
	}
	return scanMonthlyRows(rows)
}

// --- yearly ---

const yearlyColumns = `year, page_views, clicks, unique_visitors, visitor_ids, monthly_stats, created_at, updated_at`

func (s *SummaryPostgresStore) GetYearly(ctx context.Context, year int) (*models.YearlySummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+yearlyColumns+` FROM analytics_yearly WHERE year = $1`, year)
	summary, err := scanYearly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get yearly summary %d: %w", year, err)
	}
	return summary, nil
}

func (s *SummaryPostgresStore) UpsertYearly(ctx context.Context, summary *models.YearlySummary) error {
	clicks, err := json.Marshal(nonNilClicks(summary.Clicks))
	if err != nil {
		return fmt.Errorf("failed to encode clicks: %w", err)
	}
	monthlyStats := summary.MonthlyStats
	if monthlyStats == nil {
		monthlyStats = []models.MonthlySummary{}
	}
	encodedMonths, err := json.Marshal(monthlyStats)
	if err != nil {
		return fmt.Errorf("failed to encode monthly stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO analytics_yearly (year, page_views, clicks, unique_visitors, visitor_ids, monthly_stats)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (year) DO UPDATE SET
			page_views = EXCLUDED.page_views,
			clicks = EXCLUDED.clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			visitor_ids = EXCLUDED.visitor_ids,
			monthly_stats = EXCLUDED.monthly_stats,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, summary.Year, summary.PageViews, clicks, summary.UniqueVisitors,
		pq.Array(nonNilIDs(summary.VisitorIDs)), encodedMonths,
	).Scan(&summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert yearly summary %d: %w", summary.Year, err)
	}
	return nil
}

func (s *SummaryPostgresStore) ListYearly(ctx context.Context) ([]models.YearlySummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+yearlyColumns+` FROM analytics_yearly ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list yearly summaries: %w", err)
	}
	defer rows.Close()

	var out []models.YearlySummary
	for rows.Next() {
		summary, err := scanYearly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan yearly summary: %w", err)
		}
		out = append(out, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating yearly summaries: %w", err)
	}
	return out, nil
}

// --- scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDaily(row rowScanner) (*models.DailySummary, error) {
	var (
		summary models.DailySummary
		clicks  []byte
		ids     pq.StringArray
	)
	if err := row.Scan(&summary.Date, &summary.PageViews, &clicks, &summary.UniqueVisitors, &ids); err != nil {
		return nil, err
	}
	if err := decodeClicks(clicks, &summary.Clicks); err != nil {
		return nil, err
	}
	summary.VisitorIDs = []string(ids)
	return &summary, nil
}

func scanDailyRows(rows *sql.Rows) ([]models.DailySummary, error) {
	defer rows.Close()

	var out []models.DailySummary
	for rows.Next() {
		summary, err := scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary: %w", err)
		}
		out = append(out, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily summaries: %w", err)
	}
	return out, nil
}

func scanMonthly(row rowScanner) (*models.MonthlySummary, error) {
	var (
		summary    models.MonthlySummary
		clicks     []byte
		ids        pq.StringArray
		dailyStats []byte
	)
	err := row.Scan(&summary.Year, &summary.Month, &summary.PageViews, &clicks, &summary.UniqueVisitors,
		&ids, &dailyStats, &summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeClicks(clicks, &summary.Clicks); err != nil {
		return nil, err
	}
	summary.VisitorIDs = []string(ids)
	if len(dailyStats) > 0 {
		if err := json.Unmarshal(dailyStats, &summary.DailyStats); err != nil {
			return nil, fmt.Errorf("failed to decode daily stats: %w", err)
		}
	}
	return &summary, nil
}

func scanMonthlyRows(rows *sql.Rows) ([]models.MonthlySummary, error) {
	defer rows.Close()

	var out []models.MonthlySummary
	for rows.Next() {
		summary, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly summary: %w", err)
		}
		out = append(out, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly summaries: %w", err)
	}
	return out, nil
}

func scanYearly(row rowScanner) (*models.YearlySummary, error) {
	var (
		summary      models.YearlySummary
		clicks       []byte
		ids          pq.StringArray
		monthlyStats []byte
	)
	err := row.Scan(&summary.Year, &summary.PageViews, &clicks, &summary.UniqueVisitors,
		&ids, &monthlyStats, &summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeClicks(clicks, &summary.Clicks); err != nil {
		return nil, err
	}
	summary.VisitorIDs = []string(ids)
	if len(monthlyStats) > 0 {
		if err := json.Unmarshal(monthlyStats, &summary.MonthlyStats); err != nil {
			return nil, fmt.Errorf("failed to decode monthly stats: %w", err)
		}
	}
	return &summary, nil
}

func decodeClicks(raw []byte, dst *map[string]int64) error {
	*dst = map[string]int64{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode clicks: %w", err)
	}
	return nil
}

func nonNilClicks(clicks map[string]int64) map[string]int64 {
	if clicks == nil {
		return map[string]int64{}
	}
	return clicks
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nonNilDaily(days []models.DailySummary) []models.DailySummary {
	if days == nil {
		return []models.DailySummary{}
	}
	return days
}
