// api/store/analytics_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"aurelienallenic/api/models"
)

const eventColumns = `id, visitor_id, type, path, label, metadata, created_at`

// AnalyticsStore keeps raw events in Postgres.
type AnalyticsStore struct {
	db *sql.DB
}

func NewAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

func (s *AnalyticsStore) InsertEvent(ctx context.Context, event *models.RawEvent) error {
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.VisitorID, string(event.Type), event.Path, event.Label, metadata, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) AllEvents(ctx context.Context) ([]models.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM analytics_events
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics events: %w", err)
	}
	return scanEvents(rows)
}

func (s *AnalyticsStore) EventsInWindow(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM analytics_events
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics events in window: %w", err)
	}
	return scanEvents(rows)
}

func (s *AnalyticsStore) DeleteEvents(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete analytics events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted analytics events: %w", err)
	}
	return n, nil
}

func (s *AnalyticsStore) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.RawEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM analytics_events`
	var args []any
	if filter.Type != "" {
		query += ` WHERE type = $1`
		args = append(args, string(filter.Type))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics events: %w", err)
	}
	return scanEvents(rows)
}

func (s *AnalyticsStore) EventTypeStats(ctx context.Context) ([]models.EventTypeStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COUNT(DISTINCT visitor_id)
		FROM analytics_events
		GROUP BY type
		ORDER BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event type stats: %w", err)
	}
	defer rows.Close()

	var stats []models.EventTypeStat
	for rows.Next() {
		var stat models.EventTypeStat
		if err := rows.Scan(&stat.Type, &stat.Count, &stat.UniqueVisitors); err != nil {
			return nil, fmt.Errorf("failed to scan event type stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event type stats: %w", err)
	}
	return stats, nil
}

func (s *AnalyticsStore) TopClicks(ctx context.Context, limit int) ([]models.ClickStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(*) AS click_count
		FROM analytics_events
		WHERE type = 'CLICK' AND label IS NOT NULL
		GROUP BY label
		ORDER BY click_count DESC, label ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top clicks: %w", err)
	}
	defer rows.Close()

	var clicks []models.ClickStat
	for rows.Next() {
		var click models.ClickStat
		if err := rows.Scan(&click.Label, &click.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top click: %w", err)
		}
		clicks = append(clicks, click)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top clicks: %w", err)
	}
	return clicks, nil
}

func scanEvents(rows *sql.Rows) ([]models.RawEvent, error) {
	defer rows.Close()

	var events []models.RawEvent
	for rows.Next() {
		var (
			event    models.RawEvent
			label    sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&event.ID, &event.VisitorID, &event.Type, &event.Path, &label, &metadata, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		if label.Valid {
			event.Label = &label.String
		}
		if err := unmarshalMetadata(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("event %s: %w", event.ID, err)
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics events: %w", err)
	}
	return events, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event metadata: %w", err)
	}
	return b, nil
}

func unmarshalMetadata(raw []byte, dst *map[string]any) error {
	*dst = map[string]any{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode event metadata: %w", err)
	}
	return nil
}
