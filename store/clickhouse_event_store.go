package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"aurelienallenic/api/models"
)

// ClickHouseConn is the part of driver.Conn the event store uses.
type ClickHouseConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseEventStore is the raw event backend used when
// ANALYTICS_EVENT_BACKEND=clickhouse. Summaries stay in Postgres.
type ClickHouseEventStore struct {
	conn ClickHouseConn
}

func NewClickHouseEventStore(conn ClickHouseConn) *ClickHouseEventStore {
	return &ClickHouseEventStore{conn: conn}
}

const chEventColumns = `event_id, visitor_id, event_type, path, label, metadata, created_at`

func (s *ClickHouseEventStore) InsertEvent(ctx context.Context, event *models.RawEvent) error {
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO analytics_events (`+chEventColumns+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	if err := batch.Append(
		event.ID,
		event.VisitorID,
		string(event.Type),
		event.Path,
		event.Label,
		string(metadata),
		event.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to append event %s to batch: %w", event.ID, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) AllEvents(ctx context.Context) ([]models.RawEvent, error) {
	return s.queryEvents(ctx, `
		SELECT `+chEventColumns+`
		FROM analytics_events
		ORDER BY created_at ASC
	`)
}

func (s *ClickHouseEventStore) EventsInWindow(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	return s.queryEvents(ctx, `
		SELECT `+chEventColumns+`
		FROM analytics_events
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`, from.UTC(), to.UTC())
}

// DeleteEvents counts the matching rows first because lightweight deletes do
// not report affected rows.
func (s *ClickHouseEventStore) DeleteEvents(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM analytics_events WHERE event_id IN (?)`, ids).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events to delete: %w", err)
	}
	if err := s.conn.Exec(ctx, `DELETE FROM analytics_events WHERE event_id IN (?)`, ids); err != nil {
		return 0, fmt.Errorf("failed to delete analytics events: %w", err)
	}
	return int64(count), nil
}

func (s *ClickHouseEventStore) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.RawEvent, error) {
	query := `SELECT ` + chEventColumns + ` FROM analytics_events`
	var args []any
	if filter.Type != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, uint64(filter.Limit))
	return s.queryEvents(ctx, query, args...)
}

func (s *ClickHouseEventStore) EventTypeStats(ctx context.Context) ([]models.EventTypeStat, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_type, count(), uniqExact(visitor_id)
		FROM analytics_events
		GROUP BY event_type
		ORDER BY event_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query event type stats: %w", err)
	}
	defer rows.Close()

	var stats []models.EventTypeStat
	for rows.Next() {
		var (
			eventType      string
			count, uniques uint64
		)
		if err := rows.Scan(&eventType, &count, &uniques); err != nil {
			return nil, fmt.Errorf("failed to scan event type stat: %w", err)
		}
		stats = append(stats, models.EventTypeStat{
			Type:           models.EventType(eventType),
			Count:          int64(count),
			UniqueVisitors: int64(uniques),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event type stats: %w", err)
	}
	return stats, nil
}

func (s *ClickHouseEventStore) TopClicks(ctx context.Context, limit int) ([]models.ClickStat, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT assumeNotNull(label) AS click_label, count() AS click_count
		FROM analytics_events
		WHERE event_type = 'CLICK' AND label IS NOT NULL
		GROUP BY click_label
		ORDER BY click_count DESC, click_label ASC
		LIMIT ?
	`, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query top clicks: %w", err)
	}
	defer rows.Close()

	var clicks []models.ClickStat
	for rows.Next() {
		var (
			label string
			count uint64
		)
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan top click: %w", err)
		}
		clicks = append(clicks, models.ClickStat{Label: label, Count: int64(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top clicks: %w", err)
	}
	return clicks, nil
}

func (s *ClickHouseEventStore) queryEvents(ctx context.Context, query string, args ...any) ([]models.RawEvent, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics events: %w", err)
	}
	defer rows.Close()

	var events []models.RawEvent
	for rows.Next() {
		var (
			event     models.RawEvent
			eventType string
			label     *string
			metadata  string
		)
		if err := rows.Scan(&event.ID, &event.VisitorID, &eventType, &event.Path, &label, &metadata, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		event.Type = models.EventType(eventType)
		event.Label = label
		event.Metadata = map[string]any{}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("event %s: failed to decode metadata: %w", event.ID, err)
			}
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics events: %w", err)
	}
	return events, nil
}
