package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/config"
)

// ClickHouseClient backs the raw event store when ANALYTICS_EVENT_BACKEND=clickhouse.
type ClickHouseClient struct {
	Conn clickhouse.Conn
	log  *logrus.Logger
}

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, log *logrus.Logger) (*ClickHouseClient, error) {
	if cfg.Host == "" || cfg.NativePort == 0 || cfg.Database == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST, CLICKHOUSE_NATIVE_PORT and CLICKHOUSE_DB_NAME must be set")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "portfolio-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via native TCP: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.WithField("addr", options.Addr[0]).Info("Connected to ClickHouse")
	return &ClickHouseClient{Conn: conn, log: log}, nil
}

// EnsureSchema creates the raw event table. Summaries always live in Postgres.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	err := c.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_events (
			event_id   String,
			visitor_id String,
			event_type LowCardinality(String),
			path       String,
			label      Nullable(String),
			metadata   String,
			created_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (created_at, event_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse analytics_events table: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse health check failed: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Close(); err != nil {
		c.log.WithError(err).Error("Error closing ClickHouse connection")
		return
	}
	c.log.Info("ClickHouse connection closed")
}
