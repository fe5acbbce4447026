package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/config"
)

// DBClient owns the Postgres pool for the lifetime of the process.
type DBClient struct {
	DB  *sql.DB
	log *logrus.Logger
}

func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Logger) (*DBClient, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	log.Info("Connected to PostgreSQL")
	return &DBClient{DB: db, log: log}, nil
}

// HealthCheck pings the pool. Aggregation runs call it before touching data.
func (c *DBClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.log.WithError(err).Error("Error closing PostgreSQL pool")
		return
	}
	c.log.Info("PostgreSQL pool closed")
}
