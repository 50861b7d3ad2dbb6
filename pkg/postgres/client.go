// Package postgres opens the crawler database that backs the postgres
// corpus source.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
	"github.com/lib/pq"
)

type Client struct {
	DB     *sql.DB
	table  string
	logger *slog.Logger
}

// New opens a pool and waits for the database to answer, retrying the ping
// a few times while it starts up.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = resilience.Retry(ctx, "postgres ping", resilience.RetryConfig{Attempts: 4, BaseDelay: 500 * time.Millisecond}, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	c := &Client{
		DB:     db,
		table:  cfg.PagesTable,
		logger: slog.Default().With("component", "postgres", "database", cfg.Database),
	}
	c.logger.Info("connected", "host", cfg.Host, "pages_table", cfg.PagesTable)
	return c, nil
}

// PagesTable is the configured crawler table name.
func (c *Client) PagesTable() string {
	return c.table
}

// CountPages returns the number of rows in the pages table.
func (c *Client) CountPages(ctx context.Context) (int64, error) {
	var n int64
	query := "SELECT count(*) FROM " + QuoteTable(c.table)
	if err := c.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pages in %s: %w", c.table, err)
	}
	return n, nil
}

// QuoteTable quotes a table name that may be schema-qualified.
func QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (c *Client) Close() error {
	return c.DB.Close()
}
