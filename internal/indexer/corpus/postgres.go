package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"

	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/postgres"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource streams pages from a crawler table ordered by primary key.
type PostgresSource struct {
	rows *sql.Rows
}

// NewPostgresSource runs the traversal query. The table must have id, url
// and content columns.
func NewPostgresSource(ctx context.Context, db *sql.DB, table string) (*PostgresSource, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid pages table name %q", table)
	}
	rows, err := db.QueryContext(ctx, "SELECT url, content FROM "+postgres.QuoteTable(table)+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	return &PostgresSource{rows: rows}, nil
}

func (s *PostgresSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return Record{}, fmt.Errorf("iterating pages: %w", err)
		}
		return Record{}, io.EOF
	}
	var url, content sql.NullString
	if err := s.rows.Scan(&url, &content); err != nil {
		return Record{}, fmt.Errorf("%w: scanning page row: %v", apperrors.ErrMalformedRecord, err)
	}
	if !url.Valid || url.String == "" {
		return Record{}, fmt.Errorf("%w: missing url", apperrors.ErrMalformedRecord)
	}
	if !content.Valid {
		return Record{}, fmt.Errorf("%w: missing content for %s", apperrors.ErrMalformedRecord, url.String)
	}
	return Record{URL: url.String, Content: content.String}, nil
}

func (s *PostgresSource) Close() error {
	return s.rows.Close()
}
