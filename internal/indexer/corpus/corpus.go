// Package corpus supplies crawled pages to the indexer as {url, content}
// records in a stable traversal order.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
)

// Record is one crawled page.
type Record struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Source yields records in traversal order. Next returns io.EOF after the
// last record. An error wrapping ErrMalformedRecord concerns that item only;
// the caller may keep reading. Any other error ends the traversal.
type Source interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

type wireRecord struct {
	URL     *string `json:"url"`
	Content *string `json:"content"`
}

// Decode parses a JSON record. Both fields must be present.
func Decode(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}
	if w.URL == nil || *w.URL == "" {
		return Record{}, fmt.Errorf("%w: missing url", apperrors.ErrMalformedRecord)
	}
	if w.Content == nil {
		return Record{}, fmt.Errorf("%w: missing content", apperrors.ErrMalformedRecord)
	}
	return Record{URL: *w.URL, Content: *w.Content}, nil
}
