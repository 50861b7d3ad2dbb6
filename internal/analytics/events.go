// Package analytics publishes search and indexing events to Kafka.
package analytics

import "time"

type EventType string

const (
	EventSearch        EventType = "search"
	EventZeroResult    EventType = "zero_result"
	EventSearchError   EventType = "search_error"
	EventIndexComplete EventType = "index_complete"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Matches   int       `json:"matches"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexCompleteEvent announces a newly built index. Searchers reload when
// they receive it.
type IndexCompleteEvent struct {
	Type              EventType `json:"type"`
	RunID             string    `json:"run_id"`
	IndexDir          string    `json:"index_dir"`
	Documents         int       `json:"documents"`
	AcceptedDocuments int       `json:"accepted_documents"`
	Terms             int       `json:"terms"`
	IndexSize         int64     `json:"index_size"`
	DurationMs        int64     `json:"duration_ms"`
	Timestamp         time.Time `json:"timestamp"`
}
