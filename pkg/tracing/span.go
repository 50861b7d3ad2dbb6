// Package tracing records nested timed spans in a context and logs the tree
// when the root finishes. The indexer uses it to time build phases.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	attrs    []any
	children []*Span
	ended    bool
}

// StartSpan begins a root span.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan begins a span under the one in ctx. Without a parent it is
// a root with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.Duration = time.Since(s.Start)
		s.ended = true
	}
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Log writes one record per span, children after their parent.
func (s *Span) Log() {
	s.log(slog.Default(), s.Name)
}

func (s *Span) log(logger *slog.Logger, path string) {
	s.mu.Lock()
	args := append([]any{
		"trace_id", s.TraceID,
		"span", path,
		"duration_ms", s.Duration.Milliseconds(),
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	logger.Info("span", args...)
	for _, child := range children {
		child.log(logger, path+"/"+child.Name)
	}
}
