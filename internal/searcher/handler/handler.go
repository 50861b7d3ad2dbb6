// Package handler exposes the query engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/middleware"
)

// Searcher is implemented by *executor.Engine.
type Searcher interface {
	Parse(query string) *parser.QueryPlan
	Limit(requested int) int
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.Result, error)
	Manifest() store.Manifest
}

type Handler struct {
	searcher  Searcher
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. queryCache, collector and m may be nil.
func New(searcher Searcher, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher:  searcher,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
const (
	RouteSearch          = "/api/v1/search"
	RouteIndex           = "/api/v1/index"
	RouteCacheStats      = "/api/v1/cache/stats"
	RouteCacheInvalidate = "/api/v1/cache/invalidate"
)

// Routes lists the paths Register serves.
func Routes() []string {
	return []string{RouteSearch, RouteIndex, RouteCacheStats, RouteCacheInvalidate}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+RouteSearch, h.Search)
	mux.HandleFunc("GET "+RouteIndex, h.IndexInfo)
	mux.HandleFunc("GET "+RouteCacheStats, h.CacheStats)
	mux.HandleFunc("POST "+RouteCacheInvalidate, h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	requested := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		requested = parsed
	}
	limit := h.searcher.Limit(requested)
	plan := h.searcher.Parse(query)

	var result *executor.Result
	var err error
	cacheHit := false
	if h.cache != nil && len(plan.Terms) > 0 {
		key := cache.Key(h.searcher.Manifest().RunID, plan, limit)
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*executor.Result, error) {
			return h.searcher.Execute(ctx, plan, limit)
		})
	} else {
		result, err = h.searcher.Execute(ctx, plan, limit)
	}
	latency := time.Since(start)

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "query", query, "status", status, "error", err)
		h.observe(ctx, query, plan, nil, false, latency, err)
		message := "search failed"
		switch {
		case errors.Is(err, apperrors.ErrTimeout):
			message = "search timed out"
		case errors.Is(err, apperrors.ErrIndexNotBuilt):
			message = "index not built"
		case apperrors.IsCorruption(err):
			log.Error("index failed validation, rebuild required", "run_id", h.searcher.Manifest().RunID)
		}
		h.writeJSON(w, status, map[string]string{"error": message, "code": apperrors.Code(err)})
		return
	}

	log.Info("search completed",
		"query", query,
		"terms", plan.Terms,
		"matches", result.Matches,
		"returned", len(result.URLs),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.observe(ctx, query, plan, result, cacheHit, latency, nil)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(ctx context.Context, query string, plan *parser.QueryPlan, result *executor.Result, cacheHit bool, latency time.Duration, err error) {
	resultType := "hit"
	eventType := analytics.EventSearch
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		resultType, eventType = "timeout", analytics.EventSearchError
	case err != nil:
		resultType, eventType = "error", analytics.EventSearchError
	case result.Matches == 0:
		resultType, eventType = "zero_result", analytics.EventZeroResult
	}
	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		if result != nil {
			h.metrics.SearchResultsCount.Observe(float64(result.Matches))
		}
	}
	if h.collector == nil {
		return
	}
	event := analytics.SearchEvent{
		Type:      eventType,
		Query:     query,
		Terms:     plan.Terms,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	if result != nil {
		event.Matches = result.Matches
		event.Returned = len(result.URLs)
		event.RunID = result.RunID
	}
	h.collector.Track(event)
}

// IndexInfo returns the manifest of the served index.
func (h *Handler) IndexInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.searcher.Manifest())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
