// Package executor answers queries against an opened final index. A
// document matches only if every query term found in the offset directory
// gives it a positive score; its rank score is the sum of those scores.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
	"github.com/RoaringBitmap/roaring/v2"
)

// Result is the answer to one query. Matches counts matching documents
// before URL de-duplication.
type Result struct {
	Query   string             `json:"query"`
	Terms   []string           `json:"terms"`
	URLs    []string           `json:"urls"`
	Matches int                `json:"matches"`
	Hits    []ranker.ScoredDoc `json:"hits"`
	RunID   string             `json:"run_id,omitempty"`
}

type Engine struct {
	index        atomic.Pointer[store.Index]
	parser       *parser.Parser
	timeout      time.Duration
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// Open loads the index in cfg.IndexDir. It fails with ErrIndexNotBuilt when
// no complete index is there; no query can run before Open returns.
func Open(cfg config.SearchConfig, p *parser.Parser) (*Engine, error) {
	ix, err := store.Open(cfg.IndexDir)
	if err != nil {
		return nil, err
	}
	return New(ix, p, cfg), nil
}

// New wraps an already opened index.
func New(ix *store.Index, p *parser.Parser, cfg config.SearchConfig) *Engine {
	e := &Engine{
		parser:       p,
		timeout:      cfg.QueryTimeout,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "query-executor"),
	}
	e.index.Store(ix)
	m := ix.Manifest()
	e.logger.Info("index loaded",
		"dir", ix.Dir(),
		"run_id", m.RunID,
		"terms", m.Terms,
		"documents", m.Documents,
	)
	return e
}

func (e *Engine) Parse(query string) *parser.QueryPlan {
	return e.parser.Parse(query)
}

// Limit clamps a requested result count. Zero or negative selects the
// default.
func (e *Engine) Limit(requested int) int {
	if requested <= 0 {
		return e.defaultLimit
	}
	if e.maxResults > 0 && requested > e.maxResults {
		return e.maxResults
	}
	return requested
}

// Search parses and runs query.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*Result, error) {
	return e.Execute(ctx, e.parser.Parse(query), limit)
}

// Execute runs a parsed query under the configured deadline.
func (e *Engine) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*Result, error) {
	limit = e.Limit(limit)
	ix := e.index.Load()
	if ix == nil {
		return nil, fmt.Errorf("%w: engine closed", apperrors.ErrIndexNotBuilt)
	}
	res, err := resilience.WithDeadline(ctx, e.timeout, func(ctx context.Context) (*Result, error) {
		return execute(ctx, ix, plan, limit)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.New(apperrors.ErrTimeout, http.StatusServiceUnavailable, "query deadline exceeded")
	}
	if err != nil {
		return nil, err
	}
	res.RunID = ix.Manifest().RunID
	return res, nil
}

func execute(ctx context.Context, ix *store.Index, plan *parser.QueryPlan, limit int) (*Result, error) {
	res := &Result{
		Query: plan.RawQuery,
		Terms: plan.Terms,
		URLs:  []string{},
		Hits:  []ranker.ScoredDoc{},
	}
	order, counts := plan.Counts()

	type hit struct {
		list  *index.PostingsList
		times float64
	}
	found := make([]hit, 0, len(order))
	var candidates *roaring.Bitmap
	for _, term := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, ok, err := ix.Lookup(term)
		if err != nil {
			return nil, fmt.Errorf("reading postings of %q: %w", term, err)
		}
		if !ok {
			continue
		}
		found = append(found, hit{list: list, times: float64(counts[term])})
		docs := roaring.New()
		for doc, p := range list.Postings {
			if p.TermFrequency > 0 {
				docs.Add(doc)
			}
		}
		if candidates == nil {
			candidates = docs
		} else {
			candidates.And(docs)
		}
		if candidates.IsEmpty() {
			return res, nil
		}
	}
	if candidates == nil {
		return res, nil
	}

	scores := make(map[index.DocID]float64, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		doc := it.Next()
		var score float64
		for _, h := range found {
			score += h.times * h.list.Postings[doc].TermFrequency
		}
		scores[doc] = score
	}
	res.Matches = len(scores)
	res.URLs, res.Hits = ranker.Top(scores, ix.Address, limit)
	return res, nil
}

// Reload opens the index in dir and swaps it in. Queries already running
// keep the old index, which is closed after grace.
func (e *Engine) Reload(dir string, grace time.Duration) error {
	ix, err := store.Open(dir)
	if err != nil {
		return fmt.Errorf("reloading index: %w", err)
	}
	old := e.index.Swap(ix)
	m := ix.Manifest()
	e.logger.Info("index reloaded", "run_id", m.RunID, "terms", m.Terms, "documents", m.Documents)
	if old != nil {
		time.AfterFunc(grace, func() {
			if err := old.Close(); err != nil {
				e.logger.Error("closing replaced index", "error", err)
			}
		})
	}
	return nil
}

// Manifest describes the index currently served.
func (e *Engine) Manifest() store.Manifest {
	if ix := e.index.Load(); ix != nil {
		return ix.Manifest()
	}
	return store.Manifest{}
}

// HealthCheck reports the served index for readiness checks.
func (e *Engine) HealthCheck(ctx context.Context) health.ComponentHealth {
	ix := e.index.Load()
	if ix == nil {
		return health.ComponentHealth{Status: health.StatusDown, Message: "index not loaded"}
	}
	m := ix.Manifest()
	return health.ComponentHealth{
		Status:  health.StatusUp,
		Message: fmt.Sprintf("run %s, %d terms", m.RunID, m.Terms),
	}
}

func (e *Engine) Close() error {
	if ix := e.index.Swap(nil); ix != nil {
		return ix.Close()
	}
	return nil
}
