// Package indexer runs an indexing pass over a corpus: documents are
// processed in parallel, passed through the duplicate gate and accumulated in
// doc_id order, offloaded to shard files when the accumulator grows past its
// threshold, and finally merged into the on-disk index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/extract"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/fingerprint"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/processor"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/tracing"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	cfg       config.IndexerConfig
	processor *processor.Processor
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records indexing metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithProcessor replaces the default document processor.
func WithProcessor(p *processor.Processor) Option {
	return func(e *Engine) {
		e.processor = p
	}
}

func NewEngine(cfg config.IndexerConfig, opts ...Option) (*Engine, error) {
	if cfg.ShardMaxSize <= 0 {
		return nil, fmt.Errorf("%w: shard max size must be positive", apperrors.ErrInvalidInput)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating shard directory: %w", err)
	}
	e := &Engine{
		cfg:       cfg,
		processor: processor.New(tokenizer.New(), extract.HTML{}, processor.FromConfig(cfg)),
		logger:    slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// job is one corpus record in flight. done receives exactly one result.
type job struct {
	docID index.DocID
	url   string
	done  chan outcome
}

type outcome struct {
	contribution *processor.Contribution
	err          error
}

// run holds the state of one Build. Only the consumer goroutine touches it.
type run struct {
	id        uuid.UUID
	gate      *fingerprint.Gate
	memIndex  *index.MemoryIndex
	writer    *segment.Writer
	shards    []string
	addresses map[index.DocID]string
	documents int
	accepted  int
	exact     int
	near      int
	malformed int
}

// Build indexes every record of source and merges the result into
// cfg.OutputDir.
func (e *Engine) Build(ctx context.Context, source corpus.Source) (*merge.Summary, error) {
	r := &run{
		id:        uuid.New(),
		gate:      fingerprint.NewGate(e.cfg.NearDuplicateDistance),
		memIndex:  index.NewMemoryIndex(),
		writer:    segment.NewWriter(e.cfg.DataDir),
		addresses: make(map[index.DocID]string),
	}
	ctx = logger.WithRunID(ctx, r.id.String())
	ctx, span := tracing.StartSpan(ctx, "index.build", r.id.String())
	defer func() {
		span.End()
		span.Log()
	}()

	if err := e.removeStaleShards(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("component", "indexer")
	log.Info("indexing started",
		"workers", e.cfg.Workers,
		"shard_max_size", e.cfg.ShardMaxSize,
		"data_dir", e.cfg.DataDir,
	)

	processCtx, processSpan := tracing.StartChildSpan(ctx, "process")
	err := e.process(processCtx, source, r)
	processSpan.SetAttr("documents", r.documents)
	processSpan.SetAttr("shards", len(r.shards))
	processSpan.End()
	if err != nil {
		e.discardShards(r.shards)
		return nil, err
	}
	log.Info("corpus processed",
		"documents", r.documents,
		"accepted", r.accepted,
		"exact_duplicates", r.exact,
		"near_duplicates", r.near,
		"malformed", r.malformed,
		"shards", len(r.shards),
	)

	mergeCtx, mergeSpan := tracing.StartChildSpan(ctx, "merge")
	merger := merge.New(merge.Options{OutputDir: e.cfg.OutputDir, KeepShards: e.cfg.KeepShards}, e.metrics)
	summary, err := merger.Run(mergeCtx, merge.Input{
		RunID:     r.id,
		Shards:    r.shards,
		Documents: r.documents,
		Accepted:  r.accepted,
		Addresses: r.addresses,
	})
	mergeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("merging shards: %w", err)
	}
	summary.ExactDuplicates = r.exact
	summary.NearDuplicates = r.near
	summary.Malformed = r.malformed
	span.SetAttr("terms", summary.Terms)
	return summary, nil
}

// process runs the reader, the worker pool and the ordered consumer.
func (e *Engine) process(ctx context.Context, source corpus.Source, r *run) error {
	pool, err := ants.NewPool(e.cfg.Workers)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	g, gctx := errgroup.WithContext(ctx)
	pending := make(chan *job, e.cfg.Workers*4)

	g.Go(func() error {
		defer close(pending)
		return e.dispatch(gctx, source, pool, pending)
	})
	g.Go(func() error {
		return e.consume(gctx, pending, r)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if r.memIndex.Terms() > 0 {
		if err := e.offload(r); err != nil {
			return err
		}
	}
	return nil
}

// dispatch reads the corpus, assigning doc_ids in traversal order, and queues
// jobs in that same order.
func (e *Engine) dispatch(ctx context.Context, source corpus.Source, pool *ants.Pool, pending chan<- *job) error {
	var next index.DocID
	for {
		rec, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		j := &job{docID: next, url: rec.URL, done: make(chan outcome, 1)}
		next++
		switch {
		case errors.Is(err, apperrors.ErrMalformedRecord):
			j.done <- outcome{err: err}
		case err != nil:
			return fmt.Errorf("reading corpus: %w", err)
		default:
			content := rec.Content
			if err := pool.Submit(func() {
				defer func() {
					if p := recover(); p != nil {
						j.done <- outcome{err: fmt.Errorf("%w: processing panicked: %v", apperrors.ErrMalformedRecord, p)}
					}
				}()
				c, err := e.processor.Process(j.docID, j.url, content)
				j.done <- outcome{contribution: c, err: err}
			}); err != nil {
				return fmt.Errorf("submitting document %d: %w", j.docID, err)
			}
		}
		select {
		case pending <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume applies results strictly in doc_id order. The gate decision, the
// accumulator update and the offload check all happen here.
func (e *Engine) consume(ctx context.Context, pending <-chan *job, r *run) error {
	for j := range pending {
		var res outcome
		select {
		case res = <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.documents++
		if res.err != nil {
			r.malformed++
			e.count(metrics.OutcomeMalformed)
			e.logger.Warn("skipping malformed document", "doc_id", j.docID, "error", res.err)
			continue
		}
		c := res.contribution
		r.addresses[j.docID] = c.URL

		switch verdict := r.gate.Check(c.ContentHash, c.Fingerprint); verdict {
		case fingerprint.ExactDuplicate:
			r.exact++
			e.count(metrics.OutcomeExactDuplicate)
			e.logger.Debug("duplicate rejected", "doc_id", j.docID, "url", c.URL, "verdict", verdict)
			continue
		case fingerprint.NearDuplicate:
			r.near++
			e.count(metrics.OutcomeNearDuplicate)
			e.logger.Debug("duplicate rejected", "doc_id", j.docID, "url", c.URL, "verdict", verdict)
			continue
		}

		r.memIndex.AddDocument(j.docID, c.Postings())
		r.accepted++
		e.count(metrics.OutcomeIndexed)
		if r.memIndex.Size() >= e.cfg.ShardMaxSize {
			if err := e.offload(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// offload writes the accumulator to the next shard file and clears it.
func (e *Engine) offload(r *run) error {
	size := r.memIndex.Size()
	entries, docs := r.memIndex.Drain()
	path, err := r.writer.Write(entries, docs)
	if err != nil {
		return fmt.Errorf("offloading shard: %w", err)
	}
	r.shards = append(r.shards, path)
	if e.metrics != nil {
		e.metrics.ShardOffloadsTotal.Inc()
		e.metrics.ShardBytes.Observe(float64(size))
	}
	e.logger.Info("shard offloaded",
		"shard", path,
		"terms", len(entries),
		"docs", docs,
		"estimated_bytes", size,
	)
	return nil
}

func (e *Engine) count(outcome string) {
	if e.metrics != nil {
		e.metrics.DocsProcessedTotal.WithLabelValues(outcome).Inc()
	}
}

// removeStaleShards deletes shards left by an interrupted run so they are
// never folded into this one.
func (e *Engine) removeStaleShards() error {
	stale, err := segment.List(e.cfg.DataDir)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	e.logger.Warn("removing shards from a previous run", "count", len(stale))
	var result *multierror.Error
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("removing stale shards: %w", err)
	}
	return nil
}

func (e *Engine) discardShards(paths []string) {
	if e.cfg.KeepShards {
		return
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Error("removing shard after failed run", "shard", path, "error", err)
		}
	}
}
