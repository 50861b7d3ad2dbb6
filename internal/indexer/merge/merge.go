// Package merge folds the shard files of an indexing run into the final
// index, computing TF-IDF scores once every shard has been read.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

type Options struct {
	OutputDir  string
	KeepShards bool
}

// Input describes one run's shards and document population.
type Input struct {
	RunID     uuid.UUID
	Shards    []string
	Documents int
	Accepted  int
	Addresses map[index.DocID]string
}

// Summary reports what a merge produced.
type Summary struct {
	RunID             string        `json:"run_id"`
	OutputDir         string        `json:"output_dir"`
	Documents         int           `json:"documents"`
	AcceptedDocuments int           `json:"accepted_documents"`
	Terms             int           `json:"terms"`
	Shards            int           `json:"shards"`
	IndexSize         int64         `json:"index_size"`
	Duration          time.Duration `json:"duration"`

	// Filled in by the indexing pipeline; a bare merge leaves them zero.
	ExactDuplicates int `json:"exact_duplicates"`
	NearDuplicates  int `json:"near_duplicates"`
	Malformed       int `json:"malformed"`
}

type Merger struct {
	opts    Options
	metrics *metrics.Metrics
}

// New creates a Merger. m may be nil.
func New(opts Options, m *metrics.Metrics) *Merger {
	return &Merger{
		opts:    opts,
		metrics: m,
	}
}

// Run folds, finalizes and serializes. A shard that cannot be read aborts the
// run before any artifact in the output directory is touched.
func (mg *Merger) Run(ctx context.Context, in Input) (*Summary, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "merger")

	lists, err := Fold(ctx, in.Shards)
	if err != nil {
		return nil, err
	}
	log.Info("shards folded", "shards", len(in.Shards), "terms", len(lists))

	if err := Finalize(lists, in.Documents); err != nil {
		return nil, err
	}

	if err := store.RemoveManifest(mg.opts.OutputDir); err != nil {
		return nil, err
	}
	w, err := store.NewWriter(mg.opts.OutputDir, in.RunID)
	if err != nil {
		return nil, err
	}
	terms := make([]string, 0, len(lists))
	for term := range lists {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for i, term := range terms {
		if i%4096 == 0 && ctx.Err() != nil {
			w.Abort()
			return nil, ctx.Err()
		}
		if _, err := w.Append(index.TermEntry{Term: term, List: lists[term]}); err != nil {
			w.Abort()
			return nil, fmt.Errorf("serializing index: %w", err)
		}
	}
	size, err := w.CommitIndex()
	if err != nil {
		w.Abort()
		return nil, err
	}
	log.Info("index file written", "terms", w.Terms(), "bytes", size)

	if !mg.opts.KeepShards {
		if err := removeShards(in.Shards); err != nil {
			w.Abort()
			return nil, fmt.Errorf("deleting merged shards: %w", err)
		}
	}

	checksum, err := w.CommitOffsets()
	if err != nil {
		w.Abort()
		return nil, err
	}
	if err := store.WriteAddresses(mg.opts.OutputDir, in.Addresses); err != nil {
		return nil, err
	}
	manifest := store.Manifest{
		RunID:             in.RunID.String(),
		Documents:         in.Documents,
		AcceptedDocuments: in.Accepted,
		Terms:             w.Terms(),
		Shards:            len(in.Shards),
		IndexSize:         size,
		OffsetsChecksum:   checksum,
		CreatedAt:         time.Now().UTC(),
	}
	if err := store.WriteManifest(mg.opts.OutputDir, manifest); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if mg.metrics != nil {
		mg.metrics.MergeDuration.Observe(elapsed.Seconds())
		mg.metrics.IndexTerms.Set(float64(len(terms)))
		mg.metrics.IndexDocuments.Set(float64(in.Documents))
	}
	log.Info("merge complete",
		"terms", len(terms),
		"documents", in.Documents,
		"duration", elapsed,
	)
	return &Summary{
		RunID:             manifest.RunID,
		OutputDir:         mg.opts.OutputDir,
		Documents:         in.Documents,
		AcceptedDocuments: in.Accepted,
		Terms:             len(terms),
		Shards:            len(in.Shards),
		IndexSize:         size,
		Duration:          elapsed,
	}, nil
}

// Fold reads every shard in order into one map. A document already present
// under a term has its frequency and tag weight summed.
func Fold(ctx context.Context, shards []string) (map[string]*index.PostingsList, error) {
	log := logger.FromContext(ctx).With("component", "merger")
	result := make(map[string]*index.PostingsList)
	for _, path := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := foldShard(log, result, path); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func foldShard(log *slog.Logger, result map[string]*index.PostingsList, path string) error {
	r, err := segment.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening shard %s: %w", path, err)
	}
	defer r.Close()
	log.Debug("folding shard", "path", r.Path(), "terms", r.Terms(), "documents", r.DocCount())
	return r.Each(func(entry index.TermEntry) error {
		pl, ok := result[entry.Term]
		if !ok {
			pl = index.NewPostingsList()
			result[entry.Term] = pl
		}
		for doc, p := range entry.List.Postings {
			pl.Add(doc, p)
		}
		return nil
	})
}

// Finalize replaces every posting's TermFrequency with its score. It must
// only run after all shards are folded, since idf needs the complete
// document frequency.
func Finalize(lists map[string]*index.PostingsList, documents int) error {
	for term, pl := range lists {
		df := pl.DocumentFrequency
		if df == 0 || int(df) != len(pl.Postings) || int(df) > documents {
			return fmt.Errorf("%w: term %q has document frequency %d, %d postings, %d documents",
				apperrors.ErrCorruptAccumulator, term, df, len(pl.Postings), documents)
		}
		idf := IDF(documents, df)
		for doc, p := range pl.Postings {
			p.TermFrequency = Score(p.TermFrequency, idf, p.TagWeight)
			pl.Postings[doc] = p
		}
	}
	return nil
}

// IDF is ln(N / df).
func IDF(documents int, df uint32) float64 {
	return math.Log(float64(documents) / float64(df))
}

// Score is tf * idf, scaled by the tag weight when one was accumulated.
func Score(tf, idf, tagWeight float64) float64 {
	score := tf * idf
	if tagWeight != 0 {
		score *= tagWeight
	}
	return score
}

func removeShards(paths []string) error {
	var result *multierror.Error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
