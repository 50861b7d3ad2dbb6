package executor

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/health"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scores maps term -> doc -> finalized score.
type scores map[string]map[index.DocID]float64

func writeIndex(t *testing.T, dir string, s scores, addresses map[index.DocID]string) string {
	t.Helper()
	runID := uuid.New()
	w, err := store.NewWriter(dir, runID)
	require.NoError(t, err)
	terms := make([]string, 0, len(s))
	for term := range s {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	for _, term := range terms {
		pl := index.NewPostingsList()
		for doc, score := range s[term] {
			pl.Add(doc, index.Posting{TermFrequency: score})
		}
		_, err := w.Append(index.TermEntry{Term: term, List: pl})
		require.NoError(t, err)
	}
	size, err := w.CommitIndex()
	require.NoError(t, err)
	checksum, err := w.CommitOffsets()
	require.NoError(t, err)
	require.NoError(t, store.WriteAddresses(dir, addresses))
	require.NoError(t, store.WriteManifest(dir, store.Manifest{
		RunID:           runID.String(),
		Documents:       len(addresses),
		Terms:           len(terms),
		IndexSize:       size,
		OffsetsChecksum: checksum,
	}))
	return runID.String()
}

func searchConfig(dir string) config.SearchConfig {
	return config.SearchConfig{IndexDir: dir, DefaultLimit: 3, MaxResults: 5, QueryTimeout: time.Second}
}

func identity(w string) string { return w }

func openEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	norm := tokenizer.New(tokenizer.WithStemmer(identity), tokenizer.WithStopwords([]string{"the"}))
	e, err := Open(searchConfig(dir), parser.New(norm, true))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

var sample = scores{
	"cat":  {0: 0.4, 1: 0.2, 3: 0.1},
	"dog":  {1: 0.5, 2: 0.9},
	"mat":  {1: 0.3, 3: 0.3},
	"zero": {4: 0},
}

var sampleAddresses = map[index.DocID]string{
	0: "http://a",
	1: "http://b",
	2: "http://c",
	3: "http://a",
	4: "http://z",
}

func TestSingleTerm(t *testing.T) {
	dir := t.TempDir()
	runID := writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	res, err := e.Search(context.Background(), "cat", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Matches)
	assert.Equal(t, []string{"http://a", "http://b"}, res.URLs)
	assert.Equal(t, runID, res.RunID)
	assert.Equal(t, []string{"cat"}, res.Terms)
}

func TestConjunction(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	res, err := e.Search(context.Background(), "cat mat", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matches)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, index.DocID(1), res.Hits[0].DocID)
	assert.InDelta(t, 0.5, res.Hits[0].Score, 1e-12)
	assert.Equal(t, index.DocID(3), res.Hits[1].DocID)

	res, err = e.Search(context.Background(), "cat dog mat", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://b"}, res.URLs)
}

func TestAbsentTermsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	res, err := e.Search(context.Background(), "dog unicorn", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matches)
	assert.Equal(t, []string{"http://c", "http://b"}, res.URLs)

	res, err = e.Search(context.Background(), "unicorn", 0)
	require.NoError(t, err)
	assert.Zero(t, res.Matches)
	assert.Empty(t, res.URLs)
}

func TestEmptyQuery(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	res, err := e.Search(context.Background(), "  !! ", 0)
	require.NoError(t, err)
	assert.Empty(t, res.URLs)
	assert.NotNil(t, res.URLs)
}

func TestZeroScoresDoNotMatch(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	res, err := e.Search(context.Background(), "zero", 0)
	require.NoError(t, err)
	assert.Zero(t, res.Matches)
}

func TestRepeatedTermsWeighMore(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	once, err := e.Search(context.Background(), "cat dog", 0)
	require.NoError(t, err)
	twice, err := e.Search(context.Background(), "cat cat dog", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, once.Hits[0].Score, 1e-12)
	assert.InDelta(t, 0.9, twice.Hits[0].Score, 1e-12)
}

func TestLimits(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	assert.Equal(t, 3, e.Limit(0))
	assert.Equal(t, 2, e.Limit(2))
	assert.Equal(t, 5, e.Limit(50))

	res, err := e.Search(context.Background(), "cat", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a"}, res.URLs)
	assert.Equal(t, 3, res.Matches)
}

func TestStopwordsDropped(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	res, err := e.Search(context.Background(), "the dog", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dog"}, res.Terms)
	assert.Equal(t, 2, res.Matches)
}

func TestOpenWithoutIndex(t *testing.T) {
	_, err := Open(searchConfig(t.TempDir()), parser.New(tokenizer.New(), true))
	assert.ErrorIs(t, err, apperrors.ErrIndexNotBuilt)
}

func TestExecuteDeadline(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := e.Search(ctx, "cat", 0)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	first := writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)
	assert.Equal(t, first, e.Manifest().RunID)

	second := writeIndex(t, dir, scores{"bird": {0: 1}}, map[index.DocID]string{0: "http://bird"})
	require.NoError(t, e.Reload(dir, 10*time.Millisecond))
	assert.Equal(t, second, e.Manifest().RunID)

	res, err := e.Search(context.Background(), "bird", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://bird"}, res.URLs)
	res, err = e.Search(context.Background(), "cat", 0)
	require.NoError(t, err)
	assert.Zero(t, res.Matches)

	assert.ErrorIs(t, e.Reload(t.TempDir(), 0), apperrors.ErrIndexNotBuilt)
	assert.Equal(t, second, e.Manifest().RunID)
}

func TestClosedEngine(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, sample, sampleAddresses)
	e := openEngine(t, dir)
	assert.Equal(t, health.StatusUp, e.HealthCheck(context.Background()).Status)

	require.NoError(t, e.Close())
	_, err := e.Search(context.Background(), "cat", 0)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotBuilt)
	assert.Equal(t, health.StatusDown, e.HealthCheck(context.Background()).Status)
	assert.Empty(t, e.Manifest().RunID)
}
