package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeShards offloads two memory indexes the way the indexing pipeline
// does: docs 0 and 1 in the first shard, doc 2 in the second.
func writeShards(t *testing.T, dir string) []string {
	t.Helper()
	w := segment.NewWriter(dir)

	first := index.NewMemoryIndex()
	first.AddDocument(0, map[string]index.Posting{
		"cat": {TermFrequency: 1.0 / 3, TagWeight: 2},
		"sat": {TermFrequency: 1.0 / 3, TagWeight: 2},
	})
	first.AddDocument(1, map[string]index.Posting{
		"cat": {TermFrequency: 1.0 / 6, TagWeight: 2},
		"mat": {TermFrequency: 1.0 / 6, TagWeight: 2},
	})
	entries, docs := first.Drain()
	a, err := w.Write(entries, docs)
	require.NoError(t, err)

	second := index.NewMemoryIndex()
	second.AddDocument(2, map[string]index.Posting{
		"cat": {TermFrequency: 0.5},
		"dog": {TermFrequency: 0.5},
	})
	entries, docs = second.Drain()
	b, err := w.Write(entries, docs)
	require.NoError(t, err)
	return []string{a, b}
}

func input(shards []string) Input {
	return Input{
		RunID:     uuid.New(),
		Shards:    shards,
		Documents: 4,
		Accepted:  3,
		Addresses: map[index.DocID]string{0: "http://a", 1: "http://b", 2: "http://c", 3: "http://d"},
	}
}

func TestFoldAcrossShards(t *testing.T) {
	shards := writeShards(t, t.TempDir())
	lists, err := Fold(context.Background(), shards)
	require.NoError(t, err)

	require.Contains(t, lists, "cat")
	assert.EqualValues(t, 3, lists["cat"].DocumentFrequency)
	assert.EqualValues(t, 1, lists["dog"].DocumentFrequency)
	assert.Len(t, lists, 4)
}

func TestFoldLogsShardHeaders(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, slog.LevelDebug, "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	shards := writeShards(t, t.TempDir())
	_, err := Fold(context.Background(), shards)
	require.NoError(t, err)

	var folded []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		if entry["msg"] == "folding shard" {
			folded = append(folded, entry)
		}
	}
	require.Len(t, folded, 2)
	assert.Equal(t, shards[0], folded[0]["path"])
	assert.Equal(t, float64(3), folded[0]["terms"])
	assert.Equal(t, float64(2), folded[0]["documents"])
	assert.Equal(t, shards[1], folded[1]["path"])
	assert.Equal(t, float64(1), folded[1]["documents"])
}

func TestFinalizeScores(t *testing.T) {
	shards := writeShards(t, t.TempDir())
	lists, err := Fold(context.Background(), shards)
	require.NoError(t, err)
	require.NoError(t, Finalize(lists, 4))

	idf := math.Log(4.0 / 3.0)
	assert.InDelta(t, (1.0/3)*idf*2, lists["cat"].Postings[0].TermFrequency, 1e-12)
	assert.InDelta(t, 0.5*idf, lists["cat"].Postings[2].TermFrequency, 1e-12)
	assert.InDelta(t, 0.5*math.Log(4), lists["dog"].Postings[2].TermFrequency, 1e-12)
}

func TestFinalizeRejectsCorruptLists(t *testing.T) {
	empty := map[string]*index.PostingsList{"x": {DocumentFrequency: 0, Postings: map[index.DocID]index.Posting{}}}
	assert.ErrorIs(t, Finalize(empty, 1), apperrors.ErrCorruptAccumulator)

	mismatch := map[string]*index.PostingsList{"x": {DocumentFrequency: 2, Postings: map[index.DocID]index.Posting{0: {}}}}
	assert.ErrorIs(t, Finalize(mismatch, 5), apperrors.ErrCorruptAccumulator)

	tooMany := index.NewPostingsList()
	tooMany.Add(0, index.Posting{})
	tooMany.Add(1, index.Posting{})
	assert.ErrorIs(t, Finalize(map[string]*index.PostingsList{"x": tooMany}, 1), apperrors.ErrCorruptAccumulator)
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 0.5, Score(0.25, 2, 0), 1e-12)
	assert.InDelta(t, 5, Score(0.25, 2, 10), 1e-12)
	assert.Zero(t, Score(0.25, IDF(3, 3), 50))
}

func TestRunWritesIndex(t *testing.T) {
	shardDir := t.TempDir()
	outDir := t.TempDir()
	shards := writeShards(t, shardDir)
	m := metrics.New(prometheus.NewRegistry())

	in := input(shards)
	summary, err := New(Options{OutputDir: outDir}, m).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.RunID.String(), summary.RunID)
	assert.Equal(t, 4, summary.Terms)
	assert.Equal(t, 2, summary.Shards)

	remaining, err := segment.List(shardDir)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	ix, err := store.Open(outDir)
	require.NoError(t, err)
	defer ix.Close()
	cat, ok, err := ix.Lookup("cat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 3, cat.DocumentFrequency)
	url, ok := ix.Address(3)
	assert.True(t, ok)
	assert.Equal(t, "http://d", url)
}

func TestRunIsIdempotentWithKeptShards(t *testing.T) {
	shards := writeShards(t, t.TempDir())
	outDir := t.TempDir()
	mg := New(Options{OutputDir: outDir, KeepShards: true}, nil)
	in := input(shards)

	_, err := mg.Run(context.Background(), in)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(outDir, store.IndexFile))
	require.NoError(t, err)

	_, err = mg.Run(context.Background(), in)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(outDir, store.IndexFile))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	remaining, err := segment.List(filepath.Dir(shards[0]))
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestRunCorruptShardLeavesOutputUntouched(t *testing.T) {
	shards := writeShards(t, t.TempDir())
	outDir := t.TempDir()
	in := input(shards)
	_, err := New(Options{OutputDir: outDir, KeepShards: true}, nil).Run(context.Background(), in)
	require.NoError(t, err)

	data, err := os.ReadFile(shards[1])
	require.NoError(t, err)
	data[segment.HeaderSize+2] ^= 0xff
	require.NoError(t, os.WriteFile(shards[1], data, 0644))

	_, err = New(Options{OutputDir: outDir}, nil).Run(context.Background(), input(shards))
	assert.ErrorIs(t, err, apperrors.ErrCorruptShard)

	ix, err := store.Open(outDir)
	require.NoError(t, err)
	assert.Equal(t, in.RunID.String(), ix.Manifest().RunID)
	ix.Close()
}

func TestRunNoShards(t *testing.T) {
	outDir := t.TempDir()
	summary, err := New(Options{OutputDir: outDir}, nil).Run(context.Background(), Input{RunID: uuid.New()})
	require.NoError(t, err)
	assert.Zero(t, summary.Terms)

	ix, err := store.Open(outDir)
	require.NoError(t, err)
	defer ix.Close()
	_, ok, err := ix.Lookup("cat")
	require.NoError(t, err)
	assert.False(t, ok)
}
