// Package benchmark contains Go benchmarks for document processing, the
// in-memory index, index builds and query execution.
package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/corpus"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/processor"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
)

var topics = []string{"distributed", "search", "analytics", "crawler", "indexing", "query", "engine", "ranking"}

// page renders document i with a title and a body drawn from topics, so
// every page differs enough to pass the duplicate gate.
func page(i int) corpus.Record {
	t := func(k int) string { return topics[(i+k)%len(topics)] }
	return corpus.Record{
		URL: fmt.Sprintf("https://example.com/%d", i),
		Content: fmt.Sprintf(
			"<html><head><title>%s and %s</title></head>\n<body><h1>%s</h1>\n<p>page %d covers %s %s in production number %d</p></body></html>",
			t(0), t(1), t(2), i, t(3), t(5), i*7919,
		),
	}
}

func corpusOf(n int) []corpus.Record {
	records := make([]corpus.Record, n)
	for i := range records {
		records[i] = page(i)
	}
	return records
}

func benchConfig(b *testing.B, shardMaxSize int64) config.IndexerConfig {
	b.Helper()
	root := b.TempDir()
	return config.IndexerConfig{
		DataDir:          filepath.Join(root, "partial"),
		OutputDir:        filepath.Join(root, "index"),
		ShardMaxSize:     shardMaxSize,
		Workers:          4,
		TagWeights:       config.DefaultTagWeights(),
		DefaultTagWeight: 1,
	}
}

// BenchmarkProcess measures parsing and weighting of a single page.
func BenchmarkProcess(b *testing.B) {
	p := processor.New(tokenizer.New(), nil, processor.DefaultTagWeights())
	rec := page(1)
	b.ReportAllocs()
	b.SetBytes(int64(len(rec.Content)))
	for b.Loop() {
		if _, err := p.Process(1, rec.URL, rec.Content); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryIndexAdd measures per-document insert throughput into the
// in-memory inverted index.
func BenchmarkMemoryIndexAdd(b *testing.B) {
	p := processor.New(tokenizer.New(), nil, processor.DefaultTagWeights())
	c, err := p.Process(0, "https://example.com/0", page(0).Content)
	if err != nil {
		b.Fatal(err)
	}
	postings := c.Postings()
	mi := index.NewMemoryIndex()
	b.ReportAllocs()
	var doc index.DocID
	for b.Loop() {
		mi.AddDocument(doc, postings)
		doc++
	}
}

// BenchmarkMemoryIndexDrain measures the cost of handing the index over
// for a shard offload.
func BenchmarkMemoryIndexDrain(b *testing.B) {
	postings := map[string]index.Posting{
		"snapshot": {TermFrequency: 0.25, TagWeight: 2},
		"offload":  {TermFrequency: 0.25, TagWeight: 2},
		"shard":    {TermFrequency: 0.5, TagWeight: 2},
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		mi := index.NewMemoryIndex()
		for i := range 5000 {
			mi.AddDocument(index.DocID(i), postings)
		}
		b.StartTimer()
		_, _ = mi.Drain()
	}
}

// BenchmarkBuild measures a full build, including shard offload and merge,
// for several shard thresholds.
func BenchmarkBuild(b *testing.B) {
	records := corpusOf(2000)
	for _, size := range []int64{64 * 1024, 1024 * 1024, 64 * 1024 * 1024} {
		b.Run(fmt.Sprintf("shard_%dKB", size/1024), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				engine, err := indexer.NewEngine(benchConfig(b, size))
				if err != nil {
					b.Fatal(err)
				}
				if _, err := engine.Build(context.Background(), corpus.NewSliceSource(records...)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
