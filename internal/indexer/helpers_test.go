package indexer

import (
	"os"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/segment"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// index0Shard leaves a shard behind as an interrupted run would.
func index0Shard(t *testing.T, dir string) string {
	t.Helper()
	mi := index.NewMemoryIndex()
	mi.AddDocument(0, map[string]index.Posting{"stale": {TermFrequency: 1}})
	entries, docs := mi.Drain()
	path, err := segment.NewWriter(dir).Write(entries, docs)
	require.NoError(t, err)
	return path
}
