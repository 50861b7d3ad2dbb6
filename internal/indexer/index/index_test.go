package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostingsListAdd(t *testing.T) {
	pl := NewPostingsList()
	pl.Add(3, Posting{TermFrequency: 0.25, TagWeight: 1})
	pl.Add(1, Posting{TermFrequency: 0.5})
	pl.Add(3, Posting{TermFrequency: 0.25, TagWeight: 50})

	assert.EqualValues(t, 2, pl.DocumentFrequency)
	assert.Equal(t, Posting{TermFrequency: 0.5, TagWeight: 51}, pl.Postings[3])
	assert.Equal(t, []DocID{1, 3}, pl.DocIDs())
}

func TestMemoryIndexDocumentFrequency(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddDocument(0, map[string]Posting{"cat": {TermFrequency: 1.0 / 3}, "sat": {TermFrequency: 1.0 / 3}})
	mi.AddDocument(1, map[string]Posting{"cat": {TermFrequency: 1.0 / 6}})
	assert.Equal(t, 2, mi.Terms())
	assert.Positive(t, mi.Size())

	entries, docs := mi.Drain()
	assert.Equal(t, 2, docs)
	require.Len(t, entries, 2)
	cat := entries[0]
	assert.Equal(t, "cat", cat.Term)
	assert.EqualValues(t, 2, cat.List.DocumentFrequency)
	assert.Len(t, cat.List.Postings, 2)
	assert.EqualValues(t, 1, entries[1].List.DocumentFrequency)
}

func TestMemoryIndexSizeGrowsPerNewPosting(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddDocument(0, map[string]Posting{"cat": {TermFrequency: 1}})
	first := mi.Size()
	mi.AddDocument(1, map[string]Posting{"cat": {TermFrequency: 1}})
	assert.EqualValues(t, first+postingOverhead, mi.Size())
	assert.Equal(t, 1, mi.Terms())
}

func TestMemoryIndexDrain(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddDocument(0, map[string]Posting{"zebra": {TermFrequency: 1}, "apple": {TermFrequency: 1}})
	mi.AddDocument(1, map[string]Posting{"mango": {TermFrequency: 1}})

	entries, docs := mi.Drain()
	assert.Equal(t, 2, docs)
	require.Len(t, entries, 3)
	assert.Equal(t, "apple", entries[0].Term)
	assert.Equal(t, "mango", entries[1].Term)
	assert.Equal(t, "zebra", entries[2].Term)

	assert.Zero(t, mi.Size())
	assert.Zero(t, mi.Terms())
	_, docs = mi.Drain()
	assert.Zero(t, docs)
}

func TestCodecRoundTrip(t *testing.T) {
	entry := TermEntry{Term: "cat", List: NewPostingsList()}
	entry.List.Add(0, Posting{TermFrequency: 1.0 / 3, TagWeight: 2})
	entry.List.Add(1, Posting{TermFrequency: 1.0 / 6})
	entry.List.Add(4096, Posting{TermFrequency: 0.5, TagWeight: 52})

	data := MarshalEntry(entry)
	assert.Len(t, data, EntrySize(entry))

	got, err := UnmarshalEntry(data)
	require.NoError(t, err)
	assert.Equal(t, entry.Term, got.Term)
	assert.Equal(t, entry.List.DocumentFrequency, got.List.DocumentFrequency)
	assert.Equal(t, entry.List.Postings, got.List.Postings)
}

func TestCodecDeterministic(t *testing.T) {
	a := TermEntry{Term: "t", List: NewPostingsList()}
	b := TermEntry{Term: "t", List: NewPostingsList()}
	for i := DocID(0); i < 50; i++ {
		a.List.Add(i, Posting{TermFrequency: float64(i)})
		b.List.Add(49-i, Posting{TermFrequency: float64(49 - i)})
	}
	assert.Equal(t, MarshalEntry(a), MarshalEntry(b))
}

func TestCodecRejectsCorruptInput(t *testing.T) {
	entry := TermEntry{Term: "cat", List: NewPostingsList()}
	entry.List.Add(0, Posting{TermFrequency: 1})
	data := MarshalEntry(entry)

	_, err := UnmarshalEntry(data[:len(data)-3])
	assert.Error(t, err)

	_, err = UnmarshalEntry(append(data, 0))
	assert.Error(t, err)

	_, err = UnmarshalEntry(nil)
	assert.Error(t, err)
}
