package index

import "sort"

const (
	termOverhead    = 96
	postingOverhead = 48
)

// MemoryIndex accumulates postings for the documents of the current shard.
// Its size is an estimate of resident bytes used to decide when to offload.
// It is owned by the single goroutine that folds contributions and is not
// safe for concurrent use.
type MemoryIndex struct {
	index    map[string]*PostingsList
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]*PostingsList),
	}
}

// AddDocument merges one document's postings. Each term's document
// frequency grows by at most one per call.
func (m *MemoryIndex) AddDocument(docID DocID, postings map[string]Posting) {
	for term, posting := range postings {
		pl, exists := m.index[term]
		if !exists {
			pl = NewPostingsList()
			m.index[term] = pl
			m.size += int64(len(term) + termOverhead)
		}
		if _, seen := pl.Postings[docID]; !seen {
			m.size += postingOverhead
		}
		pl.Add(docID, posting)
	}
	m.docCount++
}

// Drain hands over every term in ascending order together with the document
// count, and leaves the index empty.
func (m *MemoryIndex) Drain() ([]TermEntry, int) {
	entries := make([]TermEntry, 0, len(m.index))
	for term, pl := range m.index {
		entries = append(entries, TermEntry{Term: term, List: pl})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	docs := m.docCount
	m.index = make(map[string]*PostingsList)
	m.docCount = 0
	m.size = 0
	return entries, docs
}

func (m *MemoryIndex) Size() int64 {
	return m.size
}

func (m *MemoryIndex) Terms() int {
	return len(m.index)
}
