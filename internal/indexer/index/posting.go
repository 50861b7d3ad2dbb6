package index

import (
	"slices"
)

// DocID is a dense document number assigned in corpus traversal order.
type DocID = uint32

// Posting is the data for one (term, document) pair.
//
// TermFrequency holds count/length while the index is being built. The merge
// finalization pass overwrites it in place with the ranking score
// (tf * idf, times TagWeight when non-zero); from then on it is a score.
type Posting struct {
	TermFrequency float64
	TagWeight     float64
}

// PostingsList is every posting of one term.
type PostingsList struct {
	DocumentFrequency uint32
	Postings          map[DocID]Posting
}

// NewPostingsList returns an empty list.
func NewPostingsList() *PostingsList {
	return &PostingsList{Postings: make(map[DocID]Posting)}
}

// Add folds p into the list. A new document increments DocumentFrequency; a
// document already present has both fields summed.
func (pl *PostingsList) Add(doc DocID, p Posting) {
	if pl.Postings == nil {
		pl.Postings = make(map[DocID]Posting)
	}
	existing, ok := pl.Postings[doc]
	if !ok {
		pl.Postings[doc] = p
		pl.DocumentFrequency++
		return
	}
	existing.TermFrequency += p.TermFrequency
	existing.TagWeight += p.TagWeight
	pl.Postings[doc] = existing
}

// DocIDs returns the list's documents in ascending order.
func (pl *PostingsList) DocIDs() []DocID {
	ids := make([]DocID, 0, len(pl.Postings))
	for id := range pl.Postings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// TermEntry pairs a term with its list for serialization.
type TermEntry struct {
	Term string
	List *PostingsList
}
