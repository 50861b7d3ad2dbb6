package ranker

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
)

// rankHeap pops the best document first: highest score, then lowest doc_id.
type rankHeap []ScoredDoc

func (h rankHeap) Len() int { return len(h) }

func (h rankHeap) Less(i, j int) bool { return better(h[i], h[j]) }

func (h rankHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *rankHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Top returns the same URLs and hits as Resolve(Rank(scores), ...), but pops
// candidates from a heap so only as many are ordered as the limit needs.
func Top(scores map[index.DocID]float64, address func(index.DocID) (string, bool), limit int) ([]string, []ScoredDoc) {
	if limit <= 0 {
		return Resolve(Rank(scores), address, limit)
	}
	h := make(rankHeap, 0, len(scores))
	for docID, score := range scores {
		h = append(h, ScoredDoc{DocID: docID, Score: score})
	}
	heap.Init(&h)

	urls := make([]string, 0, min(len(h), limit))
	hits := make([]ScoredDoc, 0, cap(urls))
	seen := make(map[string]struct{}, cap(urls))
	for h.Len() > 0 && len(urls) < limit {
		doc := heap.Pop(&h).(ScoredDoc)
		url, ok := address(doc.DocID)
		if !ok {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		doc.URL = url
		urls = append(urls, url)
		hits = append(hits, doc)
	}
	return urls, hits
}
