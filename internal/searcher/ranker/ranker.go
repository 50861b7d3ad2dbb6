// Package ranker orders scored documents and maps them to result URLs.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
)

type ScoredDoc struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
	URL   string      `json:"url,omitempty"`
}

// Rank sorts by score descending, then doc_id ascending.
func Rank(scores map[index.DocID]float64) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool { return better(result[i], result[j]) })
	return result
}

func better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// Resolve walks ranked in order, attaching URLs and keeping only the first
// document seen for each URL, until limit URLs are collected. Documents
// without an address are skipped. limit <= 0 means no limit.
func Resolve(ranked []ScoredDoc, address func(index.DocID) (string, bool), limit int) ([]string, []ScoredDoc) {
	urls := make([]string, 0, min(len(ranked), max(limit, 0)))
	hits := make([]ScoredDoc, 0, cap(urls))
	seen := make(map[string]struct{}, cap(urls))
	for _, doc := range ranked {
		if limit > 0 && len(urls) >= limit {
			break
		}
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
