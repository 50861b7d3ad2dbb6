package ranker

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/stretchr/testify/assert"
)

func addresses(m map[index.DocID]string) func(index.DocID) (string, bool) {
	return func(id index.DocID) (string, bool) {
		url, ok := m[id]
		return url, ok
	}
}

func TestRankOrder(t *testing.T) {
	ranked := Rank(map[index.DocID]float64{4: 1.0, 2: 3.0, 7: 1.0, 1: 0.5})
	ids := make([]index.DocID, 0, len(ranked))
	for _, d := range ranked {
		ids = append(ids, d.DocID)
	}
	assert.Equal(t, []index.DocID{2, 4, 7, 1}, ids)
}

func TestResolveDeduplicatesURLs(t *testing.T) {
	ranked := Rank(map[index.DocID]float64{0: 3, 1: 2, 2: 1})
	urls, hits := Resolve(ranked, addresses(map[index.DocID]string{0: "http://a", 1: "http://a", 2: "http://b"}), 10)
	assert.Equal(t, []string{"http://a", "http://b"}, urls)
	assert.Equal(t, index.DocID(0), hits[0].DocID)
	assert.Equal(t, "http://b", hits[1].URL)
}

func TestResolveLimitCountsUniqueURLs(t *testing.T) {
	ranked := Rank(map[index.DocID]float64{0: 4, 1: 3, 2: 2, 3: 1})
	urls, _ := Resolve(ranked, addresses(map[index.DocID]string{0: "a", 1: "a", 2: "b", 3: "c"}), 2)
	assert.Equal(t, []string{"a", "b"}, urls)
}

func TestResolveSkipsUnknownDocuments(t *testing.T) {
	urls, _ := Resolve(Rank(map[index.DocID]float64{0: 2, 1: 1}), addresses(map[index.DocID]string{1: "b"}), 0)
	assert.Equal(t, []string{"b"}, urls)
}

func TestTopMatchesResolve(t *testing.T) {
	scores := make(map[index.DocID]float64)
	urls := make(map[index.DocID]string)
	for i := range 500 {
		id := index.DocID(i)
		scores[id] = float64((i * 7919) % 97)
		urls[id] = fmt.Sprintf("http://site/%d", i%230)
	}
	for _, limit := range []int{0, 1, 5, 50, 230, 1000} {
		wantURLs, wantHits := Resolve(Rank(scores), addresses(urls), limit)
		gotURLs, gotHits := Top(scores, addresses(urls), limit)
		assert.Equal(t, wantURLs, gotURLs, "limit %d", limit)
		assert.Equal(t, wantHits, gotHits, "limit %d", limit)
	}
}

func TestTopEmpty(t *testing.T) {
	urls, hits := Top(nil, addresses(nil), 10)
	assert.Empty(t, urls)
	assert.Empty(t, hits)
}
