// Package processor turns one crawled document into its contribution to the
// index: per-term occurrence counts, per-term tag weights, and the signals
// the duplicate gate needs.
package processor

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/extract"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/fingerprint"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
)

// TermStat is the raw per-document data for one term.
type TermStat struct {
	Count     int
	TagWeight float64
}

// Contribution is everything one document adds to the index.
type Contribution struct {
	DocID       index.DocID
	URL         string
	TotalTokens int
	Terms       map[string]*TermStat
	ContentHash uint64
	Fingerprint fingerprint.Fingerprint
}

// Postings converts the raw counts to postings with term frequency
// count / TotalTokens.
func (c *Contribution) Postings() map[string]index.Posting {
	out := make(map[string]index.Posting, len(c.Terms))
	if c.TotalTokens == 0 {
		return out
	}
	total := float64(c.TotalTokens)
	for term, st := range c.Terms {
		out[term] = index.Posting{
			TermFrequency: float64(st.Count) / total,
			TagWeight:     st.TagWeight,
		}
	}
	return out
}

// Processor is safe for concurrent use; it holds no per-document state.
type Processor struct {
	norm      *tokenizer.Normalizer
	extractor extract.Extractor
	weights   TagWeights
}

// New creates a Processor.
func New(norm *tokenizer.Normalizer, extractor extract.Extractor, weights TagWeights) *Processor {
	if extractor == nil {
		extractor = extract.HTML{}
	}
	return &Processor{
		norm:      norm,
		extractor: extractor,
		weights:   weights,
	}
}

// Process extracts and analyzes one raw HTML document.
func (p *Processor) Process(docID index.DocID, url, content string) (*Contribution, error) {
	page, err := p.extractor.Extract(content)
	if err != nil {
		return nil, fmt.Errorf("extracting document %d: %w", docID, err)
	}
	return p.Analyze(docID, url, page), nil
}

// Analyze computes the contribution of an already extracted page. Tag weight
// is added once per term occurrence inside each tag's text; nested tags each
// contribute, since each one's text includes its descendants.
func (p *Processor) Analyze(docID index.DocID, url string, page *extract.Page) *Contribution {
	terms := p.norm.Tokenize(page.Text)
	c := &Contribution{
		DocID:       docID,
		URL:         CanonicalURL(url),
		TotalTokens: len(terms),
		Terms:       make(map[string]*TermStat, len(terms)/2),
		ContentHash: fingerprint.ContentHash(terms),
		Fingerprint: fingerprint.Of(page.Text),
	}
	for _, term := range terms {
		st, ok := c.Terms[term]
		if !ok {
			st = &TermStat{}
			c.Terms[term] = st
		}
		st.Count++
	}
	for _, tag := range page.Tags {
		w := p.weights.Weight(tag.Name)
		for term := range p.norm.Terms(tag.Text) {
			if st, ok := c.Terms[term]; ok {
				st.TagWeight += w
			}
		}
	}
	return c
}

// CanonicalURL strips the fragment component.
func CanonicalURL(url string) string {
	base, _, _ := strings.Cut(url, "#")
	return base
}
