// Package parser turns a free-text query into index terms using the same
// normalisation as indexing plus the query-time stopword policy.
package parser

import (
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/tokenizer"
)

// QueryPlan is a normalised query. Terms keeps duplicates in query order; a
// repeated term counts once per occurrence.
type QueryPlan struct {
	RawQuery string   `json:"raw_query"`
	Terms    []string `json:"terms"`
}

// Counts returns each distinct term with its multiplicity, in first-seen
// order.
func (p *QueryPlan) Counts() ([]string, map[string]int) {
	order := make([]string, 0, len(p.Terms))
	counts := make(map[string]int, len(p.Terms))
	for _, t := range p.Terms {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	return order, counts
}

// Key is an order-independent rendering of the terms, for cache keys.
func (p *QueryPlan) Key() string {
	sorted := slices.Clone(p.Terms)
	slices.Sort(sorted)
	return strings.Join(sorted, " ")
}

type Parser struct {
	norm *tokenizer.Normalizer
	opts tokenizer.QueryOptions
}

// New creates a Parser. norm must be built with the indexer's stemmer.
func New(norm *tokenizer.Normalizer, dropStopwords bool) *Parser {
	return &Parser{
		norm: norm,
		opts: tokenizer.QueryOptions{DropStopwords: dropStopwords},
	}
}

func (p *Parser) Parse(query string) *QueryPlan {
	return &QueryPlan{
		RawQuery: query,
		Terms:    p.norm.QueryTerms(query, p.opts),
	}
}
