// Package tokenizer normalises text into index terms. It lower-cases input,
// splits on every run of characters that is not an ASCII letter, digit or
// apostrophe, and passes each token through a pluggable stemmer. The same
// Normalizer must be used for indexing and for query parsing.
package tokenizer

import (
	"iter"
	"strings"

	snowballeng "github.com/kljensen/snowball/english"
)

// Stemmer reduces an inflected, lower-cased word to its root form.
type Stemmer func(word string) string

// PorterStem is the default Stemmer (Snowball English, a Porter derivative).
func PorterStem(word string) string {
	return snowballeng.Stem(word, true)
}

// QueryOptions selects the query-time normalisation policy.
type QueryOptions struct {
	DropStopwords bool
}

// Normalizer turns raw text into terms.
type Normalizer struct {
	stem      Stemmer
	stopWords map[string]struct{}
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithStemmer replaces the default stemmer.
func WithStemmer(s Stemmer) Option {
	return func(n *Normalizer) {
		if s != nil {
			n.stem = s
		}
	}
}

// WithStopwords replaces the query-time stopword list.
func WithStopwords(words []string) Option {
	return func(n *Normalizer) {
		n.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			n.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// New creates a Normalizer using Porter stemming and no stopwords.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		stem:      PorterStem,
		stopWords: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Split lower-cases text and returns the raw, unstemmed tokens. Empty tokens
// never appear in the result.
func Split(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isSeparator)
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
		return false
	}
	return true
}

// Terms yields the normalised terms of text lazily, in order.
func (n *Normalizer) Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for raw := range strings.FieldsFuncSeq(strings.ToLower(text), isSeparator) {
			term := n.stem(raw)
			if term == "" {
				continue
			}
			if !yield(term) {
				return
			}
		}
	}
}

// Tokenize collects Terms into a slice.
func (n *Normalizer) Tokenize(text string) []string {
	terms := make([]string, 0, len(text)/6)
	for term := range n.Terms(text) {
		terms = append(terms, term)
	}
	return terms
}

// IsStopword reports whether the lower-cased raw token is a stopword.
func (n *Normalizer) IsStopword(token string) bool {
	_, ok := n.stopWords[token]
	return ok
}

// QueryTerms normalises a query. With DropStopwords set, stopwords are removed
// unless they make up more than half of the raw tokens, in which case the
// query ("to be or not to be") is kept whole and every token is stemmed.
func (n *Normalizer) QueryTerms(query string, opts QueryOptions) []string {
	raw := Split(query)
	dropStop := opts.DropStopwords
	if dropStop {
		stops := 0
		for _, tok := range raw {
			if n.IsStopword(tok) {
				stops++
			}
		}
		if float64(stops) > float64(len(raw))/2 {
			dropStop = false
		}
	}
	terms := make([]string, 0, len(raw))
	for _, tok := range raw {
		if dropStop && n.IsStopword(tok) {
			continue
		}
		term := n.stem(tok)
		if term == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}
