package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lower-cases", "The Cat SAT", []string{"the", "cat", "sat"}},
		{"keeps apostrophes", "don't stop", []string{"don't", "stop"}},
		{"splits on punctuation runs", "a--b...c", []string{"a", "b", "c"}},
		{"keeps digits", "http2 over tls1", []string{"http2", "over", "tls1"}},
		{"non-ascii letters separate", "café crème", []string{"caf", "cr", "me"}},
		{"empty", "  ,;  ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeStems(t *testing.T) {
	n := New()
	assert.Equal(t, []string{"run", "cat", "jump"}, n.Tokenize("Running cats jumped"))
}

func TestTokenizeCustomStemmer(t *testing.T) {
	n := New(WithStemmer(func(w string) string { return w }))
	assert.Equal(t, []string{"running", "cats"}, n.Tokenize("Running, cats!"))
}

func TestTermsStopsEarly(t *testing.T) {
	n := New(WithStemmer(func(w string) string { return w }))
	var got []string
	for term := range n.Terms("one two three four") {
		got = append(got, term)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestQueryTermsDropsStopwords(t *testing.T) {
	n := New(WithStopwords([]string{"the", "of", "to", "be", "or", "not"}))
	opts := QueryOptions{DropStopwords: true}

	assert.Equal(t, []string{"cat", "mat"}, n.QueryTerms("cat of the mat", opts))
}

func TestQueryTermsKeepsStopwordHeavyQuery(t *testing.T) {
	n := New(WithStopwords([]string{"to", "be", "or", "not"}))
	got := n.QueryTerms("to be or not to be", QueryOptions{DropStopwords: true})
	assert.Len(t, got, 6)
	assert.Equal(t, "to", got[0])
}

func TestQueryTermsWithoutDropping(t *testing.T) {
	n := New(WithStopwords([]string{"the"}))
	assert.Equal(t, []string{"the", "cat"}, n.QueryTerms("The cat", QueryOptions{}))
}

func TestQueryTermsMatchIndexTerms(t *testing.T) {
	n := New()
	assert.Equal(t, n.Tokenize("Searching Engines"), n.QueryTerms("searching engines", QueryOptions{}))
}
