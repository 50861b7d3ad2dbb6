// Package extract turns raw HTML into visible text plus the ordered list of
// elements and the text each one encloses.
package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Tag is one element in document order. Text includes the text of every
// descendant.
type Tag struct {
	Name string
	Text string
}

// Page is the extraction result for one document.
type Page struct {
	Text string
	Tags []Tag
}

// Extractor is the contract the document processor depends on.
type Extractor interface {
	Extract(content string) (*Page, error)
}

// HTML is the default Extractor.
type HTML struct{}

// Extract implements Extractor.
func (HTML) Extract(content string) (*Page, error) {
	return Parse(content)
}

// invisible elements contribute neither text nor tags.
var invisible = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// Parse parses content leniently; the HTML5 algorithm recovers from almost
// any markup, so an error means the reader itself failed.
func Parse(content string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	page := &Page{Tags: make([]Tag, 0, 64)}
	page.Text = walk(root, page)
	return page, nil
}

// walk appends an entry for every visible element under n in pre-order and
// returns the text of n's subtree. Child text is concatenated as is; word
// boundaries come only from the whitespace the markup itself contains.
func walk(n *html.Node, page *Page) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		if _, skip := invisible[n.Data]; skip {
			return ""
		}
	case html.DocumentNode:
	default:
		return ""
	}

	slot := -1
	if n.Type == html.ElementNode {
		slot = len(page.Tags)
		page.Tags = append(page.Tags, Tag{Name: n.Data})
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(walk(c, page))
	}
	text := b.String()
	if slot >= 0 {
		page.Tags[slot].Text = text
	}
	return text
}
