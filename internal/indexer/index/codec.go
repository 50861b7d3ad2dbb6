package index

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// postingWireSize bounds the encoded size of one posting from below; it keeps
// a corrupt count from forcing a huge allocation.
const postingWireSize = 1 + 8 + 8

// EntrySize returns the encoded length of e.
func EntrySize(e TermEntry) int {
	size := ord.String.Size(e.Term)
	size += varint.Uint32.Size(e.List.DocumentFrequency)
	size += varint.Uint32.Size(uint32(len(e.List.Postings)))
	for id, p := range e.List.Postings {
		size += varint.Uint32.Size(id)
		size += raw.Float64.Size(p.TermFrequency)
		size += raw.Float64.Size(p.TagWeight)
	}
	return size
}

// MarshalEntry encodes e with postings in ascending document order, so equal
// entries always encode to equal bytes.
func MarshalEntry(e TermEntry) []byte {
	bs := make([]byte, EntrySize(e))
	n := ord.String.Marshal(e.Term, bs)
	n += varint.Uint32.Marshal(e.List.DocumentFrequency, bs[n:])
	n += varint.Uint32.Marshal(uint32(len(e.List.Postings)), bs[n:])
	for _, id := range e.List.DocIDs() {
		p := e.List.Postings[id]
		n += varint.Uint32.Marshal(id, bs[n:])
		n += raw.Float64.Marshal(p.TermFrequency, bs[n:])
		n += raw.Float64.Marshal(p.TagWeight, bs[n:])
	}
	return bs[:n]
}

// UnmarshalEntry decodes an entry produced by MarshalEntry.
func UnmarshalEntry(bs []byte) (TermEntry, error) {
	term, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return TermEntry{}, fmt.Errorf("decoding term: %w", err)
	}
	df, m, err := varint.Uint32.Unmarshal(bs[n:])
	if err != nil {
		return TermEntry{}, fmt.Errorf("decoding document frequency of %q: %w", term, err)
	}
	n += m
	count, m, err := varint.Uint32.Unmarshal(bs[n:])
	if err != nil {
		return TermEntry{}, fmt.Errorf("decoding posting count of %q: %w", term, err)
	}
	n += m
	if int(count) > (len(bs)-n)/postingWireSize+1 {
		return TermEntry{}, fmt.Errorf("posting count %d of %q exceeds payload", count, term)
	}
	list := &PostingsList{
		DocumentFrequency: df,
		Postings:          make(map[DocID]Posting, count),
	}
	for i := uint32(0); i < count; i++ {
		id, m, err := varint.Uint32.Unmarshal(bs[n:])
		if err != nil {
			return TermEntry{}, fmt.Errorf("decoding posting %d of %q: %w", i, term, err)
		}
		n += m
		tf, m, err := raw.Float64.Unmarshal(bs[n:])
		if err != nil {
			return TermEntry{}, fmt.Errorf("decoding posting %d of %q: %w", i, term, err)
		}
		n += m
		tw, m, err := raw.Float64.Unmarshal(bs[n:])
		if err != nil {
			return TermEntry{}, fmt.Errorf("decoding posting %d of %q: %w", i, term, err)
		}
		n += m
		list.Postings[id] = Posting{TermFrequency: tf, TagWeight: tw}
	}
	if n != len(bs) {
		return TermEntry{}, fmt.Errorf("%d trailing bytes after %q", len(bs)-n, term)
	}
	return TermEntry{Term: term, List: list}, nil
}
