package fingerprint

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/xrash/smetrics"
)

// Verdict is the outcome of a duplicate check.
type Verdict int

const (
	Unique Verdict = iota
	ExactDuplicate
	NearDuplicate
)

func (v Verdict) String() string {
	switch v {
	case Unique:
		return "unique"
	case ExactDuplicate:
		return "exact_duplicate"
	case NearDuplicate:
		return "near_duplicate"
	default:
		return "unknown"
	}
}

// ContentHash hashes the ordered term sequence of a document.
func ContentHash(terms []string) uint64 {
	d := xxhash.New()
	for _, t := range terms {
		d.WriteString(t)
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// Gate remembers content hashes and fingerprints of every document checked so
// far. A document is a near duplicate when the Levenshtein distance between
// its fingerprint and any remembered one is below the tolerance.
//
// Fingerprints are bucketed by popcount: one edit changes the number of '1'
// characters by at most one, so only buckets whose popcount differs by less
// than the tolerance can hold a match.
type Gate struct {
	mu        sync.Mutex
	tolerance int
	hashes    map[uint64]struct{}
	byOnes    [Width + 1]map[Fingerprint]struct{}
	size      int
}

// NewGate creates a Gate. tolerance 1 rejects only identical fingerprints;
// tolerance 0 disables the near-duplicate check.
func NewGate(tolerance int) *Gate {
	g := &Gate{
		tolerance: tolerance,
		hashes:    make(map[uint64]struct{}),
	}
	for i := range g.byOnes {
		g.byOnes[i] = make(map[Fingerprint]struct{})
	}
	return g
}

// Check decides whether a document is a duplicate and records it. The check
// and the insert happen under one lock. An exact duplicate is rejected before
// its fingerprint is compared or stored; otherwise the fingerprint is stored
// whatever the verdict.
func (g *Gate) Check(contentHash uint64, fp Fingerprint) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, seen := g.hashes[contentHash]; seen {
		return ExactDuplicate
	}
	g.hashes[contentHash] = struct{}{}

	near := g.matchLocked(fp)
	ones := fp.Ones()
	if _, exists := g.byOnes[ones][fp]; !exists {
		g.byOnes[ones][fp] = struct{}{}
		g.size++
	}
	if near {
		return NearDuplicate
	}
	return Unique
}

func (g *Gate) matchLocked(fp Fingerprint) bool {
	if g.tolerance <= 0 {
		return false
	}
	ones := fp.Ones()
	if g.tolerance == 1 {
		_, ok := g.byOnes[ones][fp]
		return ok
	}
	lo, hi := ones-(g.tolerance-1), ones+(g.tolerance-1)
	for bucket := max(lo, 0); bucket <= min(hi, Width); bucket++ {
		for other := range g.byOnes[bucket] {
			if Distance(fp, other) < g.tolerance {
				return true
			}
		}
	}
	return false
}

// Len returns the number of distinct fingerprints remembered.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size
}

// Distance is the Levenshtein distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return smetrics.WagnerFischer(string(a), string(b), 1, 1, 1)
}
