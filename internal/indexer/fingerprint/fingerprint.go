// Package fingerprint computes 16-bit near-duplicate signatures over a
// document's token frequencies and decides whether a document duplicates one
// already seen. Its tokenizer differs from the indexing
// Normalizer: letters and digits only, no apostrophes, no stemming.
package fingerprint

import (
	"math/bits"
	"strings"
)

// Width is the number of buckets, and therefore bits, in a Fingerprint.
const Width = 16

// hashSignBit selects the token's sign from its 16-bit rolling hash. It is
// the eighth most significant bit of the 16-bit value.
const hashSignBit = 1 << (Width - 1 - 7)

// Fingerprint is a Width-character string of '0' and '1'.
type Fingerprint string

// Frequencies counts the lower-cased ASCII letter/digit runs in text.
func Frequencies(text string) map[string]int {
	freqs := make(map[string]int)
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			freqs[word.String()]++
			word.Reset()
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z':
			word.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			word.WriteByte(c + ('a' - 'A'))
		default:
			flush()
		}
	}
	flush()
	return freqs
}

// tokenHash is the sum of the token's character codes modulo 2^16.
func tokenHash(token string) uint16 {
	var h uint16
	for i := 0; i < len(token); i++ {
		h += uint16(token[i])
	}
	return h
}

// Compute derives the Fingerprint of a frequency map. Tokens are bucketed by
// their first character code mod Width; each contributes +freq or -freq
// depending on one bit of its hash, and a bucket emits '1' when its signed
// sum is at least 1.
func Compute(freqs map[string]int) Fingerprint {
	var sums [Width]int
	for token, freq := range freqs {
		if token == "" {
			continue
		}
		sign := -1
		if tokenHash(token)&hashSignBit != 0 {
			sign = 1
		}
		sums[int(token[0])%Width] += sign * freq
	}
	var b strings.Builder
	b.Grow(Width)
	for _, s := range sums {
		if s >= 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return Fingerprint(b.String())
}

// Of is shorthand for Compute(Frequencies(text)).
func Of(text string) Fingerprint {
	return Compute(Frequencies(text))
}

// Ones returns the number of '1' bits in f.
func (f Fingerprint) Ones() int {
	var v uint32
	for i := 0; i < len(f); i++ {
		v <<= 1
		if f[i] == '1' {
			v |= 1
		}
	}
	return bits.OnesCount32(v)
}
