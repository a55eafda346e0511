// Package matcher implements fuzzy text containment and license
// fingerprint matching for the policy built-ins. Comparison is done
// over Unicode-normalized, case-folded token shingles so that
// whitespace, casing and compatibility-form differences do not defeat
// a match.
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize renders text into canonical comparison form: NFKC
// normalization followed by full case folding, with runs of whitespace
// and punctuation collapsed to single spaces.
func Normalize(text string) string {
	folded := cases.Fold().String(norm.NFKC.String(text))
	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokenize splits normalized text into word tokens.
func Tokenize(text string) []string {
	return strings.Fields(Normalize(text))
}

// shingles returns the set of n-token shingles of tokens. For inputs
// shorter than n the whole token sequence is a single shingle.
func shingles(tokens []string, n int) map[string]struct{} {
	out := make(map[string]struct{})
	if len(tokens) == 0 {
		return out
	}
	if len(tokens) < n {
		out[strings.Join(tokens, " ")] = struct{}{}
		return out
	}
	for i := 0; i+n <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+n], " ")] = struct{}{}
	}
	return out
}

// shingleSize is the shingle width used for similarity scoring. Three
// tokens keeps single-word noise from inflating scores while staying
// robust to small edits.
const shingleSize = 3

// Similarity returns the Dice coefficient between the shingle sets of
// the two texts, in [0, 1].
func Similarity(a, b string) float64 {
	sa := shingles(Tokenize(a), shingleSize)
	sb := shingles(Tokenize(b), shingleSize)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	common := 0
	for s := range sa {
		if _, ok := sb[s]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(sa)+len(sb))
}

// Containment returns the fraction of needle shingles present in
// haystack, in [0, 1]. Unlike Similarity it does not penalize a large
// haystack.
func Containment(haystack, needle string) float64 {
	sn := shingles(Tokenize(needle), shingleSize)
	if len(sn) == 0 {
		return 1
	}
	sh := shingles(Tokenize(haystack), shingleSize)
	common := 0
	for s := range sn {
		if _, ok := sh[s]; ok {
			common++
		}
	}
	return float64(common) / float64(len(sn))
}

// FuzzyContains reports whether needle appears in haystack, allowing
// normalization differences and small edits. threshold is the minimum
// Containment score; values at or below 0 use DefaultThreshold.
func FuzzyContains(haystack, needle string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	// Exact normalized substring wins regardless of shingle coverage.
	if nn := Normalize(needle); nn != "" && strings.Contains(Normalize(haystack), nn) {
		return true
	}
	return Containment(haystack, needle) >= threshold
}

// DefaultThreshold is the containment score required by FuzzyContains
// when the caller does not supply one.
const DefaultThreshold = 0.8
