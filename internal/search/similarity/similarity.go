// Package similarity implements the string similarity measures used by the
// ranker. Every measure returns a score in [0, 100]; 100 means identical
// after the measure's own preprocessing.
package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Preprocess lowercases s, turns everything that is not a letter or digit
// into a space and collapses whitespace.
func Preprocess(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio is the edit-distance similarity of a and b relative to the longer
// string.
func Ratio(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	longest := max(len(ra), len(rb))
	dist := fuzzy.LevenshteinDistance(a, b)
	return 100 * float64(longest-dist) / float64(longest)
}

// PartialRatio scores the best alignment of the shorter string against every
// same-length window of the longer one.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return Ratio(a, b)
	}

	needle := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		score := Ratio(needle, string(long[i:i+len(short)]))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares a and b after sorting their words, so word order
// does not matter.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared words of a and b against each side's
// remainder. A string whose words are a subset of the other's scores 100.
func TokenSetRatio(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	common, onlyA, onlyB := splitSets(sa, sb)
	if len(common) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	sect := strings.Join(common, " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	return max(
		Ratio(sect, combinedA),
		Ratio(sect, combinedB),
		Ratio(combinedA, combinedB),
	)
}

// PartialTokenRatio is the partial ratio of the word-sorted strings. Any
// shared word makes it 100.
func PartialTokenRatio(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	common, onlyA, onlyB := splitSets(sa, sb)
	if len(common) > 0 {
		return 100
	}

	return max(
		PartialRatio(sortedTokens(a), sortedTokens(b)),
		PartialRatio(strings.Join(onlyA, " "), strings.Join(onlyB, " ")),
	)
}

// WeightedRatio blends the measures above depending on how different the
// lengths of a and b are. Similar lengths trust full-string comparisons;
// very different lengths lean on partial alignment with a discount.
func WeightedRatio(a, b string) float64 {
	pa, pb := Preprocess(a), Preprocess(b)
	la, lb := len([]rune(pa)), len([]rune(pb))
	if la == 0 || lb == 0 {
		return 0
	}

	const unbase = 0.95
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))
	base := Ratio(pa, pb)

	if lenRatio < 1.5 {
		return max(
			base,
			TokenSortRatio(pa, pb)*unbase,
			TokenSetRatio(pa, pb)*unbase,
		)
	}

	partialScale := 0.9
	if lenRatio >= 8 {
		partialScale = 0.6
	}
	return max(
		base,
		PartialRatio(pa, pb)*partialScale,
		PartialTokenRatio(pa, pb)*unbase*partialScale,
	)
}

func sortedTokens(s string) string {
	tokens := strings.Fields(Preprocess(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := strings.Fields(Preprocess(s))
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// splitSets returns the sorted intersection and the sorted differences of two
// word sets.
func splitSets(a, b map[string]struct{}) (common, onlyA, onlyB []string) {
	for tok := range a {
		if _, ok := b[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range b {
		if _, ok := a[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return common, onlyA, onlyB
}
