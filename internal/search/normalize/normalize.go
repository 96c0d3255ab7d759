// Package normalize produces the canonical text forms used by catalog
// search. Every function here is pure and total: stored titles and incoming
// queries must go through the same code path or they silently stop matching.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Version identifies the current rule set. The catalog persists it next to
// the derived title columns; bump it whenever any rule below changes so the
// stored normalized titles are rebuilt on the next start.
const Version = "3"

var (
	// Anything that is not a letter, digit or combining mark separates words.
	// Marks are kept so Devanagari vowel signs stay attached to their letters.
	nonWordRegex = regexp.MustCompile(`[^\p{L}\p{N}\p{M}]+`)

	// Apostrophes are dropped rather than spaced so "Ocean's 11" does not
	// produce a bare "s 11" season marker.
	apostropheRegex = regexp.MustCompile(`['’‘` + "`" + `]`)

	seasonTokenRegex  = regexp.MustCompile(`^(?:s|season)(\d{1,2})(?:(?:e|ep|episode)\d{1,3})?$`)
	seasonNumberRegex = regexp.MustCompile(`^\d{1,2}$`)
	episodeTokenRegex = regexp.MustCompile(`^(?:e|ep|episode)\d{1,3}$`)
	episodeNumRegex   = regexp.MustCompile(`^\d{1,3}$`)

	// Combining Diacritical Marks block: accents on Latin letters. Marks from
	// other scripts are left alone.
	latinMarks = &unicode.RangeTable{
		R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
	}
)

var episodeWords = map[string]bool{"e": true, "ep": true, "episode": true}

type substitution struct {
	from string
	to   string
}

// phoneticRules is applied top to bottom. Digraphs come before the single
// letter rules so "ck" and "qu" collapse in one step instead of through "c"
// and "q".
var phoneticRules = []substitution{
	{"ph", "f"},
	{"kh", "k"},
	{"gh", "g"},
	{"bh", "b"},
	{"dh", "d"},
	{"th", "t"},
	{"sh", "s"},
	{"ck", "k"},
	{"cq", "k"},
	{"qu", "k"},
	{"ee", "i"},
	{"oo", "u"},
	{"q", "k"},
	{"x", "ks"},
	{"c", "k"},
	{"z", "j"},
	{"w", "v"},
}

// Clean returns the canonical search form of text: case folded, accents
// stripped, punctuation turned into single spaces and season/episode markers
// removed. Clean(Clean(x)) == Clean(x) for every x.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	tokens := strings.Fields(words(text))
	return strings.Join(stripSeasonMarkers(tokens), " ")
}

// NormalizeTitle is the form persisted in the catalog's normalized_title
// column. It must stay identical to Clean.
func NormalizeTitle(title string) string {
	return Clean(title)
}

// Tokens splits the cleaned text into words.
func Tokens(text string) []string {
	return strings.Fields(Clean(text))
}

// PhoneticFold maps common spelling and transliteration variants onto a
// shared representative ("phir" and "fir" both become "fir").
func PhoneticFold(text string) string {
	if text == "" {
		return ""
	}
	folded := strings.Join(strings.Fields(words(text)), " ")
	for _, rule := range phoneticRules {
		folded = strings.ReplaceAll(folded, rule.from, rule.to)
	}
	return collapseRepeats(folded)
}

// ConsonantSignature reduces text to its consonant skeleton ("kantara" ->
// "kntr"), tolerating dropped or guessed vowels.
func ConsonantSignature(text string) string {
	folded := PhoneticFold(text)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || isVowel(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SeasonNumbers returns the season numbers named in text, in order of
// appearance. "Mirzapur Season 2" yields [2]; "Dark S01E03" yields [1].
func SeasonNumbers(text string) []int {
	tokens := strings.Fields(words(text))
	var seasons []int
	for i := 0; i < len(tokens); {
		span, season := seasonSpan(tokens, i)
		if span == 0 {
			i++
			continue
		}
		seasons = append(seasons, season)
		i += span
	}
	return seasons
}

// words folds case and accents and replaces separators with spaces.
func words(text string) string {
	text = apostropheRegex.ReplaceAllString(foldCase(text), "")
	return nonWordRegex.ReplaceAllString(text, " ")
}

func foldCase(text string) string {
	t := transform.Chain(cases.Fold(), norm.NFKD, runes.Remove(runes.In(latinMarks)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return out
}

// stripSeasonMarkers drops marker tokens until nothing changes. A single
// pass is not enough: removing "season 1" from "season season 1 1" leaves a
// fresh "season 1" behind.
func stripSeasonMarkers(tokens []string) []string {
	for {
		out := make([]string, 0, len(tokens))
		for i := 0; i < len(tokens); {
			if span, _ := seasonSpan(tokens, i); span > 0 {
				i += span
				continue
			}
			out = append(out, tokens[i])
			i++
		}
		if len(out) == len(tokens) {
			return out
		}
		tokens = out
	}
}

// seasonSpan reports how many tokens starting at i form a season marker
// (including a trailing episode marker) and the season number it names.
func seasonSpan(tokens []string, i int) (int, int) {
	tok := tokens[i]
	if m := seasonTokenRegex.FindStringSubmatch(tok); m != nil {
		season, _ := strconv.Atoi(m[1])
		return 1 + episodeSpan(tokens, i+1), season
	}
	if (tok == "s" || tok == "season") && i+1 < len(tokens) && seasonNumberRegex.MatchString(tokens[i+1]) {
		season, _ := strconv.Atoi(tokens[i+1])
		return 2 + episodeSpan(tokens, i+2), season
	}
	return 0, 0
}

func episodeSpan(tokens []string, i int) int {
	if i >= len(tokens) {
		return 0
	}
	if episodeTokenRegex.MatchString(tokens[i]) {
		return 1
	}
	if episodeWords[tokens[i]] && i+1 < len(tokens) && episodeNumRegex.MatchString(tokens[i+1]) {
		return 2
	}
	return 0
}

// collapseRepeats squeezes runs of the same letter ("kk" -> "k"). Digits are
// left alone so years survive.
func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
