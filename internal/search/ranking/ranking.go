// Package ranking scores a bounded candidate list against a query and returns
// the best matches in a deterministic order.
package ranking

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cinesearch/cinesearch/internal/search/normalize"
	"github.com/cinesearch/cinesearch/internal/search/similarity"
)

var ErrInvalidLimit = errors.New("limit must be positive")

// Shorter query signatures match almost any title.
const minSignatureRunes = 3

// Candidate is a catalog row as seen by the ranker.
type Candidate struct {
	ID              string
	Title           string
	NormalizedTitle string
}

// Result is a ranked match.
type Result struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Config holds ranking weights.
type Config struct {
	// Threshold is the minimum final score for a candidate to be returned.
	Threshold float64 `mapstructure:"threshold"`
	// Bonus is added when every query word appears inside the title.
	Bonus float64 `mapstructure:"bonus"`
	// SeasonMismatchPenalty is subtracted when query and title name
	// different seasons.
	SeasonMismatchPenalty float64 `mapstructure:"season_mismatch_penalty"`
}

func DefaultConfig() Config {
	return Config{
		Threshold:             50,
		Bonus:                 3,
		SeasonMismatchPenalty: 5,
	}
}

// Breakdown exposes the individual measures behind a final score.
type Breakdown struct {
	Weighted  float64
	TokenSet  float64
	TokenSort float64
	Partial   float64
	Signature float64
	Base      float64
	Penalty   float64
	Bonus     float64
	Score     float64
}

// Ranker is stateless apart from its configuration and safe for concurrent
// use.
type Ranker struct {
	config Config
}

func NewRanker(cfg Config) *Ranker {
	return &Ranker{config: cfg}
}

func NewDefaultRanker() *Ranker {
	return NewRanker(DefaultConfig())
}

func (r *Ranker) Config() Config {
	return r.config
}

// query holds the derived forms of a query, computed once per Rank call.
type query struct {
	raw       string
	clean     string
	signature string
	tokens    []string
	seasons   []int
}

func prepare(raw string) query {
	clean := normalize.Clean(raw)
	return query{
		raw:       raw,
		clean:     clean,
		signature: normalize.ConsonantSignature(clean),
		tokens:    strings.Fields(clean),
		seasons:   normalize.SeasonNumbers(raw),
	}
}

// Score computes the breakdown for a single candidate.
func (r *Ranker) Score(c Candidate, rawQuery string) Breakdown {
	return r.score(c, prepare(rawQuery))
}

func (r *Ranker) score(c Candidate, q query) Breakdown {
	var b Breakdown
	b.Weighted = similarity.WeightedRatio(c.NormalizedTitle, q.clean)
	b.TokenSet = similarity.TokenSetRatio(c.Title, q.raw)
	b.TokenSort = similarity.TokenSortRatio(c.Title, q.raw)
	b.Partial = similarity.PartialRatio(c.NormalizedTitle, q.clean)
	if utf8.RuneCountInString(q.signature) >= minSignatureRunes {
		b.Signature = similarity.PartialRatio(normalize.ConsonantSignature(c.NormalizedTitle), q.signature)
	}
	b.Base = max(b.Weighted, b.TokenSet, b.TokenSort, b.Partial, b.Signature)

	if seasonsConflict(q.seasons, normalize.SeasonNumbers(c.Title)) {
		b.Penalty = r.config.SeasonMismatchPenalty
	}
	if containsAllTokens(c.NormalizedTitle, q.tokens) {
		b.Bonus = r.config.Bonus
	}

	score := math.Min(100, b.Base-b.Penalty+b.Bonus)
	b.Score = math.Round(math.Max(0, score)*100) / 100
	return b
}

// Rank scores candidates and returns at most limit results at or above the
// threshold, ordered by score, then title, then id. Duplicate ids keep their
// first occurrence. It stops with ctx.Err() once ctx is done.
func (r *Ranker) Rank(ctx context.Context, candidates []Candidate, rawQuery string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	q := prepare(rawQuery)
	seen := make(map[string]struct{}, len(candidates))
	results := make([]Result, 0, min(len(candidates), limit*2))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		b := r.score(c, q)
		if b.Score < r.config.Threshold {
			continue
		}
		results = append(results, Result{ID: c.ID, Title: c.Title, Score: b.Score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Title != results[j].Title {
			return results[i].Title < results[j].Title
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func containsAllTokens(title string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if !strings.Contains(title, tok) {
			return false
		}
	}
	return true
}

// seasonsConflict is true when both sides name seasons and none overlap.
func seasonsConflict(query, title []int) bool {
	if len(query) == 0 || len(title) == 0 {
		return false
	}
	for _, q := range query {
		for _, t := range title {
			if q == t {
				return false
			}
		}
	}
	return true
}
