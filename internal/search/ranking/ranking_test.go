package ranking

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesearch/cinesearch/internal/search/normalize"
)

func candidate(id, title string) Candidate {
	return Candidate{ID: id, Title: title, NormalizedTitle: normalize.NormalizeTitle(title)}
}

func TestRank_InvalidLimit(t *testing.T) {
	r := NewDefaultRanker()

	for _, limit := range []int{0, -1} {
		_, err := r.Rank(context.Background(), []Candidate{candidate("1", "Titanic")}, "titanic", limit)
		assert.ErrorIs(t, err, ErrInvalidLimit)
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	results, err := NewDefaultRanker().Rank(context.Background(), nil, "titanic", 10)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRank_SeasonQueryPrefersMatchingSeason(t *testing.T) {
	candidates := []Candidate{
		candidate("m1", "Mirzapur Season 1"),
		candidate("m2", "Mirzapur Season 2"),
	}

	results, err := NewDefaultRanker().Rank(context.Background(), candidates, "mirzapur season 2", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "m2", results[0].ID)
	assert.Equal(t, "m1", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRank_MisspellingFindsTitle(t *testing.T) {
	candidates := []Candidate{
		candidate("t1", "Titanic"),
		candidate("a1", "Avatar"),
		candidate("n1", "The Notebook"),
		candidate("i1", "Inception"),
	}

	results, err := NewDefaultRanker().Rank(context.Background(), candidates, "taitanic", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "t1", results[0].ID)
}

func TestRank_DroppedVowels(t *testing.T) {
	results, err := NewDefaultRanker().Rank(context.Background(), []Candidate{candidate("k1", "Kantara")}, "ktra", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k1", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, 50.0)
}

func TestRank_AllScoresMeetThreshold(t *testing.T) {
	r := NewDefaultRanker()
	candidates := []Candidate{
		candidate("1", "The Dark Knight"),
		candidate("2", "Dark"),
		candidate("3", "Knight and Day"),
		candidate("4", "Zootopia"),
		candidate("5", "Quantum of Solace"),
	}

	results, err := r.Rank(context.Background(), candidates, "dark knight", 10)
	require.NoError(t, err)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, r.Config().Threshold)
		assert.LessOrEqual(t, res.Score, 100.0)
	}

	var found bool
	for _, res := range results {
		if res.ID == "1" {
			found = true
			assert.InDelta(t, 100, res.Score, 0.001)
		}
		assert.NotEqual(t, "4", res.ID)
	}
	assert.True(t, found)
}

func TestRank_TieBreakByTitleThenID(t *testing.T) {
	candidates := []Candidate{
		candidate("b", "Dune"),
		candidate("a", "Dune"),
		candidate("c", "Dune Part Two"),
	}

	results, err := NewDefaultRanker().Rank(context.Background(), candidates, "dune", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, "c", results[2].ID)
}

func TestRank_LimitAndDedup(t *testing.T) {
	candidates := []Candidate{
		candidate("1", "Dune"),
		candidate("1", "Dune"),
		candidate("2", "Dune Part Two"),
		candidate("3", "Dune Messiah"),
	}

	results, err := NewDefaultRanker().Rank(context.Background(), candidates, "dune", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestRank_Deterministic(t *testing.T) {
	r := NewDefaultRanker()
	candidates := []Candidate{
		candidate("1", "Mirzapur Season 1"),
		candidate("2", "Mirzapur Season 2"),
		candidate("3", "Mirzapur Season 3"),
		candidate("4", "Mismatch"),
	}

	first, err := r.Rank(context.Background(), candidates, "mirzapur", 10)
	require.NoError(t, err)
	second, err := r.Rank(context.Background(), candidates, "mirzapur", 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScore_ContainmentBonus(t *testing.T) {
	r := NewDefaultRanker()

	b := r.Score(candidate("1", "The Dark Knight Rises"), "dark knight")
	assert.Equal(t, r.Config().Bonus, b.Bonus)
	assert.GreaterOrEqual(t, b.Score, b.Base-b.Penalty)
	assert.LessOrEqual(t, b.Score, 100.0)

	miss := r.Score(candidate("2", "The Dark Tower"), "dark knight")
	assert.Zero(t, miss.Bonus)
}

func TestScore_SeasonPenalty(t *testing.T) {
	r := NewDefaultRanker()

	b := r.Score(candidate("1", "Mirzapur Season 1"), "mirzapur season 2")
	assert.Equal(t, r.Config().SeasonMismatchPenalty, b.Penalty)

	same := r.Score(candidate("2", "Mirzapur Season 2"), "mirzapur season 2")
	assert.Zero(t, same.Penalty)

	noSeason := r.Score(candidate("3", "Mirzapur"), "mirzapur season 2")
	assert.Zero(t, noSeason.Penalty)
}

func TestRank_StopsWhenContextDone(t *testing.T) {
	candidates := make([]Candidate, 0, 50)
	for i := 0; i < 50; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("t%d", i), fmt.Sprintf("Titanic %d", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewDefaultRanker().Rank(ctx, candidates, "titanic", 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}
