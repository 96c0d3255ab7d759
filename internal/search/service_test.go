package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesearch/cinesearch/internal/cache"
	"github.com/cinesearch/cinesearch/internal/catalog"
	"github.com/cinesearch/cinesearch/internal/search/normalize"
	"github.com/cinesearch/cinesearch/internal/search/ranking"
	"github.com/cinesearch/cinesearch/internal/stats"
	"github.com/cinesearch/cinesearch/internal/testutil"
)

type fakeSource struct {
	mu         sync.Mutex
	candidates []ranking.Candidate
	err        error
	calls      int
	lastQuery  string
	block      chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeSource) Candidates(ctx context.Context, normalizedQuery string, _ int) ([]ranking.Candidate, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.lastQuery = normalizedQuery
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.candidates, f.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func movie(id, title string) ranking.Candidate {
	return ranking.Candidate{ID: id, Title: title, NormalizedTitle: normalize.NormalizeTitle(title)}
}

func newService(src CandidateSource, cfg Config) (*Service, *stats.Stats) {
	st := stats.New()
	return NewService(src, cache.NewMemoryStore(0), st, cfg, testutil.NopLogger()), st
}

func TestSearch_QueryTooShort(t *testing.T) {
	src := &fakeSource{}
	svc, _ := newService(src, DefaultConfig())

	for _, q := range []string{"", "a", "  b  ", "ब"} {
		_, err := svc.Search(context.Background(), q, 10)
		assert.ErrorIs(t, err, ErrQueryTooShort, "query %q", q)
	}
	assert.Zero(t, src.callCount())
}

func TestSearch_RanksCandidates(t *testing.T) {
	src := &fakeSource{candidates: []ranking.Candidate{
		movie("m1", "Mirzapur Season 1"),
		movie("m2", "Mirzapur Season 2"),
		movie("z1", "Zodiac"),
	}}
	svc, st := newService(src, DefaultConfig())

	results, err := svc.Search(context.Background(), "  Mirzapur Season 2 ", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m2", results[0].ID)
	assert.Equal(t, "m1", results[1].ID)
	assert.Equal(t, "mirzapur", src.lastQuery)
	assert.EqualValues(t, 1, st.Snapshot().Searches)
}

func TestSearch_CachesUntilInvalidated(t *testing.T) {
	src := &fakeSource{candidates: []ranking.Candidate{movie("t1", "Titanic")}}
	svc, st := newService(src, DefaultConfig())
	ctx := context.Background()

	first, err := svc.Search(ctx, "Titanic", 5)
	require.NoError(t, err)
	second, err := svc.Search(ctx, "  titanic ", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.callCount())
	assert.EqualValues(t, 1, st.Snapshot().CacheHits)

	_, err = svc.Search(ctx, "titanic", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount(), "limit is part of the cache key")

	svc.Invalidate()
	_, err = svc.Search(ctx, "titanic", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, src.callCount())
}

func TestSearch_EmptyResultIsNotAnError(t *testing.T) {
	src := &fakeSource{candidates: []ranking.Candidate{movie("z1", "Zodiac")}}
	svc, st := newService(src, DefaultConfig())

	results, err := svc.Search(context.Background(), "mmmmmm", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.EqualValues(t, 1, st.Snapshot().EmptyResults)
}

func TestSearch_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	src := &fakeSource{err: boom}
	svc, st := newService(src, DefaultConfig())

	_, err := svc.Search(context.Background(), "titanic", 5)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, st.Snapshot().Failures)
}

func TestSearch_Timeout(t *testing.T) {
	src := &fakeSource{block: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc, _ := newService(src, cfg)

	start := time.Now()
	_, err := svc.Search(context.Background(), "titanic", 5)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearch_BoundsConcurrency(t *testing.T) {
	src := &fakeSource{
		candidates: []ranking.Candidate{movie("t1", "Titanic")},
		block:      make(chan struct{}),
	}
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 2
	svc := NewService(src, nil, nil, cfg, testutil.NopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Search(context.Background(), fmt.Sprintf("titanic %d", i), 5)
		}(i)
	}

	require.Eventually(t, func() bool { return src.inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.LessOrEqual(t, src.maxInFlight.Load(), int32(2))
	assert.Equal(t, 6, src.callCount())
}

func TestSearch_AbandonedRankingHoldsSlot(t *testing.T) {
	src := &fakeSource{candidates: []ranking.Candidate{movie("t1", "Titanic")}}
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.Timeout = 20 * time.Millisecond
	svc := NewService(src, nil, nil, cfg, testutil.NopLogger())

	unblock := make(chan struct{})
	var rankCalls atomic.Int32
	rank := svc.rank
	svc.rank = func(ctx context.Context, c []ranking.Candidate, q string, limit int) ([]ranking.Result, error) {
		if rankCalls.Add(1) == 1 {
			<-unblock
		}
		return rank(ctx, c, q, limit)
	}

	_, err := svc.Search(context.Background(), "titanic", 5)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = svc.Search(context.Background(), "titanic", 5)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 1, rankCalls.Load())
	assert.Equal(t, 1, src.callCount())

	close(unblock)
	require.Eventually(t, func() bool {
		results, err := svc.Search(context.Background(), "titanic", 5)
		return err == nil && len(results) == 1
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, rankCalls.Load())
}

func TestSearch_TruncatesLongQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"ascii", strings.Repeat("titanic ", 500), 256},
		{"devanagari", strings.Repeat("कांतारा", 600), 256},
		{"short", "titanic", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{candidates: []ranking.Candidate{movie("t1", "Titanic")}}
			svc, _ := newService(src, DefaultConfig())

			_, err := svc.Search(context.Background(), tt.query, 5)
			require.NoError(t, err)
			assert.LessOrEqual(t, utf8.RuneCountInString(src.lastQuery), tt.want)
			assert.NotEmpty(t, src.lastQuery)
		})
	}
}

func TestSearch_EndToEndWithCatalog(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := catalog.NewService(tdb.DB, tdb.Logger)
	ctx := context.Background()

	titles := map[string]string{
		"tt0120338": "Titanic",
		"tt0499549": "Avatar",
		"tt0332280": "The Notebook",
		"tt1375666": "Inception",
		"kantara":   "Kantara",
		"mirzapur1": "Mirzapur Season 1",
		"mirzapur2": "Mirzapur Season 2",
	}
	var msg int64
	for id, title := range titles {
		msg++
		_, err := store.Create(ctx, catalog.CreateMovieInput{
			ExternalID: id,
			Title:      title,
			MediaRef:   "file-" + id,
			Source:     catalog.Source{ChatID: -100, MessageID: msg},
		})
		require.NoError(t, err)
	}

	svc := NewService(store, cache.NewMemoryStore(0), nil, DefaultConfig(), tdb.Logger)

	tests := []struct {
		query string
		limit int
		want  string
	}{
		{"taitanic", 3, "tt0120338"},
		{"ktra", 5, "kantara"},
		{"mirzapur season 2", 5, "mirzapur2"},
		{"inception", 1, "tt1375666"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := svc.Search(ctx, tt.query, tt.limit)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.LessOrEqual(t, len(results), tt.limit)
			assert.Equal(t, tt.want, results[0].ID)
			for _, r := range results {
				assert.GreaterOrEqual(t, r.Score, 50.0)
			}
		})
	}
}
