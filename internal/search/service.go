// Package search answers title queries: it narrows the catalog to a bounded
// candidate list, ranks it and caches the outcome.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cinesearch/cinesearch/internal/cache"
	"github.com/cinesearch/cinesearch/internal/search/normalize"
	"github.com/cinesearch/cinesearch/internal/search/ranking"
	"github.com/cinesearch/cinesearch/internal/stats"
)

var (
	// ErrQueryTooShort is returned for queries below the minimum length.
	ErrQueryTooShort = errors.New("query too short")
	// ErrUnavailable wraps timeouts and store failures. Callers may retry.
	ErrUnavailable = errors.New("search temporarily unavailable")
)

// CandidateSource narrows the catalog for a normalized query.
type CandidateSource interface {
	Candidates(ctx context.Context, normalizedQuery string, limit int) ([]ranking.Candidate, error)
}

// Config tunes the search service.
type Config struct {
	DefaultLimit   int            `mapstructure:"default_limit"`
	CandidateLimit int            `mapstructure:"candidate_limit"`
	MinQueryLength int            `mapstructure:"min_query_length"`
	MaxQueryLength int            `mapstructure:"max_query_length"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	MaxConcurrent  int64          `mapstructure:"max_concurrent"`
	CacheTTL       time.Duration  `mapstructure:"cache_ttl"`
	Ranking        ranking.Config `mapstructure:"ranking"`
}

func DefaultConfig() Config {
	return Config{
		DefaultLimit:   20,
		CandidateLimit: 200,
		MinQueryLength: 2,
		MaxQueryLength: 256,
		Timeout:        5 * time.Second,
		MaxConcurrent:  5,
		CacheTTL:       10 * time.Minute,
		Ranking:        ranking.DefaultConfig(),
	}
}

type rankFunc func(ctx context.Context, candidates []ranking.Candidate, query string, limit int) ([]ranking.Result, error)

// Service is safe for concurrent use.
type Service struct {
	source     CandidateSource
	ranker     *ranking.Ranker
	rank       rankFunc
	cache      cache.Store
	sem        *semaphore.Weighted
	stats      *stats.Stats
	cfg        Config
	generation atomic.Int64
	logger     zerolog.Logger
}

// NewService creates a search service. store and st may be nil.
func NewService(source CandidateSource, store cache.Store, st *stats.Stats, cfg Config, logger zerolog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaults.CandidateLimit
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = defaults.MinQueryLength
	}
	if cfg.MaxQueryLength < cfg.MinQueryLength {
		cfg.MaxQueryLength = defaults.MaxQueryLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}

	ranker := ranking.NewRanker(cfg.Ranking)
	s := &Service{
		source: source,
		ranker: ranker,
		rank:   ranker.Rank,
		cache:  store,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		stats:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "search").Logger(),
	}
	s.generation.Store(time.Now().UnixNano())
	return s
}

// Search returns up to limit ranked matches for query. A non-positive limit
// uses the configured default. Queries longer than MaxQueryLength runes are
// truncated.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]ranking.Result, error) {
	query = strings.TrimSpace(query)
	n := utf8.RuneCountInString(query)
	if n < s.cfg.MinQueryLength {
		return nil, ErrQueryTooShort
	}
	if n > s.cfg.MaxQueryLength {
		query = strings.TrimSpace(string([]rune(query)[:s.cfg.MaxQueryLength]))
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	s.stats.RecordSearch()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	key := s.cacheKey(query, limit)
	if results, ok := s.fromCache(ctx, key); ok {
		s.stats.RecordCacheHit()
		return results, nil
	}

	results, err := s.search(ctx, query, limit)
	if err != nil {
		s.stats.RecordFailure()
		s.logger.Warn().Err(err).Str("query", query).Msg("Search failed")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if len(results) == 0 {
		s.stats.RecordEmpty()
	}
	s.toCache(ctx, key, results)

	s.logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

// Invalidate drops every cached result. Call it after catalog writes.
func (s *Service) Invalidate() {
	s.generation.Add(1)
}

// search holds one semaphore slot until ranking returns, including ranking
// abandoned on timeout.
func (s *Service) search(ctx context.Context, query string, limit int) ([]ranking.Result, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	candidates, err := s.source.Candidates(ctx, normalize.Clean(query), s.cfg.CandidateLimit)
	if err != nil {
		s.sem.Release(1)
		return nil, err
	}

	type outcome struct {
		results []ranking.Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer s.sem.Release(1)
		results, err := s.rank(ctx, candidates, query, limit)
		done <- outcome{results: results, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.results, o.err
	}
}

// cacheKey folds case and whitespace only; the ranker still sees the raw
// query, so anything it could distinguish stays in the key.
func (s *Service) cacheKey(query string, limit int) string {
	folded := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("search:%s:%d:%d:%s", normalize.Version, s.generation.Load(), limit, folded)
}

func (s *Service) fromCache(ctx context.Context, key string) ([]ranking.Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var results []ranking.Result
	if err := json.Unmarshal(raw, &results); err != nil {
		s.logger.Debug().Err(err).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	return results, true
}

func (s *Service) toCache(ctx context.Context, key string, results []ranking.Result) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.logger.Debug().Err(err).Msg("Cache write failed")
	}
}
