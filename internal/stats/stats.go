// Package stats keeps process-wide counters for the bot and exposes them to
// Prometheus and the /stats command.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cinesearch"

// Stats is safe for concurrent use. A nil *Stats ignores every call.
type Stats struct {
	startedAt time.Time

	searches     atomic.Int64
	cacheHits    atomic.Int64
	emptyResults atomic.Int64
	failures     atomic.Int64
	rateLimited  atomic.Int64
	deliveries   atomic.Int64
	autoIndexed  atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	StartedAt    time.Time     `json:"startedAt"`
	Uptime       time.Duration `json:"uptime"`
	Searches     int64         `json:"searches"`
	CacheHits    int64         `json:"cacheHits"`
	EmptyResults int64         `json:"emptyResults"`
	Failures     int64         `json:"failures"`
	RateLimited  int64         `json:"rateLimited"`
	Deliveries   int64         `json:"deliveries"`
	AutoIndexed  int64         `json:"autoIndexed"`
}

func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) RecordSearch() {
	if s != nil {
		s.searches.Add(1)
	}
}

func (s *Stats) RecordCacheHit() {
	if s != nil {
		s.cacheHits.Add(1)
	}
}

func (s *Stats) RecordEmpty() {
	if s != nil {
		s.emptyResults.Add(1)
	}
}

func (s *Stats) RecordFailure() {
	if s != nil {
		s.failures.Add(1)
	}
}

func (s *Stats) RecordRateLimited() {
	if s != nil {
		s.rateLimited.Add(1)
	}
}

func (s *Stats) RecordDelivery() {
	if s != nil {
		s.deliveries.Add(1)
	}
}

func (s *Stats) RecordAutoIndexed() {
	if s != nil {
		s.autoIndexed.Add(1)
	}
}

func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		StartedAt:    s.startedAt,
		Uptime:       time.Since(s.startedAt),
		Searches:     s.searches.Load(),
		CacheHits:    s.cacheHits.Load(),
		EmptyResults: s.emptyResults.Load(),
		Failures:     s.failures.Load(),
		RateLimited:  s.rateLimited.Load(),
		Deliveries:   s.deliveries.Load(),
		AutoIndexed:  s.autoIndexed.Load(),
	}
}

// Register exposes the counters on reg. Values are read at scrape time.
func (s *Stats) Register(reg prometheus.Registerer) error {
	counters := []struct {
		name string
		help string
		v    *atomic.Int64
	}{
		{"searches_total", "Search requests received.", &s.searches},
		{"search_cache_hits_total", "Searches answered from the cache.", &s.cacheHits},
		{"search_empty_total", "Searches that returned no results.", &s.emptyResults},
		{"search_failures_total", "Searches that failed or timed out.", &s.failures},
		{"rate_limited_total", "Messages dropped by the per-user rate limit.", &s.rateLimited},
		{"deliveries_total", "Movie files delivered to users.", &s.deliveries},
		{"auto_indexed_total", "Movies added from library channel posts.", &s.autoIndexed},
	}

	collectors := make([]prometheus.Collector, 0, len(counters)+1)
	for _, c := range counters {
		v := c.v
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(v.Load()) }))
	}
	collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started.",
	}, func() float64 { return time.Since(s.startedAt).Seconds() }))

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
