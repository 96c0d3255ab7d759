package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_Snapshot(t *testing.T) {
	s := New()
	s.RecordSearch()
	s.RecordSearch()
	s.RecordCacheHit()
	s.RecordEmpty()
	s.RecordFailure()
	s.RecordDelivery()
	s.RecordAutoIndexed()
	s.RecordRateLimited()

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.Searches)
	assert.EqualValues(t, 1, snap.CacheHits)
	assert.EqualValues(t, 1, snap.EmptyResults)
	assert.EqualValues(t, 1, snap.Failures)
	assert.EqualValues(t, 1, snap.Deliveries)
	assert.EqualValues(t, 1, snap.AutoIndexed)
	assert.EqualValues(t, 1, snap.RateLimited)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestStats_NilIsNoop(t *testing.T) {
	var s *Stats
	s.RecordSearch()
	s.RecordFailure()
	assert.Equal(t, Snapshot{}, s.Snapshot())
}

func TestStats_Register(t *testing.T) {
	s := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, s.Register(reg))

	s.RecordSearch()
	s.RecordSearch()
	s.RecordSearch()

	count, err := testutil.GatherAndCount(reg, "cinesearch_searches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "cinesearch_searches_total" {
			assert.InDelta(t, 3, mf.GetMetric()[0].GetCounter().GetValue(), 0.001)
		}
	}

	assert.Error(t, s.Register(reg), "registering twice must fail")
}
