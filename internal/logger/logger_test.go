package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)
	assert.Empty(t, rb.Last(0))

	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, []int{3, 4, 5}, rb.Last(0))
	assert.Equal(t, []int{4, 5}, rb.Last(2))
	assert.Equal(t, []int{3, 4, 5}, rb.Last(10))
}

func TestRecentLog_KeepsWarningsAndAbove(t *testing.T) {
	recent := NewRecentLog(10, zerolog.WarnLevel)
	log := zerolog.New(zerolog.MultiLevelWriter(recent)).With().Timestamp().Logger()

	log.Info().Msg("ignored")
	log.Warn().Str("component", "search").Int("results", 0).Msg("slow query")
	log.Error().Err(errors.New("boom")).Msg("failed")

	entries := recent.Entries(0)
	require.Len(t, entries, 2)

	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "search", entries[0].Component)
	assert.Equal(t, "slow query", entries[0].Message)
	assert.EqualValues(t, 0, entries[0].Fields["results"])
	assert.NotEmpty(t, entries[0].Time)

	assert.Equal(t, "error", entries[1].Level)
	assert.Equal(t, "boom", entries[1].Error)
}

func TestRecentLog_IgnoresMalformed(t *testing.T) {
	recent := NewRecentLog(0, zerolog.WarnLevel)
	n, err := recent.Write([]byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Empty(t, recent.Entries(0))
}

func TestNew_WritesJSONAndRecent(t *testing.T) {
	var out bytes.Buffer
	l := newLogger(Config{Level: "info", Format: "json", RecentSize: 5}, &out)

	l.Debug().Msg("hidden")
	l.WithComponent("bot").Warn().Msg("rate limited")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"component":"bot"`)

	entries := l.Recent().Entries(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "rate limited", entries[0].Message)
	assert.NoError(t, l.Close())
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	l := newLogger(Config{Level: "info", Format: "json", Path: dir}, &out)
	l.Info().Msg("to file")
	require.NoError(t, l.Close())

	assert.FileExists(t, dir+"/cinesearch.log")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}
