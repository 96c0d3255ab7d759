package logger

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

const defaultRecentSize = 200

// Entry is a parsed log line.
type Entry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// RecentLog keeps the latest entries at or above a level. It is a
// zerolog.LevelWriter and expects JSON input.
type RecentLog struct {
	buffer   *RingBuffer[Entry]
	minLevel zerolog.Level
}

func NewRecentLog(size int, minLevel zerolog.Level) *RecentLog {
	if size <= 0 {
		size = defaultRecentSize
	}
	return &RecentLog{
		buffer:   NewRingBuffer[Entry](size),
		minLevel: minLevel,
	}
}

// Write stores p regardless of level.
func (r *RecentLog) Write(p []byte) (int, error) {
	if entry, ok := parseEntry(p); ok {
		r.buffer.Push(entry)
	}
	return len(p), nil
}

// WriteLevel stores p when level is at or above the configured minimum.
func (r *RecentLog) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < r.minLevel {
		return len(p), nil
	}
	return r.Write(p)
}

// Entries returns up to n of the newest entries, oldest first.
func (r *RecentLog) Entries(n int) []Entry {
	return r.buffer.Last(n)
}

func parseEntry(data []byte) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, false
	}

	entry := Entry{}
	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	entry.Time = take(zerolog.TimestampFieldName)
	entry.Level = take(zerolog.LevelFieldName)
	entry.Component = take("component")
	entry.Message = take(zerolog.MessageFieldName)
	entry.Error = take(zerolog.ErrorFieldName)
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}
