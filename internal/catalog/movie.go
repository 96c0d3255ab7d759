package catalog

import "time"

// Movie is a catalog entry: a title plus the stored Telegram message that
// carries the file.
type Movie struct {
	ExternalID      string    `json:"externalId" yaml:"external_id"`
	Title           string    `json:"title" yaml:"title"`
	NormalizedTitle string    `json:"normalizedTitle" yaml:"-"`
	TitleSignature  string    `json:"-" yaml:"-"`
	Year            string    `json:"year,omitempty" yaml:"year,omitempty"`
	MediaRef        string    `json:"mediaRef" yaml:"media_ref"`
	Source          Source    `json:"source" yaml:"source"`
	AddedAt         time.Time `json:"addedAt" yaml:"added_at"`
}

// Source points at the message holding the file.
type Source struct {
	ChatID    int64 `json:"chatId" yaml:"chat_id"`
	MessageID int64 `json:"messageId" yaml:"message_id"`
}

// CreateMovieInput contains fields for adding a movie. Derived search
// columns are always computed from Title.
type CreateMovieInput struct {
	ExternalID string
	Title      string
	Year       string
	MediaRef   string
	Source     Source
	AddedAt    time.Time // zero means now
}
