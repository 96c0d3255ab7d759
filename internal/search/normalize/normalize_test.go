package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"only punctuation", "!!! ??", ""},
		{"trims and lowercases", "  The Dark KNIGHT  ", "the dark knight"},
		{"punctuation becomes space", "Spider-Man: No Way Home", "spider man no way home"},
		{"strips latin accents", "Amélie", "amelie"},
		{"drops apostrophes", "Ocean's 11", "oceans 11"},
		{"season word", "Mirzapur Season 2", "mirzapur"},
		{"season glued", "Mirzapur Season2", "mirzapur"},
		{"short marker", "Panchayat S3", "panchayat"},
		{"season and episode", "Dark S01E03", "dark"},
		{"season then episode word", "Dark season 1 episode 4", "dark"},
		{"nested markers", "season season 1 1", ""},
		{"keeps years", "Kantara (2022)", "kantara 2022"},
		{"keeps words starting with s", "Se7en", "se7en"},
		{"keeps season without number", "Season of the Witch", "season of the witch"},
		{"underscores split", "the_office", "the office"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.input))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Mirzapur Season 2",
		"season season 1 1",
		"s s 1 1 e e 2 2",
		"Amélie Poulain",
		"Spider-Man: Across the Spider-Verse",
		"मिर्ज़ापुर",
		"कांतारा 2022",
		"Straße",
		"Ocean's   Eleven!!",
		"ǅemal",
	}

	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestClean_KeepsDevanagari(t *testing.T) {
	got := Clean("मिर्ज़ापुर Season 2")
	assert.NotEmpty(t, got)
	assert.NotContains(t, got, "season")
	assert.Equal(t, got, Clean("मिर्ज़ापुर"))
}

func TestNormalizeTitle_MatchesClean(t *testing.T) {
	for _, title := range []string{"The Matrix Reloaded", "Mirzapur Season 1", "Kantara"} {
		assert.Equal(t, Clean(title), NormalizeTitle(title))
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"the", "dark", "knight"}, Tokens("The Dark-Knight"))
	assert.Empty(t, Tokens("Season 2"))
}

func TestPhoneticFold(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"Phir", "Fir"},
		{"Khiladi", "Kiladi"},
		{"Deewana", "Diwana"},
		{"Dhoom", "Dhum"},
		{"Qayamat", "Kayamat"},
		{"Jack", "Jak"},
		{"Mirzapur", "Mirjapur"},
	}

	for _, tt := range tests {
		t.Run(tt.a, func(t *testing.T) {
			assert.Equal(t, PhoneticFold(tt.a), PhoneticFold(tt.b))
		})
	}

	assert.Equal(t, "fir", PhoneticFold("Phir"))
	assert.Equal(t, "", PhoneticFold(""))
}

func TestPhoneticFold_KeepsRepeatedDigits(t *testing.T) {
	assert.Equal(t, "kantara 2022", PhoneticFold("Kantara 2022"))
}

func TestConsonantSignature(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Kantara", "kntr"},
		{"ktra", "ktr"},
		{"Titanic", "ttnk"},
		{"taitanic", "ttnk"},
		{"Kantara 2022", "kntr2022"},
		{"", ""},
		{"aeiou", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ConsonantSignature(tt.input))
		})
	}
}

func TestSeasonNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  []int
	}{
		{"Mirzapur Season 2", []int{2}},
		{"Dark S01E03", []int{1}},
		{"mirzapur season 1", []int{1}},
		{"The Boys S02 and Season 3", []int{2, 3}},
		{"Titanic", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SeasonNumbers(tt.input))
		})
	}
}
