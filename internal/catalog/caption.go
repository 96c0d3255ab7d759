package catalog

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyntheticIDPrefix marks ids generated for posts without an IMDB id.
const SyntheticIDPrefix = "auto_"

// ParsedPost is the metadata pulled out of a library channel post.
type ParsedPost struct {
	Title      string
	Year       string
	ExternalID string // IMDB id when the caption carries one
}

var (
	imdbIDPattern    = regexp.MustCompile(`\btt\d{7,8}\b`)
	parenYearPattern = regexp.MustCompile(`[\(\[]\s*((?:19|20)\d{2})\s*[\)\]]`)
	yearPattern      = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

	// Release tags: everything from the first one on is noise.
	releaseTagPattern = regexp.MustCompile(`(?i)\b(?:2160p|1080p|720p|480p|4k|uhd|hdr10\+?|hdr|web-?dl|webrip|blu-?ray|bdrip|brrip|hdrip|dvdrip|hdtv|hdcam|camrip|pre-?dvd|x264|x265|h\.?26[45]|hevc|10bit|aac|ddp?5\.1|esubs?|dual[\s\.]audio|multi[\s\.]audio)\b`)

	mentionPattern   = regexp.MustCompile(`@\w+`)
	separatorPattern = regexp.MustCompile(`[\._]+`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// ParseChannelPost extracts the title, year and IMDB id from a channel post.
// The first caption line wins; the document file name is the fallback.
func ParseChannelPost(caption, fileName string) ParsedPost {
	source := firstLine(caption)
	if source == "" {
		name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		source = separatorPattern.ReplaceAllString(name, " ")
	}

	parsed := ParsedPost{
		ExternalID: imdbIDPattern.FindString(caption),
		Year:       ExtractYear(source),
	}
	if parsed.ExternalID == "" {
		parsed.ExternalID = imdbIDPattern.FindString(separatorPattern.ReplaceAllString(fileName, " "))
	}
	parsed.Title = cleanTitle(source, parsed.Year)
	return parsed
}

// ExtractYear returns a plausible release year from text, preferring one in
// brackets. Numbers past next year are treated as part of the title.
func ExtractYear(text string) string {
	if m := parenYearPattern.FindStringSubmatch(text); m != nil && plausibleYear(m[1]) {
		return m[1]
	}

	matches := yearPattern.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if plausibleYear(matches[i][1]) {
			return matches[i][1]
		}
	}
	return ""
}

// SyntheticID derives a stable id for posts without an IMDB id. The same
// title and media ref always give the same id.
func SyntheticID(title, mediaRef string) string {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(title+"|"+mediaRef))
	return SyntheticIDPrefix + strings.ReplaceAll(u.String(), "-", "")[:16]
}

func plausibleYear(s string) bool {
	year, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return year >= 1900 && year <= time.Now().Year()+1
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func cleanTitle(text, year string) string {
	title := imdbIDPattern.ReplaceAllString(text, " ")
	title = mentionPattern.ReplaceAllString(title, " ")

	if loc := releaseTagPattern.FindStringIndex(title); loc != nil && loc[0] > 0 {
		title = title[:loc[0]]
	}
	title = parenYearPattern.ReplaceAllString(title, " ")
	title = strings.TrimSpace(spacePattern.ReplaceAllString(title, " "))

	// A bare year at the end is metadata unless it is the whole title.
	if year != "" && strings.HasSuffix(title, " "+year) {
		title = strings.TrimSuffix(title, " "+year)
	}

	return strings.Trim(title, " -|:[]()")
}
