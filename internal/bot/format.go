package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/cinesearch/cinesearch/internal/health"
	"github.com/cinesearch/cinesearch/internal/logger"
	"github.com/cinesearch/cinesearch/internal/search/ranking"
	"github.com/cinesearch/cinesearch/internal/stats"
)

const (
	maxResultButtons = 20
	maxCallbackData  = 64
	maxButtonText    = 60
	maxMessageRunes  = 4000
	logEntriesShown  = 20
)

const (
	joinPromptText = "👋 <b>Welcome!</b>\n\n" +
		"To use the bot, join the channel and the group below, then press <b>I've joined</b>."
	searchHintText = "🎬 <b>Ready to search?</b>\n\n" +
		"Type all or part of a movie name. Misspellings are fine, you will get up to 20 close matches."
	accessGrantedText     = "✅ <b>Access granted!</b>\n\nType a movie name to search."
	queryTooShortText     = "🤔 Please send at least 2 characters."
	searchUnavailableText = "⏳ Search is temporarily unavailable, please try again in a moment."

	adminHelpText = "🎬 <b>Admin commands</b>\n\n" +
		"/stats - bot statistics\n" +
		"/total_movies - number of indexed titles\n" +
		"/add_movie <code>imdb_id | title | year</code> - reply to a video or document\n" +
		"/remove_dead_movie <code>id</code> - delete a title\n" +
		"/rebuild_index - recompute normalized titles\n" +
		"/broadcast <code>text</code> - message every active user (or reply to a photo/video)\n" +
		"/cleanup_users - mark long-silent users inactive\n" +
		"/logs - recent warnings and errors\n" +
		"/refresh - re-run health checks\n" +
		"/reload_config - how to apply config changes\n" +
		"/help - this list"
)

func escape(s string) string {
	return html.EscapeString(s)
}

func noMatchText(query string) string {
	return fmt.Sprintf("🥲 No match for <b>%s</b>. Try a different spelling.", escape(query))
}

func resultsText(query string, n int) string {
	return fmt.Sprintf("🎬 %d results for <b>%s</b>, pick one to get the file:", n, escape(query))
}

// resultsKeyboard renders one button per result. Results whose callback data
// would exceed Telegram's limit are left out.
func resultsKeyboard(results []ranking.Result) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, min(len(results), maxResultButtons))
	for _, r := range results {
		if len(rows) == maxResultButtons {
			break
		}
		data := callbackGetPrefix + r.ID
		if len(data) > maxCallbackData {
			continue
		}
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         truncate("🎬 "+r.Title, maxButtonText),
			CallbackData: data,
		}})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func joinKeyboard(channel, group string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	if name := strings.TrimPrefix(channel, "@"); name != "" {
		rows = append(rows, []models.InlineKeyboardButton{{Text: "🔗 Join channel", URL: "https://t.me/" + name}})
	}
	if name := strings.TrimPrefix(group, "@"); name != "" {
		rows = append(rows, []models.InlineKeyboardButton{{Text: "👥 Join group", URL: "https://t.me/" + name}})
	}
	rows = append(rows, []models.InlineKeyboardButton{{Text: "✅ I've joined", CallbackData: callbackJoined}})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

type statsView struct {
	Snapshot    stats.Snapshot
	Movies      int
	ActiveUsers int
	OnlineUsers int
	Window      time.Duration
}

func formatStats(v statsView) string {
	var b strings.Builder
	b.WriteString("📊 <b>Bot statistics</b>\n\n")
	fmt.Fprintf(&b, "⏱ Uptime: %s\n", formatUptime(v.Snapshot.Uptime))
	fmt.Fprintf(&b, "🎞 Titles: %d\n", v.Movies)
	fmt.Fprintf(&b, "👥 Active users: %d\n", v.ActiveUsers)
	fmt.Fprintf(&b, "🟢 Seen in last %s: %d\n", formatUptime(v.Window), v.OnlineUsers)
	fmt.Fprintf(&b, "🔍 Searches: %d (cache hits %d, no match %d, failed %d)\n",
		v.Snapshot.Searches, v.Snapshot.CacheHits, v.Snapshot.EmptyResults, v.Snapshot.Failures)
	fmt.Fprintf(&b, "🚦 Rate limited: %d\n", v.Snapshot.RateLimited)
	fmt.Fprintf(&b, "📦 Files delivered: %d\n", v.Snapshot.Deliveries)
	fmt.Fprintf(&b, "🤖 Auto-indexed posts: %d", v.Snapshot.AutoIndexed)
	return b.String()
}

// formatUptime renders d as "3h 12m", or "45s" below a minute.
func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatLogs renders entries newest last, dropping the oldest lines when the
// message would be too long.
func formatLogs(entries []logger.Entry) string {
	if len(entries) == 0 {
		return "✅ No recent warnings or errors."
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%s %s", e.Time, strings.ToUpper(e.Level))
		if e.Component != "" {
			line += " [" + e.Component + "]"
		}
		line += " " + e.Message
		if e.Error != "" {
			line += ": " + e.Error
		}
		lines = append(lines, escape(line))
	}

	header := "🧾 <b>Recent warnings</b>\n<pre>"
	footer := "</pre>"
	budget := maxMessageRunes - len([]rune(header+footer))

	start := len(lines)
	used := 0
	for start > 0 {
		n := len([]rune(lines[start-1])) + 1
		if used+n > budget {
			break
		}
		used += n
		start--
	}
	return header + strings.Join(lines[start:], "\n") + footer
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes-1]) + "…"
}

func formatHealth(summary *health.Summary) string {
	if summary == nil || len(summary.Items) == 0 {
		return "⚠️ No components registered."
	}

	var b strings.Builder
	if summary.HasIssues {
		b.WriteString("🩺 <b>Health: issues found</b>\n")
	} else {
		b.WriteString("🩺 <b>Health: all OK</b>\n")
	}
	for _, item := range summary.Items {
		icon := "✅"
		switch item.Status {
		case health.StatusWarning:
			icon = "⚠️"
		case health.StatusError:
			icon = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s", icon, escape(item.Name))
		if item.Status != health.StatusOK && item.Message != "" {
			b.WriteString(": " + escape(item.Message))
		}
	}
	return b.String()
}
