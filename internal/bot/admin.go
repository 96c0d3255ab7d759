package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/cinesearch/cinesearch/internal/catalog"
)

type commandFunc func(ctx context.Context, msg *models.Message, args string)

func (h *Handler) adminCommands() map[string]commandFunc {
	return map[string]commandFunc{
		"stats":             h.cmdStats,
		"total_movies":      h.cmdTotalMovies,
		"add_movie":         h.cmdAddMovie,
		"remove_dead_movie": h.cmdRemoveMovie,
		"rebuild_index":     h.cmdRebuildIndex,
		"broadcast":         h.cmdBroadcast,
		"cleanup_users":     h.cmdCleanupUsers,
		"logs":              h.cmdLogs,
		"refresh":           h.cmdRefresh,
		"reload_config":     h.cmdReloadConfig,
	}
}

func (h *Handler) adminDashboard(ctx context.Context) string {
	return "👑 <b>Admin dashboard</b>\n\n" + formatStats(h.collectStats(ctx)) + "\n\nSend /help for commands."
}

func (h *Handler) collectStats(ctx context.Context) statsView {
	v := statsView{
		Snapshot: h.svc.Stats.Snapshot(),
		Window:   h.usersCfg.ActiveWindow,
	}

	var err error
	if v.Movies, err = h.svc.Catalog.Count(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count movies")
	}
	if h.svc.Users != nil {
		if v.ActiveUsers, err = h.svc.Users.CountActive(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to count users")
		}
		if v.Window > 0 {
			if v.OnlineUsers, err = h.svc.Users.CountActiveSince(ctx, v.Window); err != nil {
				h.logger.Warn().Err(err).Msg("Failed to count recent users")
			}
		}
	}
	return v
}

func (h *Handler) cmdStats(ctx context.Context, msg *models.Message, _ string) {
	h.reply(ctx, msg.Chat.ID, formatStats(h.collectStats(ctx)), nil)
}

func (h *Handler) cmdTotalMovies(ctx context.Context, msg *models.Message, _ string) {
	count, err := h.svc.Catalog.Count(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count movies")
		h.reply(ctx, msg.Chat.ID, "❌ Could not read the catalog.", nil)
		return
	}
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("📊 Indexed titles: <b>%d</b>", count), nil)
}

// parseAddMovieArgs parses "<id> | <title> | <year>". The year is optional.
func parseAddMovieArgs(args string) (id, title, year string, err error) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", errors.New("expected: imdb_id | title | year")
	}
	if strings.ContainsAny(parts[0], " \t") {
		return "", "", "", errors.New("id must not contain spaces")
	}
	if len(parts) == 3 {
		year = parts[2]
	}
	return parts[0], parts[1], year, nil
}

func (h *Handler) cmdAddMovie(ctx context.Context, msg *models.Message, args string) {
	const usage = "⚠️ Usage: reply to a video or document with\n<code>/add_movie imdb_id | title | year</code>"

	reply := msg.ReplyToMessage
	if reply == nil || (reply.Video == nil && reply.Document == nil) {
		h.reply(ctx, msg.Chat.ID, usage, nil)
		return
	}
	id, title, year, err := parseAddMovieArgs(args)
	if err != nil {
		h.reply(ctx, msg.Chat.ID, usage, nil)
		return
	}

	var mediaRef string
	if reply.Video != nil {
		mediaRef = reply.Video.FileID
	} else {
		mediaRef = reply.Document.FileID
	}

	movie, err := h.svc.Catalog.Create(ctx, catalog.CreateMovieInput{
		ExternalID: id,
		Title:      title,
		Year:       year,
		MediaRef:   mediaRef,
		Source:     catalog.Source{ChatID: reply.Chat.ID, MessageID: int64(reply.ID)},
	})
	switch {
	case errors.Is(err, catalog.ErrDuplicateExternalID):
		h.reply(ctx, msg.Chat.ID, "⚠️ A title with this id already exists.", nil)
		return
	case errors.Is(err, catalog.ErrInvalidMovie):
		h.reply(ctx, msg.Chat.ID, "⚠️ "+escape(err.Error()), nil)
		return
	case err != nil:
		h.logger.Error().Err(err).Str("externalId", id).Msg("Failed to add movie")
		h.reply(ctx, msg.Chat.ID, "❌ Could not add the title (database error).", nil)
		return
	}

	h.svc.Search.Invalidate()
	h.logger.Info().Str("externalId", movie.ExternalID).Int64("adminId", msg.From.ID).Msg("Movie added")
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Added <b>%s</b>.", escape(movie.Title)), nil)
}

func (h *Handler) cmdRemoveMovie(ctx context.Context, msg *models.Message, args string) {
	id := strings.TrimSpace(args)
	if id == "" {
		h.reply(ctx, msg.Chat.ID, "⚠️ Usage: <code>/remove_dead_movie id</code>", nil)
		return
	}

	movie, err := h.svc.Catalog.Get(ctx, id)
	if err == nil {
		err = h.svc.Catalog.Delete(ctx, id)
	}
	switch {
	case errors.Is(err, catalog.ErrMovieNotFound):
		h.reply(ctx, msg.Chat.ID, fmt.Sprintf("❌ No title with id <code>%s</code>.", escape(id)), nil)
		return
	case err != nil:
		h.logger.Error().Err(err).Str("externalId", id).Msg("Failed to remove movie")
		h.reply(ctx, msg.Chat.ID, "❌ Could not remove the title (database error).", nil)
		return
	}

	h.svc.Search.Invalidate()
	h.logger.Info().Str("externalId", id).Int64("adminId", msg.From.ID).Msg("Movie removed")
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Removed <b>%s</b> (<code>%s</code>).", escape(movie.Title), escape(id)), nil)
}

func (h *Handler) cmdRebuildIndex(ctx context.Context, msg *models.Message, _ string) {
	h.reply(ctx, msg.Chat.ID, "🔧 Rebuilding normalized titles…", nil)

	updated, total, err := h.svc.Catalog.RebuildNormalizedTitles(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Index rebuild failed")
		h.reply(ctx, msg.Chat.ID, "❌ Rebuild failed, see /logs.", nil)
		return
	}

	h.svc.Search.Invalidate()
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Rebuild complete: <b>%d</b> of %d titles updated.", updated, total), nil)
}

func broadcastFromMessage(msg *models.Message, args string) BroadcastMessage {
	out := BroadcastMessage{Text: strings.TrimSpace(args)}
	reply := msg.ReplyToMessage
	if reply == nil {
		return out
	}
	switch {
	case len(reply.Photo) > 0:
		out.PhotoID = reply.Photo[len(reply.Photo)-1].FileID
	case reply.Video != nil:
		out.VideoID = reply.Video.FileID
	}
	if out.Text == "" {
		out.Text = reply.Caption
	}
	return out
}

func (h *Handler) cmdBroadcast(ctx context.Context, msg *models.Message, args string) {
	bm := broadcastFromMessage(msg, args)
	if bm.Empty() {
		h.reply(ctx, msg.Chat.ID, "⚠️ Usage: <code>/broadcast text</code>, or reply to a photo or video with /broadcast.", nil)
		return
	}

	ids, err := h.svc.Users.ActiveIDs(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list users for broadcast")
		h.reply(ctx, msg.Chat.ID, "❌ Could not load users.", nil)
		return
	}
	if len(ids) == 0 {
		h.reply(ctx, msg.Chat.ID, "⚠️ No active users yet.", nil)
		return
	}

	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("📡 Broadcasting %s to %d users…", bm.Kind(), len(ids)), nil)
	go h.runBroadcast(ctx, msg.Chat.ID, bm, ids)
}

func (h *Handler) runBroadcast(ctx context.Context, adminChat int64, bm BroadcastMessage, ids []int64) {
	report, err := h.broadcaster.Send(ctx, bm, ids)
	if err != nil {
		h.logger.Warn().Err(err).Int("sent", report.Sent).Msg("Broadcast interrupted")
	}
	h.reply(ctx, adminChat, fmt.Sprintf(
		"✅ <b>Broadcast complete</b>\n\nSent: %d\nFailed: %d (blocked %d)\nTotal: %d",
		report.Sent, report.Failed, report.Blocked, report.Total,
	), nil)
}

func (h *Handler) cmdCleanupUsers(ctx context.Context, msg *models.Message, _ string) {
	n, err := h.svc.Users.CleanupInactive(ctx, h.usersCfg.InactiveDays)
	if err != nil {
		h.logger.Error().Err(err).Msg("User cleanup failed")
		h.reply(ctx, msg.Chat.ID, "❌ Cleanup failed.", nil)
		return
	}
	h.reply(ctx, msg.Chat.ID, fmt.Sprintf("🧹 Marked <b>%d</b> users inactive (silent for %d+ days).", n, h.usersCfg.InactiveDays), nil)
}

func (h *Handler) cmdLogs(ctx context.Context, msg *models.Message, _ string) {
	if h.svc.Recent == nil {
		h.reply(ctx, msg.Chat.ID, formatLogs(nil), nil)
		return
	}
	h.reply(ctx, msg.Chat.ID, formatLogs(h.svc.Recent.Entries(logEntriesShown)), nil)
}

func (h *Handler) cmdRefresh(ctx context.Context, msg *models.Message, _ string) {
	if h.svc.Health == nil {
		h.reply(ctx, msg.Chat.ID, "⚠️ Health checks are not configured.", nil)
		return
	}
	if err := h.svc.Health.RunChecks(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Health refresh interrupted")
	}
	h.reply(ctx, msg.Chat.ID, formatHealth(h.svc.Health.GetSummary()), nil)
}

func (h *Handler) cmdReloadConfig(ctx context.Context, msg *models.Message, _ string) {
	h.reply(ctx, msg.Chat.ID, "ℹ️ Configuration is read at startup. Restart the bot to apply changes.", nil)
}
