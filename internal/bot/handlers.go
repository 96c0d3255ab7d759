package bot

import (
	"context"
	"errors"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/catalog"
	"github.com/cinesearch/cinesearch/internal/config"
	"github.com/cinesearch/cinesearch/internal/ratelimit"
	"github.com/cinesearch/cinesearch/internal/search"
	"github.com/cinesearch/cinesearch/internal/users"
)

const (
	callbackJoined    = "joined"
	callbackGetPrefix = "get_"
)

// Handler routes Telegram updates. It is safe for concurrent use.
type Handler struct {
	api         API
	cfg         config.TelegramConfig
	usersCfg    config.UsersConfig
	svc         Services
	limiter     *ratelimit.Limiter[int64]
	members     *memberCache
	broadcaster *Broadcaster
	logger      zerolog.Logger
}

// NewHandler creates a handler. api may be set later by New.
func NewHandler(api API, cfg config.TelegramConfig, usersCfg config.UsersConfig, svc Services, logger zerolog.Logger) *Handler {
	h := &Handler{
		api:      api,
		cfg:      cfg,
		usersCfg: usersCfg,
		svc:      svc,
		limiter:  ratelimit.New[int64](cfg.UserRate, 1),
		members:  newMemberCache(verifiedTTL),
		logger:   logger.With().Str("component", "bot").Logger(),
	}
	h.broadcaster = NewBroadcaster(h.sender, svc.Users, cfg.BroadcastRate, h.logger)
	return h
}

func (h *Handler) sender() API {
	return h.api
}

// HandleUpdate is the go-telegram default handler.
func (h *Handler) HandleUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	switch {
	case update.ChannelPost != nil:
		h.handleChannelPost(ctx, update.ChannelPost)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	h.touch(ctx, msg.From)

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		cmd, args := parseCommand(text)
		h.handleCommand(ctx, msg, cmd, args)
		return
	}

	if msg.Chat.Type == models.ChatTypePrivate && text != "" {
		h.handleSearch(ctx, msg, text)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *models.Message, cmd, args string) {
	switch cmd {
	case "start":
		h.handleStart(ctx, msg)
		return
	case "help":
		h.handleHelp(ctx, msg)
		return
	}

	if !h.cfg.IsAdmin(msg.From.ID) {
		return
	}
	if handler, ok := h.adminCommands()[cmd]; ok {
		handler(ctx, msg, args)
	}
}

func (h *Handler) touch(ctx context.Context, from *models.User) {
	if h.svc.Users == nil {
		return
	}
	err := h.svc.Users.Touch(ctx, users.User{
		ID:        from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	})
	if err != nil {
		h.logger.Warn().Err(err).Int64("userId", from.ID).Msg("Failed to record user")
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	if h.cfg.IsAdmin(userID) {
		h.reply(ctx, msg.Chat.ID, h.adminDashboard(ctx), nil)
		return
	}
	if !h.isMember(ctx, userID) {
		h.reply(ctx, msg.Chat.ID, joinPromptText, joinKeyboard(h.cfg.JoinChannel, h.cfg.JoinGroup))
		return
	}
	h.reply(ctx, msg.Chat.ID, searchHintText, nil)
}

func (h *Handler) handleHelp(ctx context.Context, msg *models.Message) {
	if h.cfg.IsAdmin(msg.From.ID) {
		h.reply(ctx, msg.Chat.ID, adminHelpText, nil)
		return
	}
	h.reply(ctx, msg.Chat.ID, searchHintText, nil)
}

func (h *Handler) handleSearch(ctx context.Context, msg *models.Message, query string) {
	userID := msg.From.ID

	if !h.limiter.Allow(userID) {
		h.svc.Stats.RecordRateLimited()
		h.logger.Debug().Int64("userId", userID).Msg("Search rate limited")
		return
	}
	if !h.cfg.IsAdmin(userID) && !h.isMember(ctx, userID) {
		h.reply(ctx, msg.Chat.ID, joinPromptText, joinKeyboard(h.cfg.JoinChannel, h.cfg.JoinGroup))
		return
	}

	results, err := h.svc.Search.Search(ctx, query, maxResultButtons)
	switch {
	case errors.Is(err, search.ErrQueryTooShort):
		h.reply(ctx, msg.Chat.ID, queryTooShortText, nil)
		return
	case err != nil:
		h.reply(ctx, msg.Chat.ID, searchUnavailableText, nil)
		return
	case len(results) == 0:
		h.reply(ctx, msg.Chat.ID, noMatchText(query), nil)
		return
	}

	h.reply(ctx, msg.Chat.ID, resultsText(query, len(results)), resultsKeyboard(results))
}

func (h *Handler) handleCallback(ctx context.Context, cq *models.CallbackQuery) {
	switch {
	case cq.Data == callbackJoined:
		h.handleJoined(ctx, cq)
	case strings.HasPrefix(cq.Data, callbackGetPrefix):
		h.handleGet(ctx, cq, strings.TrimPrefix(cq.Data, callbackGetPrefix))
	default:
		h.answer(ctx, cq.ID, "", false)
	}
}

func (h *Handler) handleJoined(ctx context.Context, cq *models.CallbackQuery) {
	userID := cq.From.ID
	h.members.forget(userID)

	if !h.isMember(ctx, userID) {
		h.answer(ctx, cq.ID, "Please join the channel and the group first.", true)
		return
	}
	h.answer(ctx, cq.ID, "Access granted!", false)
	h.reply(ctx, userID, accessGrantedText, nil)
}

func (h *Handler) handleGet(ctx context.Context, cq *models.CallbackQuery, externalID string) {
	userID := cq.From.ID
	if !h.cfg.IsAdmin(userID) && !h.isMember(ctx, userID) {
		h.answer(ctx, cq.ID, "Access denied. Join the channel and group first.", true)
		return
	}

	movie, err := h.svc.Catalog.Get(ctx, externalID)
	if errors.Is(err, catalog.ErrMovieNotFound) {
		h.answer(ctx, cq.ID, "This title is no longer available.", true)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("externalId", externalID).Msg("Failed to load movie")
		h.answer(ctx, cq.ID, "Something went wrong, please try again.", true)
		return
	}

	if err := h.deliver(ctx, userID, movie); err != nil {
		h.logger.Warn().Err(err).Str("externalId", externalID).Int64("userId", userID).Msg("Delivery failed")
		h.answer(ctx, cq.ID, "Could not send the file, please try again later.", true)
		return
	}

	h.svc.Stats.RecordDelivery()
	h.answer(ctx, cq.ID, "Sent!", false)
}

// deliver copies the library post to the user and falls back to resending
// the stored file id when the post is gone.
func (h *Handler) deliver(ctx context.Context, userID int64, movie *catalog.Movie) error {
	_, copyErr := h.api.CopyMessage(ctx, &tgbot.CopyMessageParams{
		ChatID:     userID,
		FromChatID: movie.Source.ChatID,
		MessageID:  int(movie.Source.MessageID),
	})
	if copyErr == nil {
		return nil
	}
	if movie.MediaRef == "" {
		return copyErr
	}

	h.logger.Debug().Err(copyErr).Str("externalId", movie.ExternalID).Msg("Copy failed, resending file")
	_, err := h.api.SendDocument(ctx, &tgbot.SendDocumentParams{
		ChatID:    userID,
		Document:  &models.InputFileString{Data: movie.MediaRef},
		Caption:   "<b>" + escape(movie.Title) + "</b>",
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return errors.Join(copyErr, err)
	}
	return nil
}

func (h *Handler) handleChannelPost(ctx context.Context, post *models.Message) {
	if h.cfg.LibraryChannelID == 0 || post.Chat.ID != h.cfg.LibraryChannelID {
		return
	}

	var mediaRef, uniqueID, fileName string
	switch {
	case post.Document != nil:
		mediaRef, uniqueID, fileName = post.Document.FileID, post.Document.FileUniqueID, post.Document.FileName
	case post.Video != nil:
		mediaRef, uniqueID, fileName = post.Video.FileID, post.Video.FileUniqueID, post.Video.FileName
	default:
		return
	}

	parsed := catalog.ParseChannelPost(post.Caption, fileName)
	if parsed.Title == "" {
		h.logger.Warn().Int("messageId", post.ID).Msg("Skipping channel post without a title")
		return
	}

	externalID := parsed.ExternalID
	if externalID == "" {
		externalID = catalog.SyntheticID(parsed.Title, uniqueID)
	}

	movie, err := h.svc.Catalog.Create(ctx, catalog.CreateMovieInput{
		ExternalID: externalID,
		Title:      parsed.Title,
		Year:       parsed.Year,
		MediaRef:   mediaRef,
		Source:     catalog.Source{ChatID: post.Chat.ID, MessageID: int64(post.ID)},
	})
	if errors.Is(err, catalog.ErrDuplicateExternalID) {
		h.logger.Debug().Str("externalId", externalID).Msg("Channel post already indexed")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("title", parsed.Title).Msg("Auto-index failed")
		return
	}

	h.svc.Search.Invalidate()
	h.svc.Stats.RecordAutoIndexed()
	h.logger.Info().
		Str("externalId", movie.ExternalID).
		Str("title", movie.Title).
		Msg("Auto-indexed channel post")
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	disabled := true
	params := &tgbot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: &disabled},
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := h.api.SendMessage(ctx, params); err != nil {
		h.logger.Warn().Err(err).Int64("chatId", chatID).Msg("Failed to send message")
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string, alert bool) {
	if _, err := h.api.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to answer callback")
	}
}

// parseCommand splits "/cmd@bot args" into "cmd" and "args".
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	cmd, args, _ = strings.Cut(text, " ")
	if i := strings.IndexAny(cmd, "\n\t"); i >= 0 {
		args = cmd[i+1:] + " " + args
		cmd = cmd[:i]
	}
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}
