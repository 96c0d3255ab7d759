// Package bot is the Telegram front end: private-chat search, file delivery,
// library channel auto-indexing and admin commands.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/catalog"
	"github.com/cinesearch/cinesearch/internal/config"
	"github.com/cinesearch/cinesearch/internal/health"
	"github.com/cinesearch/cinesearch/internal/logger"
	"github.com/cinesearch/cinesearch/internal/search/ranking"
	"github.com/cinesearch/cinesearch/internal/stats"
	"github.com/cinesearch/cinesearch/internal/users"
)

// API is the subset of the Telegram Bot API the handlers use.
type API interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *tgbot.CopyMessageParams) (*models.MessageID, error)
	SendDocument(ctx context.Context, params *tgbot.SendDocumentParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *tgbot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *tgbot.SendVideoParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *tgbot.AnswerCallbackQueryParams) (bool, error)
	GetChatMember(ctx context.Context, params *tgbot.GetChatMemberParams) (*models.ChatMember, error)
}

// Searcher answers title queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]ranking.Result, error)
	Invalidate()
}

// Catalog is the movie store.
type Catalog interface {
	Get(ctx context.Context, externalID string) (*catalog.Movie, error)
	Create(ctx context.Context, input catalog.CreateMovieInput) (*catalog.Movie, error)
	Delete(ctx context.Context, externalID string) error
	Count(ctx context.Context) (int, error)
	RebuildNormalizedTitles(ctx context.Context) (updated, total int, err error)
}

// Users tracks who talks to the bot.
type Users interface {
	Touch(ctx context.Context, u users.User) error
	CountActive(ctx context.Context) (int, error)
	CountActiveSince(ctx context.Context, window time.Duration) (int, error)
	ActiveIDs(ctx context.Context) ([]int64, error)
	Deactivate(ctx context.Context, id int64) error
	CleanupInactive(ctx context.Context, days int) (int, error)
}

// RecentLogs returns buffered warnings and errors.
type RecentLogs interface {
	Entries(n int) []logger.Entry
}

// Health runs component checks and reports their last state.
type Health interface {
	RunChecks(ctx context.Context) error
	GetSummary() *health.Summary
}

// Services are the collaborators the handlers call into. Stats, Recent and
// Health may be nil.
type Services struct {
	Search  Searcher
	Catalog Catalog
	Users   Users
	Stats   *stats.Stats
	Recent  RecentLogs
	Health  Health
}

// Bot owns the Telegram client and delivers updates to the handler by long
// polling or webhook.
type Bot struct {
	client  *tgbot.Bot
	handler *Handler
	cfg     config.TelegramConfig
	logger  zerolog.Logger
}

var allowedUpdates = []string{"message", "channel_post", "callback_query"}

// New creates the Telegram client. It calls getMe, so callers should retry
// transient failures.
func New(cfg config.TelegramConfig, usersCfg config.UsersConfig, svc Services, logger zerolog.Logger) (*Bot, error) {
	h := NewHandler(nil, cfg, usersCfg, svc, logger)
	log := logger.With().Str("component", "telegram").Logger()

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(h.HandleUpdate),
		tgbot.WithAllowedUpdates(allowedUpdates),
		tgbot.WithErrorsHandler(func(err error) {
			log.Warn().Err(err).Msg("Telegram API error")
		}),
	}
	if cfg.WebhookSecret != "" {
		opts = append(opts, tgbot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	client, err := tgbot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}
	h.api = client

	return &Bot{
		client:  client,
		handler: h,
		cfg:     cfg,
		logger:  log,
	}, nil
}

// Handler returns the update handler.
func (b *Bot) Handler() *Handler {
	return b.handler
}

// UsesWebhook reports whether updates arrive over HTTP.
func (b *Bot) UsesWebhook() bool {
	return b.cfg.WebhookURL != ""
}

// WebhookHandler returns the HTTP handler Telegram posts updates to. The
// secret token header is checked when one is configured.
func (b *Bot) WebhookHandler() http.Handler {
	return b.client.WebhookHandler()
}

// Ping checks that the Bot API accepts the token.
func (b *Bot) Ping(ctx context.Context) error {
	_, err := b.client.GetMe(ctx)
	return err
}

// Run processes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.handler.limiter.StartCleanup(ctx, time.Minute)

	if b.UsesWebhook() {
		if _, err := b.client.SetWebhook(ctx, &tgbot.SetWebhookParams{
			URL:            b.cfg.WebhookURL,
			SecretToken:    b.cfg.WebhookSecret,
			AllowedUpdates: allowedUpdates,
		}); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		b.logger.Info().Str("url", b.cfg.WebhookURL).Msg("Receiving updates by webhook")
		b.client.StartWebhook(ctx)
		return nil
	}

	if _, err := b.client.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	b.logger.Info().Msg("Receiving updates by long polling")
	b.client.Start(ctx)
	return nil
}
