package bot

import (
	"context"
	"errors"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBroadcastRate stays under Telegram's global limit of about 30
// messages per second.
const DefaultBroadcastRate = 20

// BroadcastMessage is text, or a photo or video with an optional caption.
type BroadcastMessage struct {
	Text    string
	PhotoID string
	VideoID string
}

func (m BroadcastMessage) Empty() bool {
	return m.Text == "" && m.PhotoID == "" && m.VideoID == ""
}

func (m BroadcastMessage) Kind() string {
	switch {
	case m.PhotoID != "":
		return "photo"
	case m.VideoID != "":
		return "video"
	default:
		return "text"
	}
}

// BroadcastReport counts outcomes. Blocked users are also counted as failed.
type BroadcastReport struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Blocked int `json:"blocked"`
}

// Broadcaster sends one message to many users at a bounded rate.
type Broadcaster struct {
	api     func() API
	users   Users
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewBroadcaster(api func() API, users Users, perSecond float64, logger zerolog.Logger) *Broadcaster {
	if perSecond <= 0 {
		perSecond = DefaultBroadcastRate
	}
	return &Broadcaster{
		api:     api,
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// Send delivers msg to every id. Users who blocked the bot are deactivated.
// It stops early only when ctx is done.
func (b *Broadcaster) Send(ctx context.Context, msg BroadcastMessage, ids []int64) (BroadcastReport, error) {
	report := BroadcastReport{Total: len(ids)}
	api := b.api()

	for _, id := range ids {
		if err := b.limiter.Wait(ctx); err != nil {
			return report, err
		}

		err := b.sendWithRetry(ctx, api, msg, id)
		switch {
		case err == nil:
			report.Sent++
		case errors.Is(err, tgbot.ErrorForbidden):
			report.Failed++
			report.Blocked++
			if b.users != nil {
				if derr := b.users.Deactivate(ctx, id); derr != nil {
					b.logger.Warn().Err(derr).Int64("userId", id).Msg("Failed to deactivate user")
				}
			}
		default:
			report.Failed++
			b.logger.Debug().Err(err).Int64("userId", id).Msg("Broadcast delivery failed")
		}
	}

	b.logger.Info().
		Int("total", report.Total).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("blocked", report.Blocked).
		Msg("Broadcast finished")

	return report, nil
}

// sendWithRetry honours a single flood-wait reply before giving up.
func (b *Broadcaster) sendWithRetry(ctx context.Context, api API, msg BroadcastMessage, chatID int64) error {
	err := sendBroadcast(ctx, api, msg, chatID)

	var tooMany *tgbot.TooManyRequestsError
	if !errors.As(err, &tooMany) {
		return err
	}

	wait := time.Duration(tooMany.RetryAfter) * time.Second
	b.logger.Warn().Dur("retryAfter", wait).Msg("Broadcast throttled by Telegram")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return sendBroadcast(ctx, api, msg, chatID)
}

func sendBroadcast(ctx context.Context, api API, msg BroadcastMessage, chatID int64) error {
	var err error
	switch {
	case msg.PhotoID != "":
		_, err = api.SendPhoto(ctx, &tgbot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &models.InputFileString{Data: msg.PhotoID},
			Caption: msg.Text,
		})
	case msg.VideoID != "":
		_, err = api.SendVideo(ctx, &tgbot.SendVideoParams{
			ChatID:  chatID,
			Video:   &models.InputFileString{Data: msg.VideoID},
			Caption: msg.Text,
		})
	default:
		_, err = api.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   msg.Text,
		})
	}
	return err
}
