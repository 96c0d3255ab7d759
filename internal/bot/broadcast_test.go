package bot

import (
	"context"
	"fmt"
	"testing"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesearch/cinesearch/internal/users"
)

func TestBroadcaster_Send(t *testing.T) {
	hs := newHarness(t, nil)
	ctx := context.Background()

	for _, id := range []int64{10, 11, 12} {
		require.NoError(t, hs.users.Touch(ctx, users.User{ID: id}))
	}
	hs.api.sendErrs = map[int64]error{
		11: fmt.Errorf("%w, Forbidden: bot was blocked by the user", tgbot.ErrorForbidden),
		12: fmt.Errorf("%w, chat not found", tgbot.ErrorBadRequest),
	}

	b := NewBroadcaster(func() API { return hs.api }, hs.users, 1000, zerolog.Nop())
	report, err := b.Send(ctx, BroadcastMessage{Text: "New movies added!"}, []int64{10, 11, 12})
	require.NoError(t, err)

	assert.Equal(t, BroadcastReport{Total: 3, Sent: 1, Failed: 2, Blocked: 1}, report)
	assert.Equal(t, []string{"New movies added!"}, hs.api.sentTexts())

	blocked, err := hs.users.Get(ctx, 11)
	require.NoError(t, err)
	assert.False(t, blocked.IsActive)

	failed, err := hs.users.Get(ctx, 12)
	require.NoError(t, err)
	assert.True(t, failed.IsActive, "only blocked users are deactivated")
}

func TestBroadcaster_Photo(t *testing.T) {
	api := &fakeAPI{}
	b := NewBroadcaster(func() API { return api }, nil, 1000, zerolog.Nop())

	report, err := b.Send(context.Background(), BroadcastMessage{Text: "caption", PhotoID: "photo-1"}, []int64{7})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, api.photos, 1)
	assert.Equal(t, "caption", api.photos[0].Caption)
	assert.Equal(t, "photo-1", api.photos[0].Photo.(*models.InputFileString).Data)
}

func TestBroadcaster_StopsOnCancel(t *testing.T) {
	api := &fakeAPI{}
	b := NewBroadcaster(func() API { return api }, nil, 1000, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := b.Send(ctx, BroadcastMessage{Text: "hi"}, []int64{1, 2, 3})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Sent)
}

func TestBroadcastFromMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *models.Message
		args string
		want BroadcastMessage
	}{
		{
			name: "text",
			msg:  &models.Message{},
			args: " hello ",
			want: BroadcastMessage{Text: "hello"},
		},
		{
			name: "reply to photo uses largest size and caption",
			msg: &models.Message{ReplyToMessage: &models.Message{
				Caption: "poster",
				Photo:   []models.PhotoSize{{FileID: "small"}, {FileID: "large"}},
			}},
			want: BroadcastMessage{Text: "poster", PhotoID: "large"},
		},
		{
			name: "reply to video with explicit text",
			msg: &models.Message{ReplyToMessage: &models.Message{
				Caption: "ignored",
				Video:   &models.Video{FileID: "vid"},
			}},
			args: "trailer",
			want: BroadcastMessage{Text: "trailer", VideoID: "vid"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, broadcastFromMessage(tt.msg, tt.args))
		})
	}
	assert.True(t, BroadcastMessage{}.Empty())
}
