package bot

import (
	"context"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/cinesearch/cinesearch/internal/search/ranking"
)

type fakeAPI struct {
	mu        sync.Mutex
	messages  []*tgbot.SendMessageParams
	copies    []*tgbot.CopyMessageParams
	documents []*tgbot.SendDocumentParams
	photos    []*tgbot.SendPhotoParams
	answers   []*tgbot.AnswerCallbackQueryParams

	members  map[int64]models.ChatMemberType
	copyErr  error
	sendErrs map[int64]error
}

func (f *fakeAPI) SendMessage(_ context.Context, p *tgbot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := p.ChatID.(int64); ok {
		if err := f.sendErrs[id]; err != nil {
			return nil, err
		}
	}
	f.messages = append(f.messages, p)
	return &models.Message{ID: len(f.messages)}, nil
}

func (f *fakeAPI) CopyMessage(_ context.Context, p *tgbot.CopyMessageParams) (*models.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, p)
	if f.copyErr != nil {
		return nil, f.copyErr
	}
	return &models.MessageID{ID: 99}, nil
}

func (f *fakeAPI) SendDocument(_ context.Context, p *tgbot.SendDocumentParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, p)
	return &models.Message{}, nil
}

func (f *fakeAPI) SendPhoto(_ context.Context, p *tgbot.SendPhotoParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := p.ChatID.(int64); ok {
		if err := f.sendErrs[id]; err != nil {
			return nil, err
		}
	}
	f.photos = append(f.photos, p)
	return &models.Message{}, nil
}

func (f *fakeAPI) SendVideo(_ context.Context, _ *tgbot.SendVideoParams) (*models.Message, error) {
	return &models.Message{}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p *tgbot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, p)
	return true, nil
}

func (f *fakeAPI) GetChatMember(_ context.Context, p *tgbot.GetChatMemberParams) (*models.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.members[p.UserID]
	if !ok {
		t = models.ChatMemberTypeLeft
	}
	return &models.ChatMember{Type: t}, nil
}

func (f *fakeAPI) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeAPI) lastMessage() *tgbot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

type fakeSearcher struct {
	mu          sync.Mutex
	results     []ranking.Result
	err         error
	queries     []string
	invalidated int
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]ranking.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func (f *fakeSearcher) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}
