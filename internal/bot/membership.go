package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Verified users are re-checked after this long so leaving the channel
// eventually revokes access.
const verifiedTTL = 6 * time.Hour

type memberCache struct {
	mu       sync.Mutex
	verified map[int64]time.Time
	ttl      time.Duration
	now      func() time.Time
}

func newMemberCache(ttl time.Duration) *memberCache {
	return &memberCache{
		verified: make(map[int64]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *memberCache) has(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.verified[userID]
	if !ok {
		return false
	}
	if c.now().Sub(at) > c.ttl {
		delete(c.verified, userID)
		return false
	}
	return true
}

func (c *memberCache) add(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified[userID] = c.now()
}

func (c *memberCache) forget(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.verified, userID)
}

// isMember reports whether the user has joined every configured chat. Chats
// the bot cannot inspect do not block access.
func (h *Handler) isMember(ctx context.Context, userID int64) bool {
	chats := requiredChats(h.cfg.JoinChannel, h.cfg.JoinGroup)
	if len(chats) == 0 || h.members.has(userID) {
		return true
	}

	for _, chat := range chats {
		member, err := h.api.GetChatMember(ctx, &tgbot.GetChatMemberParams{
			ChatID: chat,
			UserID: userID,
		})
		if err != nil {
			h.logger.Warn().Err(err).Str("chat", chat).Msg("Membership check failed, allowing user")
			continue
		}
		if !isJoined(member) {
			return false
		}
	}

	h.members.add(userID)
	return true
}

func requiredChats(usernames ...string) []string {
	var chats []string
	for _, name := range usernames {
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		if name != "" {
			chats = append(chats, "@"+name)
		}
	}
	return chats
}

func isJoined(member *models.ChatMember) bool {
	if member == nil {
		return false
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	case models.ChatMemberTypeRestricted:
		return member.Restricted != nil && member.Restricted.IsMember
	default:
		return false
	}
}
