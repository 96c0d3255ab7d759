// Package users tracks who talks to the bot, for stats and broadcasts.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/database"
)

var ErrUserNotFound = errors.New("user not found")

// DefaultInactiveDays is how long a user may stay silent before
// CleanupInactive marks them inactive.
const DefaultInactiveDays = 30

// User is a Telegram user who interacted with the bot.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username,omitempty"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastActive time.Time `json:"lastActive"`
	IsActive   bool      `json:"isActive"`
}

// Service provides user bookkeeping.
type Service struct {
	db     *database.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new user service.
func NewService(db *database.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "users").Logger(),
		now:    database.Now,
	}
}

// Touch records an interaction, creating the user on first contact and
// reactivating users that were marked inactive.
func (s *Service) Touch(ctx context.Context, u User) error {
	now := s.now()
	_, err := s.db.Conn().ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (user_id, username, first_name, last_name, joined_at, last_active, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_active = excluded.last_active,
			is_active = excluded.is_active
	`), u.ID, u.Username, u.FirstName, u.LastName, now, now, true)
	if err != nil {
		return fmt.Errorf("failed to record user activity: %w", err)
	}
	return nil
}

// Get retrieves a user by Telegram id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.Conn().QueryRowContext(ctx, s.db.Rebind(`
		SELECT user_id, username, first_name, last_name, joined_at, last_active, is_active
		FROM users WHERE user_id = ?
	`), id).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.JoinedAt, &u.LastActive, &u.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// CountActive returns the number of users not marked inactive.
func (s *Service) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.Conn().QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE is_active = ?`), true).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountActiveSince returns how many users interacted within window.
func (s *Service) CountActiveSince(ctx context.Context, window time.Duration) (int, error) {
	var n int
	cutoff := s.now().Add(-window)
	err := s.db.Conn().QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE last_active >= ?`), cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent users: %w", err)
	}
	return n, nil
}

// ActiveIDs returns the ids of every active user, for broadcasts.
func (s *Service) ActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(`SELECT user_id FROM users WHERE is_active = ? ORDER BY user_id`), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Deactivate marks a user inactive, typically after they blocked the bot.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.Conn().ExecContext(ctx, s.db.Rebind(`UPDATE users SET is_active = ? WHERE user_id = ?`), false, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CleanupInactive marks users silent for more than days as inactive and
// returns how many were changed.
func (s *Service) CleanupInactive(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultInactiveDays
	}
	cutoff := s.now().AddDate(0, 0, -days)

	res, err := s.db.Conn().ExecContext(ctx, s.db.Rebind(`
		UPDATE users SET is_active = ? WHERE is_active = ? AND last_active < ?
	`), false, true, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up users: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean up users: %w", err)
	}

	s.logger.Info().Int64("deactivated", n).Int("days", days).Msg("Cleaned up inactive users")
	return int(n), nil
}
