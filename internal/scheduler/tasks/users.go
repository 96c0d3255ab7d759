package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/scheduler"
)

const CleanupInactiveUsersTaskID = "cleanup-inactive-users"

// InactiveUserCleaner deactivates users who have been silent for days.
type InactiveUserCleaner interface {
	CleanupInactive(ctx context.Context, days int) (int, error)
}

// RegisterCleanupInactiveUsersTask registers the daily inactive-user sweep.
func RegisterCleanupInactiveUsersTask(sched *scheduler.Scheduler, cron string, days int, users InactiveUserCleaner, logger zerolog.Logger) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          CleanupInactiveUsersTaskID,
		Name:        "Cleanup Inactive Users",
		Description: "Marks users inactive after a period without messages",
		Cron:        cron,
		Func: func(ctx context.Context) error {
			n, err := users.CleanupInactive(ctx, days)
			if err != nil {
				return err
			}
			logger.Info().Int("deactivated", n).Int("days", days).Msg("Inactive users cleaned up")
			return nil
		},
	})
}
