package tasks

import (
	"context"

	"github.com/cinesearch/cinesearch/internal/scheduler"
)

const HealthCheckTaskID = "health-check"

// HealthChecker checks every tracked component.
type HealthChecker interface {
	RunChecks(ctx context.Context) error
}

// RegisterHealthCheckTask registers the periodic component check. It also
// runs once at startup so the first summary is not stale.
func RegisterHealthCheckTask(sched *scheduler.Scheduler, cron string, checker HealthChecker) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          HealthCheckTaskID,
		Name:        "Health Check",
		Description: "Pings the database, cache and Telegram API",
		Cron:        cron,
		Func:        checker.RunChecks,
		RunOnStart:  true,
	})
}
