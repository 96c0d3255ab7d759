package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cinesearch/cinesearch/internal/scheduler"
)

const NormalizationCheckTaskID = "normalization-check"

// Normalizer rebuilds derived title columns when the normalization rules
// change.
type Normalizer interface {
	EnsureNormalized(ctx context.Context) (bool, error)
}

// Invalidator drops cached search results.
type Invalidator interface {
	Invalidate()
}

// RegisterNormalizationCheckTask registers the periodic normalization check.
// Cached results are dropped whenever a rebuild ran.
func RegisterNormalizationCheckTask(sched *scheduler.Scheduler, cron string, catalog Normalizer, search Invalidator, logger zerolog.Logger) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          NormalizationCheckTaskID,
		Name:        "Normalization Check",
		Description: "Rebuilds normalized titles after normalization rule changes",
		Cron:        cron,
		Func:        normalizationCheck(catalog, search, logger),
	})
}

func normalizationCheck(catalog Normalizer, search Invalidator, logger zerolog.Logger) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		rebuilt, err := catalog.EnsureNormalized(ctx)
		if err != nil {
			return err
		}
		if rebuilt {
			search.Invalidate()
			logger.Info().Msg("Search cache invalidated after title rebuild")
		}
		return nil
	}
}
