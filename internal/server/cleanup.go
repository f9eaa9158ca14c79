package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const cleanupTimeout = 30 * time.Minute

// Pruner is the part of Repository the cleanup job needs.
type Pruner interface {
	UserIDs(ctx context.Context) ([]string, error)
	Prune(ctx context.Context, userID string, keep int) (int64, error)
}

// Cleanup periodically prunes every user's history to keep records.
// Writes already prune; this catches rows left by older deployments or
// a lowered keep setting. Other housekeeping jobs share its scheduler.
type Cleanup struct {
	repo     Pruner
	keep     int
	schedule string
	cron     *cron.Cron
	jobs     int
	logger   zerolog.Logger
}

// NewCleanup creates a cleanup job. An empty schedule disables pruning.
func NewCleanup(repo Pruner, schedule string, keep int, logger zerolog.Logger) *Cleanup {
	return &Cleanup{
		repo:     repo,
		keep:     keep,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.Local)),
		logger:   logger,
	}
}

// Every runs fn at a fixed interval once Start is called.
func (c *Cleanup) Every(interval time.Duration, fn func()) {
	c.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	c.jobs++
}

// Start schedules the prune job and starts the scheduler.
func (c *Cleanup) Start() error {
	if c.schedule != "" {
		_, err := c.cron.AddFunc(c.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			c.RunNow(ctx)
		})
		if err != nil {
			return err
		}
		c.jobs++
		c.logger.Info().Str("schedule", c.schedule).Msg("history cleanup scheduled")
	}
	if c.jobs == 0 {
		return nil
	}
	c.cron.Start()
	return nil
}

// Stop waits for a running job to finish.
func (c *Cleanup) Stop() {
	<-c.cron.Stop().Done()
}

// RunNow prunes every user once and returns the number of rows removed.
// A failure for one user is logged and does not stop the others.
func (c *Cleanup) RunNow(ctx context.Context) (int64, error) {
	ids, err := c.repo.UserIDs(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("cleanup: failed to list users")
		return 0, err
	}

	var total int64
	for _, id := range ids {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := c.repo.Prune(ctx, id, c.keep)
		if err != nil {
			c.logger.Warn().Err(err).Str("user_id", id).Msg("cleanup: prune failed")
			continue
		}
		total += n
	}
	c.logger.Info().Int("users", len(ids)).Int64("removed", total).Msg("history cleanup finished")
	return total, nil
}
