// Package scheduler runs the periodic background jobs: the occupancy
// reconciliation cycle and the stale-session audit.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zerolog.Logger
}

func New(clock clockwork.Clock, logger *zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Every runs fn immediately and then every interval until ctx is done. A
// run that overlaps the previous one is skipped, so a slow cycle never
// piles up behind itself.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if err := fn(ctx); err != nil {
				s.logger.Warn().Err(err).Str("job", name).Msg("scheduled job failed")
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("schedule job %s: %w", name, err)
	}
	s.logger.Debug().Str("job", name).Dur("interval", interval).Msg("job scheduled")
	return job.ID().String(), nil
}

func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.scheduler.Jobs())).Msg("starting scheduler")
	s.scheduler.Start()
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("stopping scheduler")
	return s.scheduler.Shutdown()
}
