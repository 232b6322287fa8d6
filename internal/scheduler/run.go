package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/service"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) error
}

// Jobs returns the jobs selected by mode: trials, reminders or all.
func Jobs(mode string, trials service.TrialService, trialEvery, reminderEvery time.Duration) ([]Job, error) {
	expire := Job{
		Name:     "trials",
		Interval: trialEvery,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := trials.ExpireTrials(ctx, now)
			return err
		},
	}
	remind := Job{
		Name:     "reminders",
		Interval: reminderEvery,
		Run: func(ctx context.Context, now time.Time) error {
			_, err := trials.SendPaymentReminders(ctx, now)
			return err
		},
	}
	switch mode {
	case "trials":
		return []Job{expire}, nil
	case "reminders":
		return []Job{remind}, nil
	case "all":
		return []Job{expire, remind}, nil
	default:
		return nil, fmt.Errorf("invalid mode %q: want trials|reminders|all", mode)
	}
}

// Run executes job now and then on every tick until ctx is cancelled. Failed
// runs are logged and retried on the next tick. With once set it runs a
// single time and returns that run's error.
func Run(ctx context.Context, logger zerolog.Logger, job Job, once bool) error {
	logger = logger.With().Str("job", job.Name).Logger()
	if once {
		return job.Run(ctx, time.Now().UTC())
	}
	if job.Interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", job.Name)
	}

	logger.Info().Dur("interval", job.Interval).Msg("Starting scheduled job")
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		if err := job.Run(ctx, time.Now().UTC()); err != nil {
			logger.Error().Err(err).Msg("Scheduled job failed")
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down scheduled job")
			return nil
		case <-ticker.C:
		}
	}
}

// RunAll runs every job concurrently and waits for all of them.
func RunAll(ctx context.Context, logger zerolog.Logger, jobs []Job, once bool) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			return Run(gctx, logger, job, once)
		})
	}
	return g.Wait()
}
