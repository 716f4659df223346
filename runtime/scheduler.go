// Package runtime runs claw's periodic background jobs.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reindexer re-enqueues messages missing from the semantic index.
type Reindexer interface {
	Reindex(ctx context.Context, batch int) (int, error)
}

// Scheduler runs index reconciliation on a cron schedule.
type Scheduler struct {
	target   Reindexer
	spec     string
	schedule cron.Schedule
	batch    int
	logger   zerolog.Logger
}

// NewScheduler parses spec and returns a scheduler for target.
func NewScheduler(target Reindexer, spec string, batch int, logger zerolog.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, fmt.Errorf("reindex target cannot be nil")
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		target:   target,
		spec:     spec,
		schedule: sched,
		batch:    batch,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}, nil
}

// Start runs one reconciliation immediately, then follows the schedule until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Str("schedule", s.spec).Msg("Starting reconciler")
	s.RunOnce(ctx)

	c := cron.New(
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("Reconciler stopped: context cancelled")
}

// RunOnce performs a single reconciliation pass and returns how many messages were re-enqueued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	n, err := s.target.Reindex(runCtx, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("Reconciliation failed")
		return 0
	}
	if n > 0 {
		s.logger.Info().Int("queued", n).Msg("Reconciliation queued unindexed messages")
	}
	return n
}

// ParseSchedule accepts a cron expression (5 or 6 fields, or a descriptor
// such as "@every 10m") or a plain Go duration like "15m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(spec); err == nil {
		return sched, nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q as cron expression or duration: %w", spec, err)
	}
	if d <= 0 {
		return nil, fmt.Errorf("schedule duration must be positive: %s", spec)
	}
	return cron.ConstantDelaySchedule{Delay: d}, nil
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
