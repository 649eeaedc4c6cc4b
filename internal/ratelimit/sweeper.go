package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Sweeper periodically removes stale clients from a Store.
type Sweeper struct {
	store     Store
	scheduler gocron.Scheduler
	log       *zerolog.Logger
	now       func() time.Time
}

// NewSweeper schedules Sweep every interval. Call Start to begin.
func NewSweeper(store Store, interval time.Duration, logger *zerolog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s, err := gocron.NewScheduler(gocron.WithLogger(cronLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	sw := &Sweeper{store: store, scheduler: s, log: logger, now: time.Now}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(sw.RunOnce),
		gocron.WithName("ratelimit-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return sw, nil
}

// Start begins running the sweep job.
func (s *Sweeper) Start() {
	s.scheduler.Start()
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		s.log.Warn().Err(err).Msg("rate limit sweep failed")
		return
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("rate limit sweep")
	}
}

// Stop shuts the scheduler down and waits for a running sweep.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// cronLogger routes gocron's own logs to zerolog.
type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Debug(msg string, args ...any) { l.log.Debug().Fields(args).Msg(msg) }
func (l cronLogger) Info(msg string, args ...any)  { l.log.Info().Fields(args).Msg(msg) }
func (l cronLogger) Warn(msg string, args ...any)  { l.log.Warn().Fields(args).Msg(msg) }
func (l cronLogger) Error(msg string, args ...any) { l.log.Error().Fields(args).Msg(msg) }
