// Package sweeper runs the periodic cleanup jobs: expired sent-message records and old
// daily-trigger flags.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnipro-bh/omniflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultSchedule runs the sweep at the top of every hour.
	DefaultSchedule = "@hourly"

	// DefaultKeepDays keeps daily-trigger flags long enough for audits without letting
	// the table grow unbounded.
	DefaultKeepDays = 30
)

type Sweeper struct {
	logger   *slog.Logger
	sent     persistence.SentMessageStore
	triggers persistence.DailyTriggerStore
	cron     *cron.Cron
	clock    clockwork.Clock
	schedule string
	keepDays int
}

func NewSweeper(logger *slog.Logger, sent persistence.SentMessageStore, triggers persistence.DailyTriggerStore) *Sweeper {
	return &Sweeper{
		logger:   logger.With("module", "sweeper"),
		sent:     sent,
		triggers: triggers,
		cron:     cron.New(),
		clock:    clockwork.NewRealClock(),
		schedule: DefaultSchedule,
		keepDays: DefaultKeepDays,
	}
}

// WithClock swaps the clock, used by tests to pin the retention boundary.
func (s *Sweeper) WithClock(clock clockwork.Clock) *Sweeper {
	s.clock = clock

	return s
}

// WithSchedule overrides the cron expression.
func (s *Sweeper) WithSchedule(schedule string) *Sweeper {
	s.schedule = schedule

	return s
}

// WithKeepDays overrides the daily-trigger retention window.
func (s *Sweeper) WithKeepDays(keepDays int) *Sweeper {
	s.keepDays = keepDays

	return s
}

// Start registers the sweep on the cron schedule and begins running it. One sweep also
// runs immediately so a crashed instance does not wait a full period to catch up.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.RunOnce(ctx)

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs both sweeps. Each sweep fails independently; a broken store must
// not block the other cleanup.
func (s *Sweeper) RunOnce(ctx context.Context) {
	deleted, err := s.sent.DeleteExpiredSentMessages(ctx)
	if err != nil {
		s.logger.Error("failed to sweep sent message records", "error", err)
	} else if deleted > 0 {
		s.logger.Info("swept sent message records", "deleted", deleted)
	}

	// The retention boundary is computed here, not in the store, so the cutoff is a
	// pure function of the injected clock.
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -s.keepDays).Format(time.DateOnly)

	pruned, err := s.triggers.PruneDailyTriggers(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune daily triggers", "error", err)
	} else if pruned > 0 {
		s.logger.Info("pruned daily triggers", "deleted", pruned, "cutoff_date", cutoff)
	}
}
