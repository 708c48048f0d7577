package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnipro-bh/omniflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSent struct {
	deleted int64
	err     error
	calls   int
}

func (s *fakeSent) SaveSentMessage(context.Context, *models.SentMessageRecord) error { return nil }

func (s *fakeSent) SentMessageByProviderID(context.Context, string) (*models.SentMessageRecord, error) {
	return nil, nil
}

func (s *fakeSent) DeleteExpiredSentMessages(context.Context) (int64, error) {
	s.calls++

	return s.deleted, s.err
}

type fakeTriggers struct {
	pruned int64
	err    error
	cutoff string
	calls  int
}

func (s *fakeTriggers) InsertDailyTrigger(context.Context, *models.DailyTriggerFlag) error {
	return nil
}

func (s *fakeTriggers) PruneDailyTriggers(_ context.Context, cutoffDate string) (int64, error) {
	s.calls++
	s.cutoff = cutoffDate

	return s.pruned, s.err
}

func newTestSweeper(sent *fakeSent, triggers *fakeTriggers) *Sweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewSweeper(logger, sent, triggers)
}

func TestRunOnceSweepsBothStores(t *testing.T) {
	sent := &fakeSent{deleted: 3}
	triggers := &fakeTriggers{pruned: 7}

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC))

	sweeper := newTestSweeper(sent, triggers).WithKeepDays(14).WithClock(clock)
	sweeper.RunOnce(context.Background())

	assert.Equal(t, 1, sent.calls)
	assert.Equal(t, 1, triggers.calls)

	// 14 days of retention counted back from the fake clock.
	assert.Equal(t, "2025-05-27", triggers.cutoff)
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	sent := &fakeSent{err: errors.New("redis down")}
	triggers := &fakeTriggers{pruned: 2}

	sweeper := newTestSweeper(sent, triggers)
	sweeper.RunOnce(context.Background())

	// The trigger prune still ran despite the sent-message sweep failing.
	assert.Equal(t, 1, triggers.calls)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	sweeper := newTestSweeper(&fakeSent{}, &fakeTriggers{}).WithSchedule("not a cron expr")

	err := sweeper.Start(context.Background())
	require.Error(t, err)
}

func TestStartRunsImmediateSweep(t *testing.T) {
	sent := &fakeSent{}
	triggers := &fakeTriggers{}

	sweeper := newTestSweeper(sent, triggers)
	require.NoError(t, sweeper.Start(context.Background()))

	defer sweeper.Stop()

	assert.Equal(t, 1, sent.calls)
	assert.Equal(t, 1, triggers.calls)
}
