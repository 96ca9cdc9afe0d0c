package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexindexer/internal/config"
	"dexindexer/internal/testutil"
)

func TestNew_NilConfig(t *testing.T) {
	_, err := New(testutil.Logger(), nil, Jobs{})
	assert.ErrorContains(t, err, "config is required")
}

func TestNew_BadSpec(t *testing.T) {
	_, err := New(testutil.Logger(), &config.SchedulerConfig{WindowTick: "every minute"}, Jobs{
		WindowTick: func(context.Context) {},
	})
	assert.ErrorContains(t, err, "failed to schedule window_tick")
}

func TestNew_SkipsEmptySpecsAndNilJobs(t *testing.T) {
	s, err := New(testutil.Logger(), &config.SchedulerConfig{
		WindowTick:     "*/5 * * * * *",
		WindowSnapshot: "",
		StatsReport:    "0 * * * * *",
	}, Jobs{
		WindowTick: func(context.Context) {},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_RunsJobs(t *testing.T) {
	var ticks, snapshots atomic.Int32

	s, err := New(testutil.Logger(), &config.SchedulerConfig{
		WindowTick:     "* * * * * *",
		WindowSnapshot: "* * * * * *",
	}, Jobs{
		WindowTick: func(context.Context) { ticks.Add(1) },
		WindowSnapshot: func(context.Context) error {
			snapshots.Add(1)
			return errors.New("redis down")
		},
	})
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return ticks.Load() > 0 && snapshots.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
