package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout  = 2 * time.Second
	pollInterval = 2 * time.Millisecond
)

func startLoop(ctx context.Context, cfg TickerConfig) chan error {
	done := make(chan error, 1)

	go func() {
		done <- TickerLoop(ctx, cfg)
	}()

	return done
}

func waitStop(t *testing.T, done chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("loop did not stop")

		return nil
	}
}

func TestTickerLoopRunsTaskOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.Nop()

	var runs atomic.Int64

	done := startLoop(ctx, TickerConfig{
		Name: "test",
		Tasks: []TickerTask{{
			Name:       "task",
			Interval:   time.Hour,
			RunOnStart: true,
			Run: func(context.Context) {
				runs.Add(1)
			},
		}},
		Logger: &logger,
	})

	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, waitTimeout, pollInterval, "task did not run on start")

	cancel()
	require.ErrorIs(t, waitStop(t, done), context.Canceled)
}

func TestTickerLoopTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.Nop()

	var ticks atomic.Int64

	done := startLoop(ctx, TickerConfig{
		Name: "test",
		Tasks: []TickerTask{{
			Name:     "task",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) {
				ticks.Add(1)
			},
		}},
		Logger: &logger,
	})

	require.Eventually(t, func() bool {
		return ticks.Load() >= 2
	}, waitTimeout, pollInterval, "ticker did not fire")

	cancel()
	waitStop(t, done)
}

func TestTickerLoopSkipsDisabledTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.Nop()

	var runs atomic.Int64

	done := startLoop(ctx, TickerConfig{
		Name: "test",
		Tasks: []TickerTask{{
			Name:       "disabled",
			Interval:   0,
			RunOnStart: true,
			Run: func(context.Context) {
				runs.Add(1)
			},
		}},
		Logger: &logger,
	})

	time.Sleep(30 * time.Millisecond)
	cancel()

	require.ErrorIs(t, waitStop(t, done), context.Canceled)
	assert.Zero(t, runs.Load(), "disabled task must never run")
}

func TestTickerLoopCallbacks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.Nop()

	var started, stopped atomic.Bool

	done := startLoop(ctx, TickerConfig{
		Name: "test",
		OnStart: func(context.Context) {
			started.Store(true)
		},
		OnStop: func() {
			stopped.Store(true)
		},
		Logger: &logger,
	})

	cancel()
	waitStop(t, done)

	assert.True(t, started.Load(), "OnStart was not called")
	assert.True(t, stopped.Load(), "OnStop was not called")
}

func TestTickerLoopSurvivesPanickingTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.Nop()

	var runs atomic.Int64

	done := startLoop(ctx, TickerConfig{
		Name: "test",
		Tasks: []TickerTask{{
			Name:     "task",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) {
				runs.Add(1)
				panic("boom")
			},
		}},
		Logger: &logger,
	})

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, waitTimeout, pollInterval, "task did not keep ticking after a panic")

	cancel()
	waitStop(t, done)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}

func TestRecoverPanic(t *testing.T) {
	logger := zerolog.Nop()

	require.NotPanics(t, func() {
		defer RecoverPanic(&logger, "test operation")
		panic("boom")
	})
}
