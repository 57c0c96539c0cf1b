package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// TickerTask is one periodic job inside a TickerLoop. A non-positive
// interval disables the task without removing it from the config.
type TickerTask struct {
	// Name identifies the task for logging.
	Name string

	// Interval between runs.
	Interval time.Duration

	// RunOnStart runs the task once before the first tick.
	RunOnStart bool

	// Run executes the task. Ticks are sequential per task; a slow run
	// absorbs the ticks it overlaps.
	Run func(ctx context.Context)
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Tasks are the periodic jobs to run.
	Tasks []TickerTask

	// OnStart is called once before any task runs.
	OnStart func(ctx context.Context)

	// OnStop is called once when the loop exits.
	OnStop func()

	// Logger for the worker.
	Logger *zerolog.Logger
}

// TickerLoop runs each enabled task on its own ticker goroutine and blocks
// until ctx is canceled. Tasks run independently; one task's slow run never
// delays another's ticks. Returns the wrapped context error.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Int("tasks", len(cfg.Tasks)).Msg("starting ticker loop")

	if cfg.OnStart != nil {
		cfg.OnStart(ctx)
	}

	var wg sync.WaitGroup

	for _, task := range cfg.Tasks {
		if task.Interval <= 0 || task.Run == nil {
			logger.Debug().Str(logFieldTask, task.Name).Msg("task disabled")

			continue
		}

		wg.Add(1)

		go func(task TickerTask) {
			defer wg.Done()

			runTask(ctx, task, logger)
		}(task)
	}

	<-ctx.Done()
	wg.Wait()

	if cfg.OnStop != nil {
		cfg.OnStop()
	}

	logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
}

func runTask(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	if task.RunOnStart {
		logger.Debug().Str(logFieldTask, task.Name).Msg("running task on start")
		safeRun(ctx, task, logger)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug().Str(logFieldTask, task.Name).Msg("ticker fired")
			safeRun(ctx, task, logger)
		}
	}
}

// safeRun recovers a panicking run so the task keeps ticking.
func safeRun(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	defer RecoverPanic(logger, task.Name)

	task.Run(ctx)
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
