// Package app wires the application together and runs its operational modes.
//
// The App type holds the shared dependencies and exposes one method per run
// mode:
//
//   - Serve mode: admin bot, both platform schedulers and the MTProto reader
//     in one process
//   - Scan modes: a single cycle for one platform, then exit
//
// The health and metrics server is started by main alongside whichever mode
// runs.
package app

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/core/llm"
	"github.com/leadscan/lead-scan-bot/internal/ingest/facebook"
	"github.com/leadscan/lead-scan-bot/internal/ingest/telegram"
	"github.com/leadscan/lead-scan-bot/internal/output/notify"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
	"github.com/leadscan/lead-scan-bot/internal/platform/worker"
	"github.com/leadscan/lead-scan-bot/internal/process/batch"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
	db "github.com/leadscan/lead-scan-bot/internal/storage"
	"github.com/leadscan/lead-scan-bot/internal/telegrambot"
)

// scanModeTimer enables the interval schedulers; any other mode leaves
// scanning command-only.
const scanModeTimer = "timer"

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server. It blocks
// until ctx is done.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunServe runs the full service: the MTProto reader session, the scan
// schedulers and the admin bot. It blocks on the bot's update loop.
func (a *App) RunServe(ctx context.Context) error {
	a.logger.Info().Msg("Starting serve mode")

	api, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("bot api init: %w", err)
	}

	notifier := notify.New(api, a.cfg.TargetChatID, a.logger)

	reader := telegram.New(a.cfg.TelegramMTProtoCfg(), a.logger)

	adapters := []scan.SourceAdapter{reader}
	if a.cfg.FacebookEnabled {
		adapters = append(adapters, facebook.New(a.cfg.FacebookCfg(), a.logger))
	}

	scanner := scan.New(a.cfg, a.database, a.newBatcher(), notifier, adapters, a.logger)

	go a.runReader(ctx, reader)
	go a.runScheduler(ctx, scanner, reader)

	b := telegrambot.New(a.cfg, a.database, scanner, api, a.logger)

	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("bot run: %w", err)
	}

	return nil
}

// RunScanOnce runs a single scan cycle for one platform and exits. Used by
// the scan and scanfb modes.
func (a *App) RunScanOnce(ctx context.Context, platform domain.Platform) error {
	a.logger.Info().Str("platform", string(platform)).Msg("Starting single-cycle mode")

	api, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("bot api init: %w", err)
	}

	notifier := notify.New(api, a.cfg.TargetChatID, a.logger)

	var adapters []scan.SourceAdapter

	if platform == domain.PlatformTelegram {
		reader := telegram.New(a.cfg.TelegramMTProtoCfg(), a.logger)
		adapters = append(adapters, reader)

		go a.runReader(ctx, reader)

		if err := reader.WaitReady(ctx); err != nil {
			return fmt.Errorf("reader ready: %w", err)
		}
	} else if a.cfg.FacebookEnabled {
		adapters = append(adapters, facebook.New(a.cfg.FacebookCfg(), a.logger))
	}

	scanner := scan.New(a.cfg, a.database, a.newBatcher(), notifier, adapters, a.logger)

	if err := scanner.RunCycle(ctx, platform); err != nil {
		return fmt.Errorf("scan cycle: %w", err)
	}

	return nil
}

// runReader holds the MTProto session open for the lifetime of the process.
func (a *App) runReader(ctx context.Context, reader *telegram.Reader) {
	if err := reader.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info().Msg("telegram reader stopped")

			return
		}

		a.logger.Error().Err(err).Msg("telegram reader stopped")
	}
}

// runScheduler drives the interval scans. Each platform ticks on its own
// goroutine; the Telegram task additionally waits for the reader session.
func (a *App) runScheduler(ctx context.Context, scanner *scan.Scanner, reader *telegram.Reader) {
	scanCfg := a.cfg.ScanCfg()

	if scanCfg.Mode != scanModeTimer {
		a.logger.Info().Str("mode", scanCfg.Mode).Msg("interval scanning disabled, command-only")

		return
	}

	tasks := []worker.TickerTask{
		{
			Name:       "telegram-scan",
			Interval:   scanCfg.TelegramInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) {
				if err := reader.WaitReady(ctx); err != nil {
					return
				}

				a.runScheduled(ctx, scanner, domain.PlatformTelegram)
			},
		},
	}

	if a.cfg.FacebookEnabled {
		tasks = append(tasks, worker.TickerTask{
			Name:       "facebook-scan",
			Interval:   scanCfg.FacebookInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) {
				a.runScheduled(ctx, scanner, domain.PlatformFacebook)
			},
		})
	}

	err := worker.TickerLoop(ctx, worker.TickerConfig{
		Name:   "scan-scheduler",
		Tasks:  tasks,
		Logger: a.logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error().Err(err).Msg("scan scheduler stopped")
	}
}

func (a *App) runScheduled(ctx context.Context, scanner *scan.Scanner, platform domain.Platform) {
	if err := scanner.RunScheduled(ctx, platform); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error().Err(err).Str("platform", string(platform)).Msg("scheduled scan failed")
	}
}

// newBatcher builds the chunked classifier over the provider registry.
func (a *App) newBatcher() *batch.Batcher {
	return batch.New(a.batchConfig(), llm.New(a.cfg, a.logger), a.logger)
}

func (a *App) batchConfig() batch.Config {
	bc := a.cfg.BatchCfg()

	return batch.Config{
		Size:          bc.Size,
		MaxParallel:   bc.MaxParallel,
		MaxRetries:    bc.MaxRetries,
		RateLimitWait: bc.RateLimitWait,
	}
}
