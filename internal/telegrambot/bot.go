// Package telegrambot is the operator control surface: a long-polling
// command bot gated to admin IDs. It triggers manual scan cycles, flips the
// per-platform pause switches and resets committed scan progress.
package telegrambot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/output/notify"
	"github.com/leadscan/lead-scan-bot/internal/platform/config"
	"github.com/leadscan/lead-scan-bot/internal/platform/worker"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

// Command names.
const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdScan     = "scan"
	cmdScanFB   = "scanfb"
	cmdPause    = "pause"
	cmdPauseFB  = "pausefb"
	cmdResume   = "resume"
	cmdResumeFB = "resumefb"
	cmdStatus   = "status"
	cmdReset    = "reset"
)

// Callback data for the reset confirmation keyboard.
const (
	callbackResetConfirm = "reset:confirm"
	callbackResetCancel  = "reset:cancel"
)

// Log field names.
const (
	logFieldUserID   = "user_id"
	logFieldUsername = "username"
	logFieldPlatform = "platform"
)

// settingAdminIDs is the settings key for admins added at runtime, merged
// with the configured ADMIN_IDS.
const settingAdminIDs = "admin_ids"

type Bot struct {
	cfg      *config.Config
	database Repository
	scanner  Scanner
	api      *tgbotapi.BotAPI
	logger   *zerolog.Logger
}

// New creates the command bot on an existing API handle. The handle is
// shared with the notifier; only the bot polls for updates.
func New(cfg *config.Config, database Repository, scanner Scanner, api *tgbotapi.BotAPI, logger *zerolog.Logger) *Bot {
	return &Bot{
		cfg:      cfg,
		database: database,
		scanner:  scanner,
		api:      api,
		logger:   logger,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("bot run context canceled: %w", ctx.Err())
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}

			if update.Message == nil || update.Message.From == nil {
				continue
			}

			if !b.isAdmin(ctx, update.Message.From.ID) {
				b.logger.Warn().Int64(logFieldUserID, update.Message.From.ID).Str(logFieldUsername, update.Message.From.UserName).Msg("unauthorized access attempt")
				continue
			}

			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	admins := b.getAdmins(ctx)

	// With no admins configured the bot answers only its target chat, which
	// is the operator in a single-user setup.
	if len(admins) == 0 {
		return userID == b.cfg.TargetChatID
	}

	for _, id := range admins {
		if id == userID {
			return true
		}
	}

	return false
}

func (b *Bot) getAdmins(ctx context.Context) []int64 {
	admins := make([]int64, 0, len(b.cfg.AdminIDs))
	admins = append(admins, b.cfg.AdminIDs...)

	var extraAdmins []int64

	if err := b.database.GetSetting(ctx, settingAdminIDs, &extraAdmins); err == nil {
		admins = append(admins, extraAdmins...)
	}

	return admins
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}

	b.logger.Info().Str("command", msg.Command()).Int64(logFieldUserID, msg.From.ID).Msg("handling command")

	switch msg.Command() {
	case cmdStart:
		b.handleStart(ctx, msg)
	case cmdHelp:
		b.handleHelp(ctx, msg)
	case cmdScan:
		b.triggerScan(ctx, msg.Chat.ID, domain.PlatformTelegram)
	case cmdScanFB:
		b.triggerScan(ctx, msg.Chat.ID, domain.PlatformFacebook)
	case cmdPause:
		b.handlePauseState(ctx, msg, domain.PlatformTelegram, true)
	case cmdPauseFB:
		b.handlePauseState(ctx, msg, domain.PlatformFacebook, true)
	case cmdResume:
		b.handlePauseState(ctx, msg, domain.PlatformTelegram, false)
	case cmdResumeFB:
		b.handlePauseState(ctx, msg, domain.PlatformFacebook, false)
	case cmdStatus:
		b.handleStatus(ctx, msg)
	case cmdReset:
		b.handleReset(ctx, msg)
	default:
		b.reply(msg, "Неизвестная команда. /help — список команд")
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.isAdmin(ctx, query.From.ID) {
		return
	}

	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Error().Err(err).Msg("failed to send callback response")
	}

	if query.Message == nil {
		return
	}

	chatID := query.Message.Chat.ID

	switch query.Data {
	case notify.CallbackScanTelegram:
		b.editMessage(chatID, query.Message.MessageID, "🔄 Запускаю сканирование Telegram...")
		b.startCycle(ctx, chatID, domain.PlatformTelegram)
	case notify.CallbackScanFacebook:
		b.editMessage(chatID, query.Message.MessageID, "🔄 Запускаю сканирование Facebook...")
		b.startCycle(ctx, chatID, domain.PlatformFacebook)
	case callbackResetConfirm:
		b.confirmReset(ctx, chatID, query.Message.MessageID)
	case callbackResetCancel:
		b.editMessage(chatID, query.Message.MessageID, "Сброс отменён.")
	}
}

// triggerScan acknowledges the command and runs the cycle in the background.
func (b *Bot) triggerScan(ctx context.Context, chatID int64, platform domain.Platform) {
	b.sendMessage(chatID, fmt.Sprintf("🔄 Запускаю сканирование %s...", platformName(platform)))
	b.startCycle(ctx, chatID, platform)
}

// startCycle runs one manual cycle in a goroutine. Cycle results reach the
// operator through the stats notification; only start failures are replied
// here.
func (b *Bot) startCycle(ctx context.Context, chatID int64, platform domain.Platform) {
	go func() {
		defer worker.RecoverPanic(b.logger, "manual scan cycle")

		err := b.scanner.RunCycle(ctx, platform)

		switch {
		case err == nil, errors.Is(err, scan.ErrCycleAborted):
			// The stats notification carries the outcome.
		case errors.Is(err, scan.ErrCycleRunning):
			b.sendMessage(chatID, fmt.Sprintf("⏳ Сканирование %s уже выполняется", platformName(platform)))
		case errors.Is(err, scan.ErrPlatformNotConfigured):
			b.sendMessage(chatID, fmt.Sprintf("❌ Обработчик %s не настроен", platformName(platform)))
		default:
			b.logger.Error().Err(err).Str(logFieldPlatform, string(platform)).Msg("manual scan cycle failed")
			b.sendMessage(chatID, fmt.Sprintf("❌ Сканирование %s не удалось", platformName(platform)))
		}
	}()
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error().Err(err).Msg("failed to send reply")
	}
}

func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)

	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error().Err(err).Msg("failed to edit message")
	}
}

func platformName(p domain.Platform) string {
	if p == domain.PlatformFacebook {
		return "Facebook"
	}

	return "Telegram"
}
