package telegrambot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/output/notify"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

// statusTimeFormat renders progress and cycle times in the status message.
const statusTimeFormat = "02.01 15:04:05"

func (b *Bot) handleStart(_ context.Context, msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, "🤖 *Lead Scan Bot*\n\nВыберите источник для сканирования:")
	reply.ParseMode = tgbotapi.ModeMarkdown
	reply.ReplyMarkup = startKeyboard()

	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error().Err(err).Msg("failed to send reply")
	}
}

func (b *Bot) handleHelp(_ context.Context, msg *tgbotapi.Message) {
	b.reply(msg, "📚 *Доступные команды:*\n\n"+
		"*Сканирование:*\n"+
		"/scan — запустить сканирование Telegram\n"+
		"/scanfb — запустить сканирование Facebook\n\n"+
		"*Управление:*\n"+
		"/pause — приостановить авто-сканирование Telegram\n"+
		"/pausefb — приостановить авто-сканирование Facebook\n"+
		"/resume — возобновить Telegram\n"+
		"/resumefb — возобновить Facebook\n\n"+
		"*Сброс:*\n"+
		"/reset — сбросить прогресс сканирования (переобработка за 24ч)\n\n"+
		"*Инфо:*\n"+
		"/status — статус бота\n"+
		"/help — эта справка")
}

func (b *Bot) handlePauseState(ctx context.Context, msg *tgbotapi.Message, platform domain.Platform, paused bool) {
	if err := b.scanner.Pause(ctx, platform, paused); err != nil {
		b.logger.Error().Err(err).Str(logFieldPlatform, string(platform)).Msg("failed to update scan control")
		b.reply(msg, "❌ Не удалось обновить состояние сканирования")

		return
	}

	b.reply(msg, pauseReply(platform, paused))
}

func pauseReply(platform domain.Platform, paused bool) string {
	name := platformName(platform)

	if !paused {
		return fmt.Sprintf("▶️ %s сканирование возобновлено.", name)
	}

	scanCmd, resumeCmd := "/"+cmdScan, "/"+cmdResume
	if platform == domain.PlatformFacebook {
		scanCmd, resumeCmd = "/"+cmdScanFB, "/"+cmdResumeFB
	}

	return fmt.Sprintf("⏸️ %s сканирование приостановлено.\n%s — ручной запуск\n%s — возобновить", name, scanCmd, resumeCmd)
}

// statusReport is one platform's status view plus the commit freshness read
// from storage.
type statusReport struct {
	scan.PlatformStatus

	LastProgress time.Time
	HasProgress  bool
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	statuses, err := b.scanner.Status(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to read scan status")
		b.reply(msg, "❌ Не удалось получить статус")

		return
	}

	reports := make([]statusReport, 0, len(statuses))

	for _, status := range statuses {
		report := statusReport{PlatformStatus: status}
		report.LastProgress, report.HasProgress, _ = b.database.LatestProgressAt(ctx, status.Platform) //nolint:errcheck // best-effort read

		reports = append(reports, report)
	}

	b.reply(msg, renderStatus(reports))
}

func renderStatus(reports []statusReport) string {
	var sb strings.Builder

	sb.WriteString("📊 *Статус бота*\n")

	for _, r := range reports {
		state := "▶️ Активно"
		if r.Paused {
			state = "⏸️ Приостановлено"
		}

		fmt.Fprintf(&sb, "\n%s *%s*: %s\n", platformStatusEmoji(r.Platform), platformName(r.Platform), state)

		if r.Running {
			sb.WriteString("🔄 Цикл выполняется\n")
		}

		fmt.Fprintf(&sb, "📡 Источников: %d\n", r.Sources)

		progress := "—"
		if r.HasProgress {
			progress = r.LastProgress.Format(statusTimeFormat)
		}

		fmt.Fprintf(&sb, "🕐 Последний коммит: %s\n", progress)

		if r.LastCycle != nil {
			fmt.Fprintf(&sb, "📈 Цикл %s: 📨 %d, 🎯 %d", r.LastCycle.StartedAt.Format(statusTimeFormat), r.LastCycle.Fetched, r.LastCycle.Leads)

			if r.LastCycle.Aborted {
				sb.WriteString(" ⚠️ прерван")
			}

			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func (b *Bot) handleReset(_ context.Context, msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, "⚠️ Сбросить прогресс сканирования?\n"+
		"Вотермарки чатов и обработанные посты будут удалены, следующий цикл загрузит сообщения за 24ч заново.")
	reply.ReplyMarkup = resetKeyboard()

	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error().Err(err).Msg("failed to send reply")
	}
}

func (b *Bot) confirmReset(ctx context.Context, chatID int64, messageID int) {
	count, err := b.scanner.Reset(ctx, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to reset scan progress")
		b.editMessage(chatID, messageID, "❌ Сброс не удался")

		return
	}

	b.editMessage(chatID, messageID, fmt.Sprintf("🔄 Сброшено записей: %d.\nСледующий цикл загрузит сообщения за 24ч заново.", count))
}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📱 Telegram", notify.CallbackScanTelegram),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📘 Facebook", notify.CallbackScanFacebook),
		),
	)
}

func resetKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Сбросить", callbackResetConfirm),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", callbackResetCancel),
		),
	)
}

func platformStatusEmoji(p domain.Platform) string {
	if p == domain.PlatformFacebook {
		return "📘"
	}

	return "📱"
}
