// Package notify delivers lead batches and cycle summaries to the operator
// chat. Messages go out as legacy Markdown with a plain-text retry when the
// markup fails to parse; user-provided text can always break an entity.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/platform/observability"
	"github.com/leadscan/lead-scan-bot/internal/process/scan"
)

// Callback data for the scan-again button under the stats message. The admin
// bot routes these back into manual cycles.
const (
	CallbackScanTelegram = "scan"
	CallbackScanFacebook = "scanfb"
)

// NotificationsSent label values.
const (
	notifyKindLeads = "leads"
	notifyKindStats = "stats"

	notifyStatusOK    = "ok"
	notifyStatusError = "error"
)

var _ scan.Notifier = (*Notifier)(nil)

// Notifier sends operator messages through the admin bot's API handle.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

// New creates a Notifier targeting one chat.
func New(api *tgbotapi.BotAPI, chatID int64, logger *zerolog.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, logger: logger}
}

// SendLeadsBatch delivers all of a cycle's leads as one combined message.
func (n *Notifier) SendLeadsBatch(_ context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, renderLeadsBatch(leads, true))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn().Err(err).Int("leads", len(leads)).Msg("markdown send failed, retrying plain text")

		plain := tgbotapi.NewMessage(n.chatID, renderLeadsBatch(leads, false))
		plain.DisableWebPagePreview = true

		if _, err := n.api.Send(plain); err != nil {
			observability.NotificationsSent.WithLabelValues(notifyKindLeads, notifyStatusError).Inc()

			return fmt.Errorf("send leads batch: %w", err)
		}
	}

	observability.NotificationsSent.WithLabelValues(notifyKindLeads, notifyStatusOK).Inc()
	n.logger.Info().Int("leads", len(leads)).Msg("leads batch sent")

	return nil
}

// SendStats delivers the cycle summary with a scan-again button.
func (n *Notifier) SendStats(_ context.Context, stats domain.ScanStats) error {
	msg := tgbotapi.NewMessage(n.chatID, renderStats(stats, true))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = scanAgainKeyboard(stats.Platform)

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn().Err(err).Str("platform", string(stats.Platform)).Msg("markdown send failed, retrying plain text")

		plain := tgbotapi.NewMessage(n.chatID, renderStats(stats, false))
		plain.ReplyMarkup = scanAgainKeyboard(stats.Platform)

		if _, err := n.api.Send(plain); err != nil {
			observability.NotificationsSent.WithLabelValues(notifyKindStats, notifyStatusError).Inc()

			return fmt.Errorf("send stats: %w", err)
		}
	}

	observability.NotificationsSent.WithLabelValues(notifyKindStats, notifyStatusOK).Inc()

	return nil
}

func scanAgainKeyboard(platform domain.Platform) tgbotapi.InlineKeyboardMarkup {
	data := CallbackScanTelegram
	if platform == domain.PlatformFacebook {
		data = CallbackScanFacebook
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🔍 %s снова", platformName(platform)), data),
		),
	)
}
