package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

const (
	// maxBatchBytes keeps the combined message under Telegram's 4096 limit
	// with room for the truncation tail.
	maxBatchBytes = 4000

	excerptBatchRunes = 100
	sourceNameRunes   = 30

	authorFallbackTelegram = "Пользователь"
	authorFallbackFacebook = "Unknown"
)

func escapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func platformEmoji(p domain.Platform) string {
	if p == domain.PlatformFacebook {
		return "📘"
	}

	return "📱"
}

func platformName(p domain.Platform) string {
	if p == domain.PlatformFacebook {
		return "Facebook"
	}

	return "Telegram"
}

func categoryEmoji(c domain.LeadCategory) string {
	switch c {
	case domain.CategoryProperty:
		return "🏠"
	case domain.CategoryVehicle:
		return "🚗"
	default:
		return "💼"
	}
}

// renderLeadsBatch builds the combined notification. Whole lead blocks are
// dropped once the byte budget runs out; a tail names how many were cut.
func renderLeadsBatch(leads []domain.Lead, markdown bool) string {
	platform := leads[0].Ref.Platform()

	var b strings.Builder

	if markdown {
		fmt.Fprintf(&b, "%s *%s: %d лидов найдено!*", platformEmoji(platform), platformName(platform), len(leads))
	} else {
		fmt.Fprintf(&b, "%s %s: %d лидов найдено!", platformEmoji(platform), platformName(platform), len(leads))
	}

	shown := 0

	for i, lead := range leads {
		block := leadBlock(i+1, lead, markdown)
		if b.Len()+len(block)+2 > maxBatchBytes {
			break
		}

		b.WriteString("\n\n")
		b.WriteString(block)
		shown++
	}

	if shown < len(leads) {
		if markdown {
			fmt.Fprintf(&b, "\n\n_…и ещё %d (обрезано)_", len(leads)-shown)
		} else {
			fmt.Fprintf(&b, "\n\n…и ещё %d (обрезано)", len(leads)-shown)
		}
	}

	return b.String()
}

func leadBlock(n int, lead domain.Lead, markdown bool) string {
	pct := int(lead.Confidence * 100)

	var b strings.Builder

	if markdown {
		fmt.Fprintf(&b, "%d. %s (%d%%) %s", n, categoryEmoji(lead.Category), pct, contactMarkdown(lead))
		fmt.Fprintf(&b, "\n   📍 %s", sourceMarkdown(lead))

		if excerpt := batchExcerpt(lead.Excerpt); excerpt != "" {
			fmt.Fprintf(&b, "\n   _%s_", escapeMarkdown(excerpt))
		}

		if lead.Reason != "" {
			fmt.Fprintf(&b, "\n   💡 %s", escapeMarkdown(lead.Reason))
		}

		return b.String()
	}

	fmt.Fprintf(&b, "%d. %s (%d%%) %s", n, categoryEmoji(lead.Category), pct, contactPlain(lead))
	fmt.Fprintf(&b, "\n   📍 %s", sourcePlain(lead))

	if excerpt := batchExcerpt(lead.Excerpt); excerpt != "" {
		fmt.Fprintf(&b, "\n   %s", excerpt)
	}

	if lead.Reason != "" {
		fmt.Fprintf(&b, "\n   💡 %s", lead.Reason)
	}

	return b.String()
}

// contactMarkdown renders the way to reach the author: a mention for
// Telegram users, a profile link for Facebook authors with a numeric ID, a
// bare name otherwise.
func contactMarkdown(lead domain.Lead) string {
	if lead.Ref.Platform() == domain.PlatformFacebook {
		name := lead.Author.DisplayName
		if name == "" {
			name = authorFallbackFacebook
		}

		if lead.Author.PlatformUserID > 0 {
			return fmt.Sprintf("[%s](https://facebook.com/profile.php?id=%d)", escapeMarkdown(name), lead.Author.PlatformUserID)
		}

		return escapeMarkdown(name)
	}

	if lead.Author.Username != "" {
		return "@" + escapeMarkdown(lead.Author.Username)
	}

	name := lead.Author.DisplayName
	if name == "" {
		name = authorFallbackTelegram
	}

	return fmt.Sprintf("[%s](tg://user?id=%d)", escapeMarkdown(name), lead.Author.PlatformUserID)
}

func contactPlain(lead domain.Lead) string {
	if lead.Ref.Platform() == domain.PlatformFacebook {
		name := lead.Author.DisplayName
		if name == "" {
			name = authorFallbackFacebook
		}

		if lead.Author.PlatformUserID > 0 {
			return fmt.Sprintf("%s (https://facebook.com/profile.php?id=%d)", name, lead.Author.PlatformUserID)
		}

		return name
	}

	if lead.Author.Username != "" {
		return "@" + lead.Author.Username
	}

	name := lead.Author.DisplayName
	if name == "" {
		name = authorFallbackTelegram
	}

	return fmt.Sprintf("%s (ID: %d)", name, lead.Author.PlatformUserID)
}

func sourceMarkdown(lead domain.Lead) string {
	name := escapeMarkdown(truncateRunes(lead.SourceName, sourceNameRunes))
	if lead.Link == "" {
		return name
	}

	return fmt.Sprintf("[%s](%s)", name, lead.Link)
}

func sourcePlain(lead domain.Lead) string {
	name := truncateRunes(lead.SourceName, sourceNameRunes)
	if lead.Link == "" {
		return name
	}

	return name + ": " + lead.Link
}

// batchExcerpt flattens the quoted text to one line and bounds it. Multiline
// entities break the legacy Markdown parser.
func batchExcerpt(text string) string {
	flat := strings.Join(strings.Fields(text), " ")

	runes := []rune(flat)
	if len(runes) <= excerptBatchRunes {
		return flat
	}

	return string(runes[:excerptBatchRunes]) + "…"
}

// renderStats builds the cycle summary message.
func renderStats(stats domain.ScanStats, markdown bool) string {
	var b strings.Builder

	if markdown {
		fmt.Fprintf(&b, "%s *%s статистика:*\n", platformEmoji(stats.Platform), platformName(stats.Platform))
	} else {
		fmt.Fprintf(&b, "%s %s статистика:\n", platformEmoji(stats.Platform), platformName(stats.Platform))
	}

	if stats.Aborted {
		b.WriteString("\n⚠️ Цикл прерван: прогресс не сохранён\n")
	}

	if stats.Platform == domain.PlatformFacebook && stats.Sources > 0 {
		fmt.Fprintf(&b, "\n📂 Групп просканировано: %d", stats.Sources)
	}

	fmt.Fprintf(&b, "\n📨 Сообщений получено: %d", stats.Fetched)
	fmt.Fprintf(&b, "\n🔍 После фильтрации: %d", stats.Filtered)
	fmt.Fprintf(&b, "\n🤖 Проанализировано: %d", stats.Analyzed)
	fmt.Fprintf(&b, "\n🎯 Лидов найдено: %d", stats.Leads)
	fmt.Fprintf(&b, "\n⏱ Длительность: %s", stats.Duration.Round(time.Second))

	if stats.Platform == domain.PlatformFacebook && len(stats.PerSource) > 0 {
		b.WriteString("\n\n📂 По группам:")

		names := make([]string, 0, len(stats.PerSource))
		for name := range stats.PerSource {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			if markdown {
				fmt.Fprintf(&b, "\n• %s: %d", escapeMarkdown(name), stats.PerSource[name])
			} else {
				fmt.Fprintf(&b, "\n• %s: %d", name, stats.PerSource[name])
			}
		}
	}

	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}
