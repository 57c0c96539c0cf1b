package scan

import (
	"strings"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// excerptRunes bounds the quoted text in a lead notification.
const excerptRunes = 300

// newLead assembles the notification payload for one classified item.
func newLead(item domain.CandidateItem, verdict domain.Verdict) domain.Lead {
	return domain.Lead{
		Ref:        item.Ref,
		Author:     item.Author,
		SourceName: leadSourceName(item),
		Link:       item.Link,
		Excerpt:    excerpt(item.Text),
		Confidence: verdict.Confidence,
		Reason:     verdict.Reason,
		Category:   verdict.Category,
	}
}

func leadSourceName(item domain.CandidateItem) string {
	if item.SourceTitle != "" {
		return item.SourceTitle
	}

	return item.Ref.ID
}

// excerpt returns the first excerptRunes runes of the trimmed text, with an
// ellipsis when something was cut.
func excerpt(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= excerptRunes {
		return string(runes)
	}

	return string(runes[:excerptRunes]) + "…"
}
