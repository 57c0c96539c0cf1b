package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

const (
	replyExcerptRunes = 200

	defaultConfidence = 0.5
)

const defaultClassifyPrompt = `You are a sales lead detector for local community chats. Return STRICT JSON ONLY.
Output must be a single JSON array with one object PER LEAD. Messages that are not leads MUST NOT appear in the output. If there are no leads, return [].
Use double quotes. No trailing commas. No markdown. No extra keys.

A message is a LEAD only when its author offers to sell or rent out their OWN property or vehicle:
- property: apartment, house, room, land plot, garage, parking spot, commercial space
- vehicle: car, motorcycle, truck, trailer, boat

NOT a lead: looking to buy or rent, real-estate agency ads and listing aggregators, job postings, services, lost and found, discussions, jokes, news.

Each result object must include:
- id: integer (match the [ID] of the message)
- reason: string, ONE short sentence in the message's language explaining why it is a lead
- confidence: number (0.0-1.0)
- type: string, "property" or "vehicle"

Messages may include the author tag and, after ↩, the quoted message they reply to. Judge the message itself; the quote is context only.

Messages:
`

// BuildClassifyPrompt renders the instruction block followed by one line
// per item, blank-line separated.
func BuildClassifyPrompt(items []Item) string {
	var sb strings.Builder

	sb.WriteString(defaultClassifyPrompt)
	sb.WriteString("\n")

	for _, item := range items {
		sb.WriteString(serializeItem(item))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// serializeItem renders one item as `[ID] (user:tag) (↩ "reply") text`.
// The author tag and reply quote are omitted when absent.
func serializeItem(item Item) string {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(strconv.Itoa(item.Index))
	sb.WriteString("]")

	if item.AuthorTag != "" {
		sb.WriteString(" (user:")
		sb.WriteString(item.AuthorTag)
		sb.WriteString(")")
	}

	if item.ReplyText != "" {
		sb.WriteString(` (↩ "`)
		sb.WriteString(truncateRunes(item.ReplyText, replyExcerptRunes))
		sb.WriteString(`")`)
	}

	sb.WriteString(" ")
	sb.WriteString(item.Text)

	return sb.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

// verdictPayload is one object of the backend's JSON array response.
type verdictPayload struct {
	ID         int      `json:"id"`
	Reason     string   `json:"reason"`
	Confidence *float32 `json:"confidence"`
	Type       string   `json:"type"`
}

// ParseVerdicts extracts lead verdicts from a raw model response. The array
// may be wrapped in markdown fences or prose. A response that cannot be
// decoded yields no verdicts, which downstream means no leads in the batch.
func ParseVerdicts(response string) []BatchVerdict {
	payload := extractJSONArray(response)
	if payload == "" {
		return nil
	}

	var raw []verdictPayload
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil
	}

	verdicts := make([]BatchVerdict, 0, len(raw))

	for _, v := range raw {
		if v.ID < 0 {
			continue
		}

		confidence := float32(defaultConfidence)
		if v.Confidence != nil {
			confidence = *v.Confidence
		}

		category := domain.CategoryProperty
		if v.Type != "" {
			category = domain.NormalizeCategory(v.Type)
		}

		verdicts = append(verdicts, BatchVerdict{
			Index: v.ID,
			Verdict: domain.Verdict{
				IsLead:     true,
				Reason:     v.Reason,
				Confidence: confidence,
				Category:   category,
			},
		})
	}

	return verdicts
}

// extractJSONArray pulls the JSON array out of a response that may carry
// markdown fences or surrounding prose. Fenced blocks are preferred, the
// "json"-tagged one first; otherwise the outermost bracket pair is taken.
func extractJSONArray(text string) string {
	if strings.Contains(text, "```") {
		candidate := ""

		for _, part := range strings.Split(text, "```") {
			trimmed := strings.TrimSpace(part)

			if rest, ok := strings.CutPrefix(trimmed, "json"); ok {
				candidate = strings.TrimSpace(rest)
				break
			}

			if candidate == "" && strings.HasPrefix(trimmed, "[") {
				candidate = trimmed
			}
		}

		if candidate != "" {
			text = candidate
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")

	if start == -1 || end <= start {
		return ""
	}

	return text[start : end+1]
}
