package telegram

import (
	"fmt"
	"strings"
)

func sanitizePhone(phone string) string {
	var sb strings.Builder

	phone = strings.TrimSpace(phone)

	if strings.HasPrefix(phone, "+") {
		sb.WriteByte('+')

		phone = phone[1:]
	}

	for _, char := range phone {
		if char >= '0' && char <= '9' {
			sb.WriteRune(char)
		}
	}

	return sb.String()
}

func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}

	return phone[:3] + "****" + phone[len(phone)-2:]
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

// internalLinkModulus strips a marshalled chat ID down to the bare form used
// in t.me/c/ links.
const internalLinkModulus = int64(10_000_000_000)

// messageLink builds the t.me link for a chat message: the public form for
// chats with a username, the /c/<internal>/ form otherwise. Forum messages
// carry the topic segment so the link opens inside the right topic.
func messageLink(username string, chatID, topicID, msgID int64) string {
	base := strings.TrimPrefix(username, "@")

	if base == "" {
		internal := chatID
		if internal < 0 {
			internal = -internal
		}

		base = fmt.Sprintf("c/%d", internal%internalLinkModulus)
	}

	if topicID > 0 {
		return fmt.Sprintf("https://t.me/%s/%d/%d", base, topicID, msgID)
	}

	return fmt.Sprintf("https://t.me/%s/%d", base, msgID)
}
