package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// SaveMessage persists a filtered candidate item as a message row with null
// verdict fields, so an aborted cycle still leaves a record of what was
// attempted. The author row is resolved first when the platform exposes a
// numeric user ID; otherwise only the name snapshot is kept. Returns the
// generated message id.
func (db *DB) SaveMessage(ctx context.Context, item domain.CandidateItem) (string, error) {
	var authorID int64

	if item.Author.PlatformUserID != 0 {
		id, err := db.GetOrCreateAuthor(ctx, item.Author.PlatformUserID, item.Author.Username, item.Author.DisplayName)
		if err != nil {
			return "", err
		}

		authorID = id
	}

	msgID := uuid.NewString()

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO messages (
			id, item_id, source_kind, source_id, source_title, source_username,
			topic_id, author_id, author_name, text, reply_text, posted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		toUUID(msgID),
		item.ItemID,
		string(item.Ref.Kind),
		item.Ref.ID,
		toText(item.SourceTitle),
		toText(item.SourceUsername),
		toInt8(item.TopicID),
		toInt8(authorID),
		toText(item.Author.DisplayName),
		SanitizeUTF8(item.Text),
		toText(item.ReplyText),
		toTimestamptz(item.PostedAt),
	)
	if err != nil {
		return "", fmt.Errorf("save message: %w", err)
	}

	return msgID, nil
}

// UpdateVerdict writes a classification verdict onto a stored message.
// Non-lead verdicts keep confidence, reason and category null; analyzed_at is
// stamped either way so unanalyzed rows are distinguishable from rejected
// ones.
func (db *DB) UpdateVerdict(ctx context.Context, messageID string, v domain.Verdict) error {
	confidence := pgtype.Float4{}
	category := ""

	if v.IsLead {
		confidence = toFloat4(v.Confidence)
		category = string(v.Category)
	}

	_, err := db.Pool.Exec(ctx, `
		UPDATE messages
		SET is_lead = $2,
			confidence = $3,
			reason = $4,
			category = $5,
			analyzed_at = now()
		WHERE id = $1
	`, toUUID(messageID), v.IsLead, confidence, toText(v.Reason), toText(category))
	if err != nil {
		return fmt.Errorf("update verdict: %w", err)
	}

	return nil
}
