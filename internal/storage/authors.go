package db

import (
	"context"
	"fmt"
	"strings"
)

// normalizeUsername converts a username to lowercase for consistent storage.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(username, "@"))
}

// GetOrCreateAuthor upserts an author by platform user ID and returns the row
// id. Username and display name are refreshed on every sighting so the record
// tracks renames.
func (db *DB) GetOrCreateAuthor(ctx context.Context, platformUserID int64, username, displayName string) (int64, error) {
	var id int64

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO authors (platform_user_id, username, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (platform_user_id) DO UPDATE
		SET username = EXCLUDED.username,
			display_name = EXCLUDED.display_name
		RETURNING id
	`, platformUserID, toText(normalizeUsername(username)), toText(displayName)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get or create author: %w", err)
	}

	return id, nil
}
