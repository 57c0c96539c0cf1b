package db

import (
	"context"
	"fmt"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// ProcessedRecord is re-exported for consumers that only import storage.
type ProcessedRecord = domain.ProcessedRecord

// IsProcessed reports whether an item has already been handled in a committed
// cycle. Used by identifier-tracked sources where no ordinal watermark exists.
func (db *DB) IsProcessed(ctx context.Context, itemID string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_posts WHERE post_id = $1)
	`, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}

	return exists, nil
}

// MarkProcessed records a single item as permanently handled. Re-marking an
// already processed item is a no-op.
func (db *DB) MarkProcessed(ctx context.Context, itemID, sourceID string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO processed_posts (post_id, source_id)
		VALUES ($1, $2)
		ON CONFLICT (post_id) DO NOTHING
	`, itemID, sourceID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	return nil
}

// MarkProcessedBatch records a batch of items in one statement. Order does
// not matter and records already present are skipped, so a replayed batch is
// equivalent to marking each item individually.
func (db *DB) MarkProcessedBatch(ctx context.Context, records []ProcessedRecord) error {
	if len(records) == 0 {
		return nil
	}

	itemIDs := make([]string, len(records))
	sourceIDs := make([]string, len(records))

	for i, r := range records {
		itemIDs[i] = r.ItemID
		sourceIDs[i] = r.SourceID
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO processed_posts (post_id, source_id)
		SELECT unnest($1::text[]), unnest($2::text[])
		ON CONFLICT (post_id) DO NOTHING
	`, itemIDs, sourceIDs)
	if err != nil {
		return fmt.Errorf("mark processed batch: %w", err)
	}

	return nil
}

// LoadProcessedSet returns the post IDs already handled for a set of sources,
// for cheap in-memory membership checks during pagination. An empty slice
// loads the set for all sources.
func (db *DB) LoadProcessedSet(ctx context.Context, sourceIDs []string) (map[string]struct{}, error) {
	query := `SELECT post_id FROM processed_posts`
	args := []interface{}{}

	if len(sourceIDs) > 0 {
		query += ` WHERE source_id = ANY($1)`
		args = append(args, sourceIDs)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load processed set: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed id: %w", err)
		}

		set[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed ids: %w", err)
	}

	return set, nil
}

// DeleteProcessed removes processed records for the given sources, forcing a
// full re-scan of those groups. An empty or nil slice clears everything.
// Returns the number of rows removed.
func (db *DB) DeleteProcessed(ctx context.Context, sourceIDs []string) (int64, error) {
	if len(sourceIDs) == 0 {
		tag, err := db.Pool.Exec(ctx, `DELETE FROM processed_posts`)
		if err != nil {
			return 0, fmt.Errorf("delete processed: %w", err)
		}

		return tag.RowsAffected(), nil
	}

	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM processed_posts WHERE source_id = ANY($1)
	`, sourceIDs)
	if err != nil {
		return 0, fmt.Errorf("delete processed: %w", err)
	}

	return tag.RowsAffected(), nil
}
