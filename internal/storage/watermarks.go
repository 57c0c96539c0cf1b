package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetWatermark returns the highest committed message ordinal for a source.
// The bool reports whether a watermark exists at all; absence means the
// source has never completed a scan cycle and the caller applies the
// bootstrap window instead.
func (db *DB) GetWatermark(ctx context.Context, sourceID string) (int64, bool, error) {
	var last int64

	err := db.Pool.QueryRow(ctx, `
		SELECT last_item_id FROM scan_watermarks WHERE source_id = $1
	`, sourceID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("get watermark: %w", err)
	}

	return last, true, nil
}

// AdvanceWatermark records the highest processed ordinal for a source.
// The upsert keeps the greater of the stored and the incoming value, so
// replays and out-of-order commits never move a watermark backwards.
func (db *DB) AdvanceWatermark(ctx context.Context, sourceID string, ordinal int64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO scan_watermarks (source_id, last_item_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source_id) DO UPDATE
		SET last_item_id = GREATEST(scan_watermarks.last_item_id, EXCLUDED.last_item_id),
			updated_at = now()
	`, sourceID, ordinal)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}

	return nil
}

// ResetWatermarks deletes watermark rows so the next cycle falls back to the
// bootstrap window. An empty or nil slice resets every source. Returns the
// number of rows removed.
func (db *DB) ResetWatermarks(ctx context.Context, sourceIDs []string) (int64, error) {
	if len(sourceIDs) == 0 {
		tag, err := db.Pool.Exec(ctx, `DELETE FROM scan_watermarks`)
		if err != nil {
			return 0, fmt.Errorf("reset watermarks: %w", err)
		}

		return tag.RowsAffected(), nil
	}

	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM scan_watermarks WHERE source_id = ANY($1)
	`, sourceIDs)
	if err != nil {
		return 0, fmt.Errorf("reset watermarks: %w", err)
	}

	return tag.RowsAffected(), nil
}
