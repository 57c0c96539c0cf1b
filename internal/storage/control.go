package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// GetControlState returns the pause switch for a platform. A platform with
// no row has never been paused and scans normally.
func (db *DB) GetControlState(ctx context.Context, platform domain.Platform) (domain.ScanControlState, error) {
	state := domain.ScanControlState{Platform: platform}

	var updatedAt pgtype.Timestamptz

	err := db.Pool.QueryRow(ctx, `
		SELECT paused, updated_at FROM scan_control WHERE platform = $1
	`, string(platform)).Scan(&state.Paused, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, nil
	}

	if err != nil {
		return state, fmt.Errorf("get control state: %w", err)
	}

	state.UpdatedAt = fromTimestamptz(updatedAt)

	return state, nil
}

// LatestProgressAt returns when a platform last committed scan progress.
// Watermarks track chats, processed records track groups; the bool is false
// when the platform has never committed anything.
func (db *DB) LatestProgressAt(ctx context.Context, platform domain.Platform) (time.Time, bool, error) {
	query := `SELECT max(updated_at) FROM scan_watermarks`
	if platform == domain.PlatformFacebook {
		query = `SELECT max(processed_at) FROM processed_posts`
	}

	var latest pgtype.Timestamptz

	if err := db.Pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("latest progress: %w", err)
	}

	if !latest.Valid {
		return time.Time{}, false, nil
	}

	return latest.Time, true, nil
}

// SetPaused flips the pause switch for a platform. Pausing takes effect at
// the next scheduled tick; a cycle already in flight is never aborted.
func (db *DB) SetPaused(ctx context.Context, platform domain.Platform, paused bool) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO scan_control (platform, paused, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (platform) DO UPDATE
		SET paused = EXCLUDED.paused,
			updated_at = now()
	`, string(platform), paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}

	return nil
}
