package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
)

// Source is an alias for the domain type.
type Source = domain.Source

// UpsertSource registers a discovered chat or group, refreshing title and
// username on every sighting. Sources are never deleted automatically; the
// enabled flag is left untouched for existing rows so operator opt-outs
// survive rediscovery.
func (db *DB) UpsertSource(ctx context.Context, src Source) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO scan_sources (id, kind, source_id, title, username)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, source_id) DO UPDATE
		SET title = EXCLUDED.title,
			username = EXCLUDED.username,
			updated_at = now()
	`,
		toUUID(uuid.NewString()),
		string(src.Ref.Kind),
		src.Ref.ID,
		toText(src.Title),
		toText(normalizeUsername(src.Username)),
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	return nil
}

// ListEnabledSources returns the enabled sources of one kind, oldest first.
func (db *DB) ListEnabledSources(ctx context.Context, kind domain.SourceKind) ([]Source, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT kind, source_id, title, username, enabled
		FROM scan_sources
		WHERE kind = $1 AND enabled = TRUE
		ORDER BY created_at
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	defer rows.Close()

	var sources []Source

	for rows.Next() {
		var (
			k, id           string
			title, username pgtype.Text
			enabled         bool
		)

		if err := rows.Scan(&k, &id, &title, &username, &enabled); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		sources = append(sources, Source{
			Ref:      domain.SourceRef{Kind: domain.SourceKind(k), ID: id},
			Title:    fromText(title),
			Username: fromText(username),
			Enabled:  enabled,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return sources, nil
}
