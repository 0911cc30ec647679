package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/signage-player/webplayer/internal/model"
)

// HasMedia reports whether a blob exists for key.
func (r *Repository) HasMedia(ctx context.Context, key string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM media_cache WHERE cache_key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) GetMedia(ctx context.Context, key string) (model.CacheEntry, error) {
	var (
		entry     model.CacheEntry
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT cache_key, data, content_type, source_url, size, created_at
		FROM media_cache WHERE cache_key = ?`, key).
		Scan(&entry.Key, &entry.Data, &entry.ContentType, &entry.SourceURL, &entry.Size, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheEntry{}, fmt.Errorf("%w: media %s", ErrNotFound, key)
	}
	if err != nil {
		return model.CacheEntry{}, err
	}
	entry.CreatedAt = parseTime(createdAt)
	return entry, nil
}

// PutMedia stores a blob; an existing entry for the same key is kept.
func (r *Repository) PutMedia(ctx context.Context, entry model.CacheEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO media_cache (cache_key, data, content_type, source_url, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Key, entry.Data, entry.ContentType, entry.SourceURL, int64(len(entry.Data)), formatTime(createdAt))
	return err
}

func (r *Repository) DeleteMedia(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM media_cache WHERE cache_key = ?`, key)
	return err
}

func (r *Repository) ListMediaKeys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT cache_key FROM media_cache ORDER BY created_at, cache_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// PurgeMedia deletes every cached blob and returns the number removed.
func (r *Repository) PurgeMedia(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM media_cache`)
	if err != nil {
		return 0, err
	}
	rows, _ := res.RowsAffected()
	if rows > 0 && r.logger != nil {
		r.logger.Info("media cache purged", "rows", rows)
	}
	return int(rows), nil
}
