package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/triagewatch/internal/cache"
)

// CacheRepository implements cache.Backend for SQLite
type CacheRepository struct {
	db *DB
}

// NewCacheRepository creates a new CacheRepository
func NewCacheRepository(db *DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get returns the entry stored under key
func (r *CacheRepository) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var value []byte
	var storedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return cache.Entry{Value: value, StoredAt: time.Unix(0, storedAt).UTC()}, true, nil
}

// Put stores entry under key, replacing any previous value
func (r *CacheRepository) Put(ctx context.Context, key string, entry cache.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at
	`, key, entry.Value, entry.StoredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix
func (r *CacheRepository) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%",
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Purge removes entries stored before cutoff
func (r *CacheRepository) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE stored_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
