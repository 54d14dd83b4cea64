package sqlite

import (
	"context"
	"time"

	"github.com/c0deZ3R0/go-offline-queue/cache"
	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
)

const (
	opLoadCache   = "sqlite.LoadCacheEntries"
	opSaveCache   = "sqlite.SaveCacheEntry"
	opDeleteCache = "sqlite.DeleteCacheEntry"
	opClearCache  = "sqlite.ClearCacheEntries"
)

var _ cache.Persister = (*Store)(nil)

// LoadCacheEntries returns every unexpired row of response_cache
func (s *Store) LoadCacheEntries(ctx context.Context) ([]cache.Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, expires_at FROM response_cache WHERE expires_at > ? ORDER BY expires_at ASC`,
		time.Now().UnixNano())
	if err != nil {
		return nil, queueErrors.WrapOpComponent(err, opLoadCache, component)
	}
	defer rows.Close()

	var entries []cache.Entry
	for rows.Next() {
		var e cache.Entry
		var expires int64
		if err := rows.Scan(&e.Key, &e.Value, &expires); err != nil {
			return nil, queueErrors.WrapOpComponent(err, opLoadCache, component)
		}
		e.ExpiresAt = fromNanos(expires)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, queueErrors.WrapOpComponent(err, opLoadCache, component)
	}
	return entries, nil
}

// SaveCacheEntry upserts one entry
func (s *Store) SaveCacheEntry(ctx context.Context, e cache.Entry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO response_cache (key, value, expires_at) VALUES (?, ?, ?)`,
		e.Key, e.Value, e.ExpiresAt.UnixNano())
	return queueErrors.WrapOpComponent(err, opSaveCache, component)
}

// DeleteCacheEntry removes one entry; a missing key is not an error
func (s *Store) DeleteCacheEntry(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ?`, key)
	return queueErrors.WrapOpComponent(err, opDeleteCache, component)
}

// ClearCacheEntries empties response_cache
func (s *Store) ClearCacheEntries(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM response_cache`)
	return queueErrors.WrapOpComponent(err, opClearCache, component)
}

// PurgeExpiredCache drops rows that expired before now and returns how many
func (s *Store) PurgeExpiredCache(ctx context.Context, now time.Time) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, queueErrors.WrapOpComponent(err, opClearCache, component)
	}
	n, err := res.RowsAffected()
	return int(n), queueErrors.WrapOpComponent(err, opClearCache, component)
}
