package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eve-dealfinder/internal/logger"
)

// Get returns the value stored under key.
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.sql.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set replaces the value under key in a single statement.
func (d *DB) Set(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// CleanupKV removes entries under prefix not written within maxAge.
// Should be called on startup so stale history stats do not accumulate.
func (d *DB) CleanupKV(ctx context.Context, prefix string, maxAge time.Duration) int64 {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	res, err := d.sql.ExecContext(ctx,
		"DELETE FROM kv_store WHERE key LIKE ? || '%' AND updated_at < ?", prefix, cutoff)
	if err != nil {
		logger.Warn("DB", "kv cleanup failed", logger.Err(err))
		return 0
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info("DB", fmt.Sprintf("Removed %d stale %s entries", n, prefix))
	}
	return n
}
