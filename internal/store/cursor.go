package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// lastSyncKey is the sync_state key holding the pull cursor.
const lastSyncKey = "last_sync_timestamp"

// epoch is the cursor value before any pull has succeeded. It predates every
// timestamp in the data, so the first pull fetches everything.
var epoch = time.Unix(0, 0).UTC()

// LastSyncTimestamp returns the persisted sync cursor, or the epoch if no
// pull has ever completed.
func (s *Store) LastSyncTimestamp(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM sync_state WHERE key = ?", lastSyncKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return epoch, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync cursor: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sync cursor %q: %w", value, err)
	}
	return t.UTC(), nil
}

// SetLastSyncTimestamp persists a new cursor value. Callers (the orchestrator
// owns the cursor) only advance it after a fully successful pull pass.
func (s *Store) SetLastSyncTimestamp(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write sync cursor: %w", err)
	}
	return nil
}
