package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Translator is the bidirectional map between local and remote identifiers,
// one mapping per row that has ever been synced. The authoritative copy lives
// in the id_map table; the in-memory index mirrors it so foreign-key rewrites
// during a cycle never hit the database per field.
//
// Writes go through the store's transactional paths (MarkSynced,
// UpsertFromRemote, Record) so a mapping and its row status always change
// atomically. Mappings are never removed - rows are not deleted in this
// engine.
type Translator struct {
	db *sql.DB

	mu       sync.RWMutex
	toRemote map[string]map[int64]string
	toLocal  map[string]map[string]int64
}

// loadTranslator builds the in-memory index from the id_map table.
func loadTranslator(db *sql.DB) (*Translator, error) {
	t := &Translator{
		db:       db,
		toRemote: make(map[string]map[int64]string),
		toLocal:  make(map[string]map[string]int64),
	}

	rows, err := db.Query("SELECT entity, local_id, remote_id FROM id_map")
	if err != nil {
		return nil, fmt.Errorf("load id_map: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entity   string
			localID  int64
			remoteID string
		)
		if err := rows.Scan(&entity, &localID, &remoteID); err != nil {
			return nil, fmt.Errorf("load id_map: %w", err)
		}
		t.remember(entity, localID, remoteID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load id_map: %w", err)
	}

	return t, nil
}

// ToRemote looks up the remote identifier for a local row. The second return
// is false when the row has no mapping yet (not yet synced) - a normal
// steady-state condition, not an error: the caller defers the row.
func (t *Translator) ToRemote(entity string, localID int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	remoteID, ok := t.toRemote[entity][localID]
	return remoteID, ok
}

// ToLocal looks up the local identifier for a remote row. The second return
// is false when the remote row is unknown locally.
func (t *Translator) ToLocal(entity, remoteID string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	localID, ok := t.toLocal[entity][remoteID]
	return localID, ok
}

// Record persists a mapping and updates the in-memory index. Inserting the
// same pair twice is a no-op; re-recording a local id with a new remote id
// overwrites the mapping.
//
// The store's MarkSynced and UpsertFromRemote record mappings inside their
// own transactions; Record exists for callers that learn a mapping outside
// those paths.
func (t *Translator) Record(ctx context.Context, entity string, localID int64, remoteID string) error {
	if _, err := t.db.ExecContext(ctx, `
		INSERT INTO id_map (entity, local_id, remote_id)
		VALUES (?, ?, ?)
		ON CONFLICT(entity, local_id) DO UPDATE SET remote_id = excluded.remote_id
	`, entity, localID, remoteID); err != nil {
		return fmt.Errorf("record mapping %s %d<->%s: %w", entity, localID, remoteID, err)
	}

	t.remember(entity, localID, remoteID)
	return nil
}

// Len returns the number of mappings for an entity.
func (t *Translator) Len(entity string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.toRemote[entity])
}

// remember updates the in-memory index only.
func (t *Translator) remember(entity string, localID int64, remoteID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.toRemote[entity] == nil {
		t.toRemote[entity] = make(map[int64]string)
		t.toLocal[entity] = make(map[string]int64)
	}

	// Overwriting a local id drops the stale reverse entry.
	if old, ok := t.toRemote[entity][localID]; ok && old != remoteID {
		delete(t.toLocal[entity], old)
	}

	t.toRemote[entity][localID] = remoteID
	t.toLocal[entity][remoteID] = localID
}

// upsertMappingTx writes a mapping inside an existing transaction. The caller
// updates the in-memory index after commit.
func upsertMappingTx(ctx context.Context, tx *sql.Tx, entity string, localID int64, remoteID string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO id_map (entity, local_id, remote_id)
		VALUES (?, ?, ?)
		ON CONFLICT(entity, local_id) DO UPDATE SET remote_id = excluded.remote_id
	`, entity, localID, remoteID); err != nil {
		return fmt.Errorf("record mapping %s %d<->%s: %w", entity, localID, remoteID, err)
	}
	return nil
}
