// Package store provides the local SQLite store for synchronized entities.
//
// Every entity table carries three bookkeeping columns next to its business
// columns: remote_id (nullable, unique when set), sync_status, and
// last_modified_at. The change-tracking operations (FindByStatus, MarkSynced,
// MarkUpdateSynced, UpsertFromRemote) are the only writers of those columns.
//
// The store also owns the identifier map (id_map table plus an in-memory
// bidirectional index, see Translator) and the persisted sync cursor
// (sync_state table). Mapping writes happen in the same transaction as the
// row status change so a crash cannot separate the two.
package store
