package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tillsync/tillsync/internal/registry"
)

// FindByStatus returns all rows of the entity with the given sync status, in
// insertion order of the local store (ORDER BY id ASC).
//
// Returns an empty slice (not nil) if no rows match.
func (s *Store) FindByStatus(ctx context.Context, entityName string, status Status) ([]Row, error) {
	e, err := s.entity(entityName)
	if err != nil {
		return nil, err
	}

	cols := columnNames(e)
	query := fmt.Sprintf(
		"SELECT id, remote_id, sync_status, last_modified_at, %s FROM %s WHERE sync_status = ? ORDER BY id ASC",
		strings.Join(cols, ", "), e.Name,
	)

	rows, err := s.db.QueryContext(ctx, query, status.String())
	if err != nil {
		return nil, fmt.Errorf("find by status %s/%s: %w", entityName, status, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("find by status %s/%s: %w", entityName, status, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find by status %s/%s: %w", entityName, status, err)
	}

	return out, nil
}

// FindByLocalID returns one row by its local identifier.
func (s *Store) FindByLocalID(ctx context.Context, entityName string, localID int64) (Row, bool, error) {
	return s.findOne(ctx, entityName, "id = ?", localID)
}

// FindByRemoteID returns one row by its remote identifier.
func (s *Store) FindByRemoteID(ctx context.Context, entityName string, remoteID string) (Row, bool, error) {
	return s.findOne(ctx, entityName, "remote_id = ?", remoteID)
}

func (s *Store) findOne(ctx context.Context, entityName, where string, arg any) (Row, bool, error) {
	e, err := s.entity(entityName)
	if err != nil {
		return Row{}, false, err
	}

	cols := columnNames(e)
	query := fmt.Sprintf(
		"SELECT id, remote_id, sync_status, last_modified_at, %s FROM %s WHERE %s",
		strings.Join(cols, ", "), e.Name, where,
	)

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return Row{}, false, fmt.Errorf("find %s: %w", entityName, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Row{}, false, rows.Err()
	}
	row, err := scanRow(rows, cols)
	if err != nil {
		return Row{}, false, fmt.Errorf("find %s: %w", entityName, err)
	}
	return row, true, nil
}

// CountByStatus returns the number of rows of the entity in the given status.
func (s *Store) CountByStatus(ctx context.Context, entityName string, status Status) (int, error) {
	e, err := s.entity(entityName)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE sync_status = ?", e.Name)
	if err := s.db.QueryRowContext(ctx, query, status.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s/%s: %w", entityName, status, err)
	}
	return n, nil
}

// CreateLocal inserts a new local row in pending_create. This is the write
// path the CRUD layer uses for business inserts; fields must be declared
// columns of the entity.
func (s *Store) CreateLocal(ctx context.Context, entityName string, fields map[string]any, now time.Time) (int64, error) {
	e, err := s.entity(entityName)
	if err != nil {
		return 0, err
	}

	names := make([]string, 0, len(fields)+2)
	args := make([]any, 0, len(fields)+2)
	for _, c := range e.Columns {
		v, ok := fields[c.Name]
		if !ok {
			continue
		}
		names = append(names, c.Name)
		args = append(args, v)
	}
	for name := range fields {
		if _, ok := e.Column(name); !ok {
			return 0, fmt.Errorf("create %s: unknown column %q", entityName, name)
		}
	}

	names = append(names, "sync_status", "last_modified_at")
	args = append(args, StatusPendingCreate.String(), now.UTC())

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		e.Name, strings.Join(names, ", "), placeholders(len(names)),
	)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", entityName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", entityName, err)
	}
	return id, nil
}

// TouchForUpdate applies a business edit to an existing row: it overwrites
// the given fields, refreshes last_modified_at, and flips a synced row to
// pending_update. A pending_create row stays pending_create (it has never
// been pushed, so its next push already carries the edit).
//
// This is the contract call the CRUD layer must honor on every write to a
// synchronized row.
func (s *Store) TouchForUpdate(ctx context.Context, entityName string, localID int64, fields map[string]any, now time.Time) error {
	e, err := s.entity(entityName)
	if err != nil {
		return err
	}

	var sets []string
	var args []any
	for _, c := range e.Columns {
		v, ok := fields[c.Name]
		if !ok {
			continue
		}
		sets = append(sets, c.Name+" = ?")
		args = append(args, v)
	}
	for name := range fields {
		if _, ok := e.Column(name); !ok {
			return fmt.Errorf("update %s: unknown column %q", entityName, name)
		}
	}

	sets = append(sets,
		"last_modified_at = ?",
		"sync_status = CASE WHEN sync_status = 'synced' THEN 'pending_update' ELSE sync_status END",
	)
	args = append(args, now.UTC(), localID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", e.Name, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", entityName, localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", entityName, localID, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s/%d: row not found", entityName, localID)
	}
	return nil
}

// MarkSynced records an acknowledged create: it sets the row's remote_id and
// sync_status = synced and records the identifier mapping, all in a single
// transaction. Idempotent - calling twice with the same arguments is a no-op.
func (s *Store) MarkSynced(ctx context.Context, entityName string, localID int64, remoteID string) error {
	e, err := s.entity(entityName)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf("UPDATE %s SET remote_id = ?, sync_status = 'synced' WHERE id = ?", e.Name)
		if _, err := tx.ExecContext(ctx, query, remoteID, localID); err != nil {
			return fmt.Errorf("mark synced %s/%d: %w", entityName, localID, err)
		}
		return upsertMappingTx(ctx, tx, entityName, localID, remoteID)
	})
	if err != nil {
		return err
	}

	s.translator.remember(entityName, localID, remoteID)
	return nil
}

// MarkUpdateSynced records an acknowledged update: sync_status = synced,
// remote_id untouched.
func (s *Store) MarkUpdateSynced(ctx context.Context, entityName string, localID int64) error {
	e, err := s.entity(entityName)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET sync_status = 'synced' WHERE id = ?", e.Name)
	if _, err := s.db.ExecContext(ctx, query, localID); err != nil {
		return fmt.Errorf("mark update synced %s/%d: %w", entityName, localID, err)
	}
	return nil
}

// UpsertFromRemote applies a pulled remote row. If a local row with this
// remote_id exists its fields are overwritten; otherwise a new row is
// inserted with a fresh local id. Either way the row ends synced with
// last_modified_at = modifiedAt, and the identifier mapping is recorded in
// the same transaction. Returns the affected local id.
//
// Field values must already be in local terms: foreign-key columns hold
// local identifiers (the reconciliation engine rewrites them before calling
// here). Unknown field names are ignored.
func (s *Store) UpsertFromRemote(ctx context.Context, entityName, remoteID string, fields map[string]any, modifiedAt time.Time) (int64, error) {
	e, err := s.entity(entityName)
	if err != nil {
		return 0, err
	}

	var localID int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		query := fmt.Sprintf("SELECT id FROM %s WHERE remote_id = ?", e.Name)
		err := tx.QueryRowContext(ctx, query, remoteID).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			localID, err = insertFromRemoteTx(ctx, tx, e, remoteID, fields, modifiedAt)
			if err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("upsert from remote %s/%s: %w", entityName, remoteID, err)
		default:
			localID = existing
			if err := updateFromRemoteTx(ctx, tx, e, existing, fields, modifiedAt); err != nil {
				return err
			}
		}
		return upsertMappingTx(ctx, tx, entityName, localID, remoteID)
	})
	if err != nil {
		return 0, err
	}

	s.translator.remember(entityName, localID, remoteID)
	return localID, nil
}

func insertFromRemoteTx(ctx context.Context, tx *sql.Tx, e registry.Entity, remoteID string, fields map[string]any, modifiedAt time.Time) (int64, error) {
	names := []string{}
	args := []any{}
	for _, c := range e.Columns {
		v, ok := fields[c.Name]
		if !ok {
			continue
		}
		names = append(names, c.Name)
		args = append(args, v)
	}
	names = append(names, "remote_id", "sync_status", "last_modified_at")
	args = append(args, remoteID, StatusSynced.String(), modifiedAt.UTC())

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		e.Name, strings.Join(names, ", "), placeholders(len(names)),
	)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert from remote %s/%s: %w", e.Name, remoteID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert from remote %s/%s: %w", e.Name, remoteID, err)
	}
	return id, nil
}

func updateFromRemoteTx(ctx context.Context, tx *sql.Tx, e registry.Entity, localID int64, fields map[string]any, modifiedAt time.Time) error {
	sets := []string{}
	args := []any{}
	for _, c := range e.Columns {
		v, ok := fields[c.Name]
		if !ok {
			continue
		}
		sets = append(sets, c.Name+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "sync_status = 'synced'", "last_modified_at = ?")
	args = append(args, modifiedAt.UTC(), localID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", e.Name, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update from remote %s/%d: %w", e.Name, localID, err)
	}
	return nil
}

// scanRow scans the fixed bookkeeping columns plus the entity's business
// columns from the current result row.
func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	var (
		localID  int64
		remoteID sql.NullString
		status   string
		lastMod  time.Time
	)

	fieldVals := make([]any, len(cols))
	dest := []any{&localID, &remoteID, &status, &lastMod}
	for i := range fieldVals {
		dest = append(dest, &fieldVals[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return Row{}, fmt.Errorf("scan row: %w", err)
	}

	st, err := ParseStatus(status)
	if err != nil {
		return Row{}, err
	}

	fields := make(map[string]any, len(cols))
	for i, name := range cols {
		fields[name] = fieldVals[i]
	}

	return Row{
		LocalID:        localID,
		RemoteID:       remoteID.String,
		Status:         st,
		LastModifiedAt: lastMod,
		Fields:         fields,
	}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
