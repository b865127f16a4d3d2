package store

import (
	"fmt"
	"time"
)

// Status is the sync state of a local row. The zero value is invalid so a
// missed initialization cannot masquerade as a real state.
type Status uint8

const (
	// StatusPendingCreate marks a row that exists only locally.
	// Invariant: a row with no remote identifier is always pending_create.
	StatusPendingCreate Status = iota + 1

	// StatusPendingUpdate marks a row edited locally since its last push.
	// The row already has a remote identifier.
	StatusPendingUpdate

	// StatusSynced marks a row identical on both sides as of the last cycle.
	StatusSynced
)

// String returns the wire/database form of the status.
func (s Status) String() string {
	switch s {
	case StatusPendingCreate:
		return "pending_create"
	case StatusPendingUpdate:
		return "pending_update"
	case StatusSynced:
		return "synced"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ParseStatus converts the database form back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending_create":
		return StatusPendingCreate, nil
	case "pending_update":
		return StatusPendingUpdate, nil
	case "synced":
		return StatusSynced, nil
	default:
		return 0, fmt.Errorf("unknown sync status %q", s)
	}
}

// Row is one synchronized record as read from the local store.
type Row struct {
	// LocalID is the process-local primary key. It is never transmitted as
	// identity; it only keys the identifier map.
	LocalID int64

	// RemoteID is the remote identifier, empty until the row's create has
	// been acknowledged remotely.
	RemoteID string

	// Status is the row's sync state.
	Status Status

	// LastModifiedAt is the timestamp of the most recent local mutation.
	LastModifiedAt time.Time

	// Fields holds the declared business columns, foreign keys included
	// (foreign-key values are local identifiers of the referenced rows).
	Fields map[string]any
}
