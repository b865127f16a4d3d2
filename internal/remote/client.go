// Package remote abstracts the central cloud store. The sync engine only
// sees the Client interface; the REST implementation in this package speaks
// a PostgREST-style per-table API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tillsync/tillsync/internal/registry"
)

// PushRow is one local row crossing the boundary outbound. Fields carry
// remote identifiers in foreign-key columns - the orchestrator rewrites them
// before handing rows to the client.
type PushRow struct {
	// LocalID correlates the pushed row with the create acknowledgement.
	// It is never transmitted.
	LocalID int64

	// RemoteID identifies the row for updates; empty for creates.
	RemoteID string

	// Fields are the business columns of the payload.
	Fields map[string]any
}

// CreateResult pairs a pushed local row with its acknowledged remote
// identifier.
type CreateResult struct {
	LocalID  int64
	RemoteID string
}

// ChangedRow is one remote row crossing the boundary inbound.
type ChangedRow struct {
	RemoteID string

	// Fields are the business columns; foreign-key columns hold remote
	// identifiers of the referenced rows.
	Fields map[string]any

	// ModifiedAt is the remote modification timestamp driving the cursor.
	ModifiedAt time.Time
}

// Client is the remote store boundary.
//
// Calls may block on the network; every call honors the context deadline and
// a timeout is reported as a transient failure (the caller leaves the rows in
// their prior status and retries next cycle).
type Client interface {
	// Ping probes connectivity. A failed probe skips the whole cycle.
	Ping(ctx context.Context) error

	// Upsert creates rows, converging on the entity's natural key: two
	// independently created rows with the same natural key become one
	// remote row instead of duplicating. For entities without a natural
	// key the call has plain insert semantics. The batch is atomic:
	// either all rows are accepted (one result per input row, input
	// order) or none are.
	Upsert(ctx context.Context, entity registry.Entity, rows []PushRow) ([]CreateResult, error)

	// Update overwrites one existing remote row identified by RemoteID.
	// An unknown RemoteID is a data error (RejectionError), not a
	// transient failure.
	Update(ctx context.Context, entity registry.Entity, row PushRow) error

	// SelectChangedSince returns all rows of the entity modified strictly
	// after since, ordered by modification time ascending (ties broken by
	// remote id for determinism).
	SelectChangedSince(ctx context.Context, entity registry.Entity, since time.Time) ([]ChangedRow, error)
}

// TransientError wraps a failure worth retrying on the next cycle: timeout,
// connection refused, 5xx-class response. Rows involved keep their prior
// status.
type TransientError struct {
	Op     string
	Entity string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RejectionError reports the remote store rejecting a specific row or batch:
// constraint violation, unknown remote id on update. Retrying without a data
// fix will fail identically, so callers log it with identifying context and
// move on.
type RejectionError struct {
	Entity   string
	RemoteID string
	Status   int
	Message  string
}

func (e *RejectionError) Error() string {
	if e.RemoteID != "" {
		return fmt.Sprintf("remote rejected %s row %s (status %d): %s", e.Entity, e.RemoteID, e.Status, e.Message)
	}
	return fmt.Sprintf("remote rejected %s batch (status %d): %s", e.Entity, e.Status, e.Message)
}

// IsTransient reports whether err is a retryable network-class failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejection reports whether err is a remote data rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
