package engine

import (
	"fmt"

	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/store"
)

// ConflictPolicy decides whether a pulled remote row overwrites the local
// row. It only runs when a local counterpart exists; a remote row unknown
// locally is always inserted.
type ConflictPolicy interface {
	// Name identifies the policy in config and logs.
	Name() string

	// ShouldApply reports whether the remote row wins over the local one.
	ShouldApply(local store.Row, incoming remote.ChangedRow) bool
}

// LastPullWins overwrites the local row unconditionally, including local
// edits still waiting to be pushed. This mirrors the historical behavior of
// the system: the pull is authoritative between cycles.
type LastPullWins struct{}

func (LastPullWins) Name() string { return "last-pull-wins" }

func (LastPullWins) ShouldApply(store.Row, remote.ChangedRow) bool { return true }

// PreferNewer compares timestamps before overwriting: a local row with
// unpushed edits newer than the remote modification is kept, and the local
// edit goes out on the push pass of a later cycle. Rows without pending
// local edits always take the remote value.
type PreferNewer struct{}

func (PreferNewer) Name() string { return "prefer-newer" }

func (PreferNewer) ShouldApply(local store.Row, incoming remote.ChangedRow) bool {
	if local.Status != store.StatusPendingUpdate {
		return true
	}
	return !local.LastModifiedAt.After(incoming.ModifiedAt)
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (ConflictPolicy, error) {
	switch name {
	case "", LastPullWins{}.Name():
		return LastPullWins{}, nil
	case PreferNewer{}.Name():
		return PreferNewer{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", name)
	}
}
