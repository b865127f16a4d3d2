package engine

import (
	"errors"

	"github.com/tillsync/tillsync/internal/remote"
)

// ErrCycleInProgress is returned by RunCycle when another cycle holds the
// single-flight slot. Callers that want the work done anyway should use
// TriggerSync, which coalesces into the follow-up cycle.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// failureKind labels a per-entity failure for logs and metrics.
type failureKind string

const (
	failureTransient failureKind = "transient"
	failureRejected  failureKind = "rejected"
	failureInternal  failureKind = "internal"
)

// classify buckets an error into the taxonomy: network-class failures are
// retried silently next cycle, rejections identify bad data, everything else
// is a local fault.
func classify(err error) failureKind {
	switch {
	case remote.IsTransient(err):
		return failureTransient
	case remote.IsRejection(err):
		return failureRejected
	default:
		return failureInternal
	}
}
