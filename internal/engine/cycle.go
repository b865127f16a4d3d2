package engine

import "time"

// Phase is the orchestrator's position in a cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePushingCreates
	PhasePushingUpdates
	PhasePulling
)

// String returns the log form of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePushingCreates:
		return "pushing_creates"
	case PhasePushingUpdates:
		return "pushing_updates"
	case PhasePulling:
		return "pulling"
	default:
		return "unknown"
	}
}

// Report summarizes one completed cycle.
type Report struct {
	// Cycle is the UUIDv7 token correlating all log lines of the cycle.
	Cycle string

	Started  time.Time
	Finished time.Time

	// Created and Updated count rows acknowledged by the remote store.
	Created int
	Updated int

	// Pulled counts remote rows applied locally; Skipped counts rows the
	// conflict policy declined to apply.
	Pulled  int
	Skipped int

	// DeferredPush and DeferredPull count rows put off to the next cycle
	// because a referenced row had no identifier mapping yet.
	DeferredPush int
	DeferredPull int

	// Failures lists per-entity failures; they never abort the cycle.
	Failures []Failure

	// CursorAdvanced is true when the pull pass fully succeeded and moved
	// the cursor forward. Cursor is the value after the cycle either way.
	CursorAdvanced bool
	Cursor         time.Time
}

// Failure records one isolated per-entity failure.
type Failure struct {
	Phase  Phase
	Entity string
	Kind   string
	Err    error
}

// pullFailed reports whether any entity failed during the pull phase; if so
// the cursor must not advance, or unseen remote changes for that entity
// would be silently skipped forever.
func (r *Report) pullFailed() bool {
	for _, f := range r.Failures {
		if f.Phase == PhasePulling {
			return true
		}
	}
	return false
}
