// Package engine drives synchronization cycles between the local store and
// the remote store.
//
// A cycle walks three phases in order - push creates, push updates, pull
// changes - each traversing the registry in ascending dependency rank so a
// referenced entity is always handled before its referrers. Ordering is a
// soft guarantee: a row whose foreign key cannot be translated yet is
// deferred to the next cycle rather than pushed with a wrong reference, so
// correctness survives ordering violations at the cost of an extra cycle.
//
// Cycles never overlap. The engine runs them on one goroutine; triggers
// arriving mid-cycle coalesce into at most one follow-up cycle.
package engine
