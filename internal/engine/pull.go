package engine

import (
	"context"
	"log/slog"

	"github.com/tillsync/tillsync/internal/registry"
	"github.com/tillsync/tillsync/internal/remote"
)

// pull fetches all rows changed server-side since the last cursor and
// applies them locally, entities in ascending dependency order. The cursor
// only advances when every entity pulled cleanly and nothing was deferred,
// so a held-back row is guaranteed to be seen again next cycle. Re-applying
// an already-applied row is a harmless upsert.
func (e *Engine) pull(ctx context.Context, log *slog.Logger, report *Report) error {
	cursor, err := e.store.LastSyncTimestamp(ctx)
	if err != nil {
		return err
	}
	report.Cursor = cursor

	maxSeen := cursor

	for _, entity := range e.reg.EntitiesInDependencyOrder() {
		if cancelled(ctx) {
			return ctx.Err()
		}

		changed, err := e.remote.SelectChangedSince(ctx, entity, cursor)
		if err != nil {
			e.recordFailure(log, report, PhasePulling, entity.Name, err)
			continue
		}

		for _, incoming := range changed {
			if incoming.ModifiedAt.After(maxSeen) {
				maxSeen = incoming.ModifiedAt
			}
			e.applyRemoteRow(ctx, log, report, entity, incoming)
		}
	}

	if report.pullFailed() || report.DeferredPull > 0 {
		log.Info("holding sync cursor", "cursor", cursor,
			"failures", len(report.Failures), "deferred", report.DeferredPull)
		return nil
	}
	if maxSeen.After(cursor) {
		if err := e.store.SetLastSyncTimestamp(ctx, maxSeen); err != nil {
			return err
		}
		report.Cursor = maxSeen
		report.CursorAdvanced = true
		log.Debug("advanced sync cursor", "cursor", maxSeen)
	}
	return nil
}

// applyRemoteRow translates the incoming row's foreign keys to local
// identifiers, consults the conflict policy and upserts by remote id.
func (e *Engine) applyRemoteRow(ctx context.Context, log *slog.Logger, report *Report, entity registry.Entity, incoming remote.ChangedRow) {
	fields, ok := e.buildPullFields(entity, incoming)
	if !ok {
		report.DeferredPull++
		e.metrics.DeferralsTotal.WithLabelValues("pull").Inc()
		log.Info("deferring pull, referenced row not yet known locally",
			"entity", entity.Name, "remote_id", incoming.RemoteID)
		return
	}

	local, found, err := e.store.FindByRemoteID(ctx, entity.Name, incoming.RemoteID)
	if err != nil {
		e.recordFailure(log, report, PhasePulling, entity.Name, err)
		return
	}
	if found && !e.policy.ShouldApply(local, incoming) {
		report.Skipped++
		log.Debug("conflict policy kept local row",
			"policy", e.policy.Name(), "entity", entity.Name, "remote_id", incoming.RemoteID)
		return
	}

	if _, err := e.store.UpsertFromRemote(ctx, entity.Name, incoming.RemoteID, fields, incoming.ModifiedAt); err != nil {
		e.recordFailure(log, report, PhasePulling, entity.Name, err)
		return
	}
	report.Pulled++
	e.metrics.RowsPulledTotal.Inc()
}

// buildPullFields rewrites foreign-key columns from remote identifiers to
// local row ids. Returns ok=false when a referenced row has not been pulled
// or created locally yet.
func (e *Engine) buildPullFields(entity registry.Entity, incoming remote.ChangedRow) (map[string]any, bool) {
	fields := make(map[string]any, len(incoming.Fields))
	translator := e.store.Translator()

	for name, value := range incoming.Fields {
		target, isFK := entity.ForeignKeys[name]
		if !isFK {
			fields[name] = value
			continue
		}

		if value == nil {
			fields[name] = nil
			continue
		}

		remoteRef, ok := value.(string)
		if !ok {
			return nil, false
		}
		localRef, ok := translator.ToLocal(target, remoteRef)
		if !ok {
			return nil, false
		}
		fields[name] = localRef
	}

	return fields, true
}