package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tillsync/tillsync/internal/registry"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/store"
)

// pushCreates walks entities in ascending dependency order and pushes all
// pending_create rows via upsert. Rows whose foreign keys cannot be
// translated yet are deferred; rows of a failed batch stay pending_create
// and retry next cycle.
func (e *Engine) pushCreates(ctx context.Context, log *slog.Logger, report *Report) {
	for _, entity := range e.reg.EntitiesInDependencyOrder() {
		if cancelled(ctx) {
			return
		}

		rows, err := e.store.FindByStatus(ctx, entity.Name, store.StatusPendingCreate)
		if err != nil {
			e.recordFailure(log, report, PhasePushingCreates, entity.Name, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		var batch []remote.PushRow
		for _, row := range rows {
			fields, ok := e.buildPushFields(entity, row)
			if !ok {
				// Referenced row not synced yet; expected during a cold
				// multi-table sync, retried automatically.
				report.DeferredPush++
				e.metrics.DeferralsTotal.WithLabelValues("push").Inc()
				log.Info("deferring create, referenced row not yet synced",
					"entity", entity.Name, "local_id", row.LocalID)
				continue
			}
			batch = append(batch, remote.PushRow{LocalID: row.LocalID, Fields: fields})
		}

		for start := 0; start < len(batch); start += e.pushBatchSize {
			end := min(start+e.pushBatchSize, len(batch))
			chunk := batch[start:end]

			results, err := e.remote.Upsert(ctx, entity, chunk)
			if err != nil {
				e.recordFailure(log, report, PhasePushingCreates, entity.Name, err)
				break
			}

			for _, res := range results {
				if err := e.store.MarkSynced(ctx, entity.Name, res.LocalID, res.RemoteID); err != nil {
					e.recordFailure(log, report, PhasePushingCreates, entity.Name, err)
					continue
				}
				report.Created++
				e.metrics.RowsPushedTotal.WithLabelValues("create").Inc()
				log.Debug("create acknowledged",
					"entity", entity.Name, "local_id", res.LocalID, "remote_id", res.RemoteID)
			}
		}
	}
}

// pushUpdates walks entities in ascending dependency order and pushes all
// pending_update rows one by one, so a rejected row cannot hold back its
// siblings. A transient failure abandons the rest of the entity's rows for
// this cycle; a rejection is logged and the row retried next cycle.
func (e *Engine) pushUpdates(ctx context.Context, log *slog.Logger, report *Report) {
	for _, entity := range e.reg.EntitiesInDependencyOrder() {
		if cancelled(ctx) {
			return
		}

		rows, err := e.store.FindByStatus(ctx, entity.Name, store.StatusPendingUpdate)
		if err != nil {
			e.recordFailure(log, report, PhasePushingUpdates, entity.Name, err)
			continue
		}

		for _, row := range rows {
			if row.RemoteID == "" {
				// A pending_update row always has a remote id; a bare one
				// means the bookkeeping contract was violated upstream.
				e.recordFailure(log, report, PhasePushingUpdates, entity.Name,
					fmt.Errorf("row %d is pending_update without a remote id", row.LocalID))
				continue
			}

			fields, ok := e.buildPushFields(entity, row)
			if !ok {
				report.DeferredPush++
				e.metrics.DeferralsTotal.WithLabelValues("push").Inc()
				log.Info("deferring update, referenced row not yet synced",
					"entity", entity.Name, "local_id", row.LocalID)
				continue
			}

			err := e.remote.Update(ctx, entity, remote.PushRow{
				LocalID:  row.LocalID,
				RemoteID: row.RemoteID,
				Fields:   fields,
			})
			if err != nil {
				e.recordFailure(log, report, PhasePushingUpdates, entity.Name, err)
				if remote.IsTransient(err) {
					break
				}
				continue
			}

			if err := e.store.MarkUpdateSynced(ctx, entity.Name, row.LocalID); err != nil {
				e.recordFailure(log, report, PhasePushingUpdates, entity.Name, err)
				continue
			}
			report.Updated++
			e.metrics.RowsPushedTotal.WithLabelValues("update").Inc()
		}
	}
}

// buildPushFields assembles the outbound payload for a row: business columns
// with every foreign-key column rewritten from local to remote identifier.
// Returns ok=false when any referenced row has no mapping yet - the row must
// be deferred, never pushed with a placeholder reference.
func (e *Engine) buildPushFields(entity registry.Entity, row store.Row) (map[string]any, bool) {
	fields := make(map[string]any, len(row.Fields))
	translator := e.store.Translator()

	for name, value := range row.Fields {
		target, isFK := entity.ForeignKeys[name]
		if !isFK {
			fields[name] = value
			continue
		}

		if value == nil {
			// Optional reference, nothing to translate.
			fields[name] = nil
			continue
		}

		localRef, ok := value.(int64)
		if !ok {
			return nil, false
		}
		remoteRef, ok := translator.ToRemote(target, localRef)
		if !ok {
			return nil, false
		}
		fields[name] = remoteRef
	}

	return fields, true
}
