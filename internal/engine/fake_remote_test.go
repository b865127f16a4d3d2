package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tillsync/tillsync/internal/registry"
	"github.com/tillsync/tillsync/internal/remote"
)

// fakeRemote is an in-memory remote store with upsert, patch and
// changed-since semantics. Every write bumps an internal second-granularity
// clock so modification order is total and deterministic.
type fakeRemote struct {
	mu     sync.Mutex
	tables map[string]map[string]*fakeRow
	seq    int
	now    time.Time

	pingErr   error
	upsertErr map[string]error
	updateErr map[string]error
	selectErr map[string]error

	pings    int
	pingHook func()
}

type fakeRow struct {
	id        string
	fields    map[string]any
	updatedAt time.Time
}

var _ remote.Client = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tables:    make(map[string]map[string]*fakeRow),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		upsertErr: make(map[string]error),
		updateErr: make(map[string]error),
		selectErr: make(map[string]error),
	}
}

func (f *fakeRemote) table(name string) map[string]*fakeRow {
	if f.tables[name] == nil {
		f.tables[name] = make(map[string]*fakeRow)
	}
	return f.tables[name]
}

func (f *fakeRemote) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

// seed plants a row as if another installation had pushed it.
func (f *fakeRemote) seed(entity, id string, fields map[string]any) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := &fakeRow{id: id, fields: cloneFields(fields), updatedAt: f.tick()}
	f.table(entity)[id] = row
	return row.updatedAt
}

func (f *fakeRemote) row(entity, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.table(entity)[id]
	if !ok {
		return nil, false
	}
	return cloneFields(row.fields), true
}

func (f *fakeRemote) rowCount(entity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(entity))
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	hook := f.pingHook
	err := f.pingErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeRemote) Upsert(ctx context.Context, entity registry.Entity, rows []remote.PushRow) ([]remote.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.upsertErr[entity.Name]; err != nil {
		return nil, err
	}

	table := f.table(entity.Name)
	results := make([]remote.CreateResult, len(rows))
	for i, r := range rows {
		var target *fakeRow
		if entity.NaturalKey != "" {
			if key := r.Fields[entity.NaturalKey]; key != nil {
				for _, existing := range table {
					if existing.fields[entity.NaturalKey] == key {
						target = existing
						break
					}
				}
			}
		}
		if target == nil {
			f.seq++
			target = &fakeRow{id: fmt.Sprintf("uuid-%d", f.seq)}
			table[target.id] = target
		}
		target.fields = cloneFields(r.Fields)
		target.updatedAt = f.tick()
		results[i] = remote.CreateResult{LocalID: r.LocalID, RemoteID: target.id}
	}
	return results, nil
}

func (f *fakeRemote) Update(ctx context.Context, entity registry.Entity, row remote.PushRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.updateErr[entity.Name]; err != nil {
		return err
	}

	target, ok := f.table(entity.Name)[row.RemoteID]
	if !ok {
		return &remote.RejectionError{Entity: entity.Name, RemoteID: row.RemoteID, Message: "unknown row"}
	}
	for k, v := range row.Fields {
		target.fields[k] = v
	}
	target.updatedAt = f.tick()
	return nil
}

func (f *fakeRemote) SelectChangedSince(ctx context.Context, entity registry.Entity, since time.Time) ([]remote.ChangedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.selectErr[entity.Name]; err != nil {
		return nil, err
	}

	var changed []remote.ChangedRow
	for _, row := range f.table(entity.Name) {
		if row.updatedAt.After(since) {
			changed = append(changed, remote.ChangedRow{
				RemoteID:   row.id,
				Fields:     cloneFields(row.fields),
				ModifiedAt: row.updatedAt,
			})
		}
	}
	sort.Slice(changed, func(i, j int) bool {
		if !changed[i].ModifiedAt.Equal(changed[j].ModifiedAt) {
			return changed[i].ModifiedAt.Before(changed[j].ModifiedAt)
		}
		return changed[i].RemoteID < changed[j].RemoteID
	})
	return changed, nil
}

func transientErr(op string) error {
	return &remote.TransientError{Op: op, Entity: "-", Err: fmt.Errorf("connection refused")}
}

func rejectionErr(entity string) error {
	return &remote.RejectionError{Entity: entity, Status: 400, Message: "constraint violation"}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
