package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLocalStartsPendingCreate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "Drinks"}, now)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	row, found, err := s.FindByLocalID(ctx, "product_groups", id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusPendingCreate, row.Status)
	assert.Empty(t, row.RemoteID)
	assert.Equal(t, "Drinks", row.Fields["name"])
}

func TestCreateLocalRejectsUnknownColumn(t *testing.T) {
	s := createTestStore(t)

	_, err := s.CreateLocal(context.Background(), "product_groups",
		map[string]any{"color": "red"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown column "color"`)
}

func TestCreateLocalRejectsUnknownEntity(t *testing.T) {
	s := createTestStore(t)

	_, err := s.CreateLocal(context.Background(), "ghosts", map[string]any{}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in registry")
}

func TestFindByStatusReturnsInsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "A"}, now)
	require.NoError(t, err)
	second, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "B"}, now)
	require.NoError(t, err)

	rows, err := s.FindByStatus(ctx, "product_groups", StatusPendingCreate)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first, rows[0].LocalID)
	assert.Equal(t, second, rows[1].LocalID)
}

func TestFindByStatusEmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.FindByStatus(context.Background(), "products", StatusPendingUpdate)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestMarkSyncedRecordsMappingAtomically(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "Drinks"}, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, "product_groups", id, "uuid-1"))

	row, found, err := s.FindByLocalID(ctx, "product_groups", id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusSynced, row.Status)
	assert.Equal(t, "uuid-1", row.RemoteID)

	remoteID, ok := s.Translator().ToRemote("product_groups", id)
	require.True(t, ok)
	assert.Equal(t, "uuid-1", remoteID)

	localID, ok := s.Translator().ToLocal("product_groups", "uuid-1")
	require.True(t, ok)
	assert.Equal(t, id, localID)
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "Drinks"}, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, "product_groups", id, "uuid-1"))
	require.NoError(t, s.MarkSynced(ctx, "product_groups", id, "uuid-1"))

	assert.Equal(t, 1, s.Translator().Len("product_groups"))
}

func TestTouchForUpdateFlipsSyncedOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "Drinks"}, now)
	require.NoError(t, err)

	// Still pending_create: an edit must not flip the status, the unpushed
	// create already carries it.
	require.NoError(t, s.TouchForUpdate(ctx, "product_groups", id,
		map[string]any{"name": "Beverages"}, now.Add(time.Second)))
	row, _, err := s.FindByLocalID(ctx, "product_groups", id)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingCreate, row.Status)
	assert.Equal(t, "Beverages", row.Fields["name"])

	require.NoError(t, s.MarkSynced(ctx, "product_groups", id, "uuid-1"))
	require.NoError(t, s.TouchForUpdate(ctx, "product_groups", id,
		map[string]any{"name": "Cold Drinks"}, now.Add(2*time.Second)))

	row, _, err = s.FindByLocalID(ctx, "product_groups", id)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingUpdate, row.Status)
	assert.Equal(t, "uuid-1", row.RemoteID)
}

func TestTouchForUpdateMissingRow(t *testing.T) {
	s := createTestStore(t)

	err := s.TouchForUpdate(context.Background(), "product_groups", 999,
		map[string]any{"name": "x"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")
}

func TestMarkUpdateSyncedKeepsRemoteID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "Drinks"}, now)
	require.NoError(t, err)
	require.NoError(t, s.MarkSynced(ctx, "product_groups", id, "uuid-1"))
	require.NoError(t, s.TouchForUpdate(ctx, "product_groups", id,
		map[string]any{"name": "Beverages"}, now.Add(time.Second)))

	require.NoError(t, s.MarkUpdateSynced(ctx, "product_groups", id))

	row, _, err := s.FindByLocalID(ctx, "product_groups", id)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, row.Status)
	assert.Equal(t, "uuid-1", row.RemoteID)
}

func TestUpsertFromRemoteInsertsThenUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.UpsertFromRemote(ctx, "product_groups", "uuid-9",
		map[string]any{"name": "Snacks"}, modified)
	require.NoError(t, err)

	row, found, err := s.FindByRemoteID(ctx, "product_groups", "uuid-9")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, row.LocalID)
	assert.Equal(t, StatusSynced, row.Status)
	assert.Equal(t, "Snacks", row.Fields["name"])

	// Second application lands on the same local row.
	again, err := s.UpsertFromRemote(ctx, "product_groups", "uuid-9",
		map[string]any{"name": "Sweets"}, modified.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	row, _, err = s.FindByRemoteID(ctx, "product_groups", "uuid-9")
	require.NoError(t, err)
	assert.Equal(t, "Sweets", row.Fields["name"])

	localID, ok := s.Translator().ToLocal("product_groups", "uuid-9")
	require.True(t, ok)
	assert.Equal(t, id, localID)
}

func TestUpsertFromRemoteIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fields := map[string]any{"name": "Snacks"}

	first, err := s.UpsertFromRemote(ctx, "product_groups", "uuid-9", fields, modified)
	require.NoError(t, err)
	second, err := s.UpsertFromRemote(ctx, "product_groups", "uuid-9", fields, modified)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	n, err := s.CountByStatus(ctx, "product_groups", StatusSynced)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertFromRemoteWithForeignKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	modified := time.Now().UTC()

	groupID, err := s.UpsertFromRemote(ctx, "product_groups", "grp-1",
		map[string]any{"name": "Drinks"}, modified)
	require.NoError(t, err)

	prodID, err := s.UpsertFromRemote(ctx, "products", "prd-1", map[string]any{
		"description": "Cola 350ml",
		"barcode":     "789100",
		"price":       int64(550),
		"group_id":    groupID,
	}, modified)
	require.NoError(t, err)

	row, _, err := s.FindByLocalID(ctx, "products", prodID)
	require.NoError(t, err)
	assert.Equal(t, groupID, row.Fields["group_id"])
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s1, err := Open(path, testRegistry(t))
	require.NoError(t, err)

	id, err := s1.CreateLocal(context.Background(), "product_groups",
		map[string]any{"name": "Drinks"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, testRegistry(t))
	require.NoError(t, err)
	defer s2.Close()

	row, found, err := s2.FindByLocalID(context.Background(), "product_groups", id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Drinks", row.Fields["name"])
}
