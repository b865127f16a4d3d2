package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tillsync/tillsync/internal/registry"
)

// testRegistry builds a two-entity registry with a foreign key between them.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Entity{
		{
			Name: "product_groups",
			Columns: []registry.Column{
				{Name: "name", Type: registry.ColumnText, NotNull: true},
			},
			NaturalKey: "name",
			Rank:       0,
		},
		{
			Name: "products",
			Columns: []registry.Column{
				{Name: "description", Type: registry.ColumnText, NotNull: true},
				{Name: "barcode", Type: registry.ColumnText},
				{Name: "price", Type: registry.ColumnInteger, NotNull: true},
				{Name: "group_id", Type: registry.ColumnInteger},
			},
			ForeignKeys: map[string]string{"group_id": "product_groups"},
			NaturalKey:  "barcode",
			Rank:        1,
		},
	})
	require.NoError(t, err)
	return reg
}

// createTestStore opens a store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testRegistry(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
