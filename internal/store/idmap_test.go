package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslatorUnknownLookups(t *testing.T) {
	s := createTestStore(t)

	_, ok := s.Translator().ToRemote("products", 42)
	assert.False(t, ok)

	_, ok = s.Translator().ToLocal("products", "nope")
	assert.False(t, ok)

	assert.Equal(t, 0, s.Translator().Len("products"))
}

func TestTranslatorRecordRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Translator().Record(ctx, "products", 10, "uuid-1"))

	remoteID, ok := s.Translator().ToRemote("products", 10)
	require.True(t, ok)
	assert.Equal(t, "uuid-1", remoteID)

	localID, ok := s.Translator().ToLocal("products", "uuid-1")
	require.True(t, ok)
	assert.Equal(t, int64(10), localID)
}

func TestTranslatorEntitiesAreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Translator().Record(ctx, "products", 10, "uuid-1"))

	_, ok := s.Translator().ToRemote("product_groups", 10)
	assert.False(t, ok)
}

func TestTranslatorRerecordDropsStaleReverseEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Translator().Record(ctx, "products", 10, "uuid-1"))
	require.NoError(t, s.Translator().Record(ctx, "products", 10, "uuid-2"))

	remoteID, ok := s.Translator().ToRemote("products", 10)
	require.True(t, ok)
	assert.Equal(t, "uuid-2", remoteID)

	_, ok = s.Translator().ToLocal("products", "uuid-1")
	assert.False(t, ok)

	assert.Equal(t, 1, s.Translator().Len("products"))
}

func TestTranslatorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	s1, err := Open(path, testRegistry(t))
	require.NoError(t, err)
	require.NoError(t, s1.Translator().Record(ctx, "products", 10, "uuid-1"))
	require.NoError(t, s1.Close())

	s2, err := Open(path, testRegistry(t))
	require.NoError(t, err)
	defer s2.Close()

	remoteID, ok := s2.Translator().ToRemote("products", 10)
	require.True(t, ok)
	assert.Equal(t, "uuid-1", remoteID)
}
