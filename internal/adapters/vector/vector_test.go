package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/adapters/vector"
)

func newTestStore(t *testing.T) *vector.Store {
	t.Helper()
	store, err := vector.New(t.TempDir(), 4)
	require.NoError(t, err)
	return store
}

func TestUpsertAndSearch_RanksByCosineSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c1", Vector: []float32{1, 0, 0}},
		{DocumentID: "doc-1", ChunkID: "c2", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	matches, err := store.Search(ctx, "tenant-a", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c1", matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestUpsert_ReplacesPriorEntriesForSameDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c1", Vector: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c2", Vector: []float32{0, 1}},
	}))

	count, err := store.Count(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDelete_RemovesDocumentEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c1", Vector: []float32{1, 0}},
	}))
	require.NoError(t, store.Delete(ctx, "tenant-a", "doc-1"))

	count, err := store.Count(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTenantIndexesAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c1", Vector: []float32{1, 0}},
	}))

	countB, err := store.Count(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Equal(t, 0, countB)
}

func TestPersistsAcrossStoreInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store1, err := vector.New(dir, 4)
	require.NoError(t, err)
	require.NoError(t, store1.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c1", Vector: []float32{1, 0}},
	}))

	store2, err := vector.New(dir, 4)
	require.NoError(t, err)
	count, err := store2.Count(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRebuild_ReplacesEntireIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "tenant-a", "doc-1", []vector.Entry{
		{DocumentID: "doc-1", ChunkID: "c1", Vector: []float32{1, 0}},
	}))
	require.NoError(t, store.Rebuild(ctx, "tenant-a", []vector.Entry{
		{DocumentID: "doc-2", ChunkID: "c2", Vector: []float32{0, 1}},
	}))

	entries, err := store.Export(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc-2", entries[0].DocumentID)
}

func TestHealthCheck_WritableRootSucceeds(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}
