package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upsertOne(t *testing.T, idx *MemoryIndex, ns, id string, vec []float32) {
	t.Helper()
	err := idx.Upsert(context.Background(), ns, []string{id}, [][]float32{vec}, []string{id}, []map[string]string{{}})
	require.NoError(t, err)
}

func TestMemoryIndex_QueryOrdersBySimilarity(t *testing.T) {
	idx := NewMemoryIndex()
	upsertOne(t, idx, "kb", "far", []float32{0, 1, 0})
	upsertOne(t, idx, "kb", "near", []float32{1, 0.1, 0})
	upsertOne(t, idx, "kb", "exact", []float32{1, 0, 0})

	neighbors, err := idx.Query(context.Background(), "kb", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 3)
	assert.Equal(t, "exact", neighbors[0].ID)
	assert.Equal(t, "near", neighbors[1].ID)
	assert.Equal(t, "far", neighbors[2].ID)
	assert.InDelta(t, 1.0, neighbors[0].Similarity, 1e-9)
}

func TestMemoryIndex_QueryRespectsK(t *testing.T) {
	idx := NewMemoryIndex()
	for _, id := range []string{"a", "b", "c", "d"} {
		upsertOne(t, idx, "kb", id, []float32{1, 0})
	}

	neighbors, err := idx.Query(context.Background(), "kb", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, neighbors, 2)
}

func TestMemoryIndex_EmptyNamespace(t *testing.T) {
	idx := NewMemoryIndex()

	neighbors, err := idx.Query(context.Background(), "missing", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)

	count, err := idx.Count(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryIndex_NamespacesAreIsolated(t *testing.T) {
	idx := NewMemoryIndex()
	upsertOne(t, idx, "kb", "doc1", []float32{1, 0})
	upsertOne(t, idx, "cache", "doc2", []float32{1, 0})

	require.NoError(t, idx.Reset(context.Background(), "cache"))

	kbCount, _ := idx.Count(context.Background(), "kb")
	cacheCount, _ := idx.Count(context.Background(), "cache")
	assert.Equal(t, 1, kbCount)
	assert.Equal(t, 0, cacheCount)
}

func TestMemoryIndex_UpsertOverwrites(t *testing.T) {
	idx := NewMemoryIndex()
	upsertOne(t, idx, "kb", "doc", []float32{1, 0})
	upsertOne(t, idx, "kb", "doc", []float32{0, 1})

	count, err := idx.Count(context.Background(), "kb")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryIndex_IDs(t *testing.T) {
	idx := NewMemoryIndex()
	upsertOne(t, idx, "kb", "b", []float32{1, 0})
	upsertOne(t, idx, "kb", "a", []float32{0, 1})

	ids, err := idx.IDs(context.Background(), "kb")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestMemoryIndex_RejectsOversizedBatch(t *testing.T) {
	idx := NewMemoryIndex()
	n := 101
	ids := make([]string, n)
	vecs := make([][]float32, n)
	docs := make([]string, n)
	metas := make([]map[string]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
		vecs[i] = []float32{1}
		metas[i] = map[string]string{}
	}

	err := idx.Upsert(context.Background(), "kb", ids, vecs, docs, metas)
	assert.Error(t, err)
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}
