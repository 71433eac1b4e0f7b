// Package vectordb provides vector index adapters.
// Clean Architecture: Adapters implementing ports.VectorIndex.
package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// record is one stored document with its vector and metadata.
type record struct {
	vector   []float32
	document string
	metadata map[string]string
}

// MemoryIndex is an in-process vector index with independent namespaces.
// It is the default backend when no external store is configured and the
// backend used in tests. All mutation safety is its own RWMutex; there is
// no application-level locking above it.
type MemoryIndex struct {
	mu     sync.RWMutex
	spaces map[string]map[string]record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{spaces: make(map[string]map[string]record)}
}

// Upsert inserts or overwrites documents in the namespace.
func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error {
	if len(ids) != len(vectors) || len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("upsert length mismatch: %d ids, %d vectors, %d documents, %d metadatas",
			len(ids), len(vectors), len(documents), len(metadatas))
	}
	if len(ids) > ports.UpsertBatchLimit {
		return fmt.Errorf("upsert batch of %d exceeds limit %d", len(ids), ports.UpsertBatchLimit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	space, ok := m.spaces[namespace]
	if !ok {
		space = make(map[string]record)
		m.spaces[namespace] = space
	}
	for i, id := range ids {
		space[id] = record{vector: vectors[i], document: documents[i], metadata: metadatas[i]}
	}
	return nil
}

// Query returns up to k nearest neighbors by cosine similarity, descending.
// An empty or absent namespace yields an empty list.
func (m *MemoryIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]ports.Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	space := m.spaces[namespace]
	if len(space) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		id    string
		rec   record
		score float64
	}
	results := make([]scored, 0, len(space))
	for id, rec := range space {
		results = append(results, scored{id: id, rec: rec, score: cosineSimilarity(vector, rec.vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})

	if len(results) > k {
		results = results[:k]
	}

	neighbors := make([]ports.Neighbor, len(results))
	for i, r := range results {
		neighbors[i] = ports.Neighbor{
			ID:         r.id,
			Document:   r.rec.document,
			Similarity: r.score,
			Metadata:   r.rec.metadata,
		}
	}
	return neighbors, nil
}

// IDs lists all document identifiers in the namespace.
func (m *MemoryIndex) IDs(ctx context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	space := m.spaces[namespace]
	ids := make([]string, 0, len(space))
	for id := range space {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Reset discards the namespace and recreates it empty.
func (m *MemoryIndex) Reset(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.spaces[namespace] = make(map[string]record)
	return nil
}

// Count returns the number of documents in the namespace.
func (m *MemoryIndex) Count(ctx context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.spaces[namespace]), nil
}

// cosineSimilarity computes cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
