package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// ChromaIndex implements ports.VectorIndex against a ChromaDB server's REST
// API. Namespaces map one-to-one onto Chroma collections created with the
// cosine HNSW space, so query distances convert to similarity as 1 - d.
type ChromaIndex struct {
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	collections map[string]string // namespace -> collection id
}

// NewChromaIndex creates an adapter for the Chroma server at baseURL.
func NewChromaIndex(baseURL string) *ChromaIndex {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &ChromaIndex{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		collections: make(map[string]string),
	}
}

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// collectionID resolves (and caches) the Chroma collection id for a
// namespace, creating the collection if it does not exist.
func (c *ChromaIndex) collectionID(ctx context.Context, namespace string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.collections[namespace]; ok {
		return id, nil
	}

	body := map[string]any{
		"name":          namespace,
		"get_or_create": true,
		"metadata":      map[string]string{"hnsw:space": "cosine"},
	}
	var coll chromaCollection
	if err := c.post(ctx, "/api/v1/collections", body, &coll); err != nil {
		return "", fmt.Errorf("creating collection %q: %w", namespace, err)
	}
	c.collections[namespace] = coll.ID
	return coll.ID, nil
}

// Upsert inserts or overwrites documents. Batches must respect
// ports.UpsertBatchLimit; Chroma rejects oversized payloads anyway.
func (c *ChromaIndex) Upsert(ctx context.Context, namespace string, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error {
	if len(ids) > ports.UpsertBatchLimit {
		return fmt.Errorf("upsert batch of %d exceeds limit %d", len(ids), ports.UpsertBatchLimit)
	}
	collID, err := c.collectionID(ctx, namespace)
	if err != nil {
		return err
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return c.post(ctx, "/api/v1/collections/"+collID+"/upsert", body, nil)
}

type chromaQueryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Metadatas [][]map[string]string `json:"metadatas"`
	Distances [][]float64           `json:"distances"`
}

// Query returns up to k nearest neighbors, descending by similarity.
func (c *ChromaIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]ports.Neighbor, error) {
	count, err := c.Count(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if count == 0 || k <= 0 {
		return nil, nil
	}

	collID, err := c.collectionID(ctx, namespace)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp chromaQueryResponse
	if err := c.post(ctx, "/api/v1/collections/"+collID+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("querying %q: %w", namespace, err)
	}
	if len(resp.IDs) == 0 || len(resp.IDs[0]) == 0 {
		return nil, nil
	}

	neighbors := make([]ports.Neighbor, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		n := ports.Neighbor{ID: id}
		if i < len(resp.Documents[0]) {
			n.Document = resp.Documents[0][i]
		}
		if i < len(resp.Metadatas[0]) {
			n.Metadata = resp.Metadatas[0][i]
		}
		if i < len(resp.Distances[0]) {
			n.Similarity = 1.0 - resp.Distances[0][i]
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

type chromaGetResponse struct {
	IDs []string `json:"ids"`
}

// IDs lists all document identifiers in the namespace.
func (c *ChromaIndex) IDs(ctx context.Context, namespace string) ([]string, error) {
	collID, err := c.collectionID(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var resp chromaGetResponse
	if err := c.post(ctx, "/api/v1/collections/"+collID+"/get", map[string]any{"include": []string{}}, &resp); err != nil {
		return nil, fmt.Errorf("listing ids of %q: %w", namespace, err)
	}
	return resp.IDs, nil
}

// Reset drops and recreates the namespace's collection.
func (c *ChromaIndex) Reset(ctx context.Context, namespace string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/collections/"+namespace, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deleting collection %q: %w", namespace, err)
	}
	resp.Body.Close()
	// 404 is fine: the collection may not exist yet.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deleting collection %q: status %d", namespace, resp.StatusCode)
	}

	c.mu.Lock()
	delete(c.collections, namespace)
	c.mu.Unlock()

	_, err = c.collectionID(ctx, namespace)
	return err
}

// Count returns the number of documents in the namespace.
func (c *ChromaIndex) Count(ctx context.Context, namespace string) (int, error) {
	collID, err := c.collectionID(ctx, namespace)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/collections/"+collID+"/count", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("counting %q: %w", namespace, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("counting %q: status %d", namespace, resp.StatusCode)
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("decoding count: %w", err)
	}
	return count, nil
}

// post sends a JSON request and optionally decodes a JSON response into out.
func (c *ChromaIndex) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling chroma: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("chroma returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
