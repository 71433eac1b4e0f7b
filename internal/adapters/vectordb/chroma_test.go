package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newChromaStub serves just enough of the Chroma REST API for the adapter.
func newChromaStub(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(chromaCollection{ID: "coll-1", Name: body["name"].(string)})
	})
	mux.HandleFunc("/api/v1/collections/coll-1/count", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(2)
	})
	mux.HandleFunc("/api/v1/collections/coll-1/query", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(chromaQueryResponse{
			IDs:       [][]string{{"q1_main", "q2_main"}},
			Documents: [][]string{{"question one", "question two"}},
			Metadatas: [][]map[string]string{{{"answer": "a1"}, {"answer": "a2"}}},
			Distances: [][]float64{{0.05, 0.4}},
		})
	})
	mux.HandleFunc("/api/v1/collections/coll-1/upsert", func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestChromaIndex_QueryConvertsDistances(t *testing.T) {
	srv, _ := newChromaStub(t)
	idx := NewChromaIndex(srv.URL)

	neighbors, err := idx.Query(context.Background(), "knowledge_base", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "q1_main", neighbors[0].ID)
	assert.InDelta(t, 0.95, neighbors[0].Similarity, 1e-9)
	assert.InDelta(t, 0.60, neighbors[1].Similarity, 1e-9)
	assert.Equal(t, "a1", neighbors[0].Metadata["answer"])
}

func TestChromaIndex_UpsertRejectsOversizedBatch(t *testing.T) {
	idx := NewChromaIndex("http://unused")
	n := 150
	ids := make([]string, n)
	vecs := make([][]float32, n)
	docs := make([]string, n)
	metas := make([]map[string]string, n)

	err := idx.Upsert(context.Background(), "knowledge_base", ids, vecs, docs, metas)
	assert.Error(t, err)
}

func TestChromaIndex_CollectionIDCached(t *testing.T) {
	srv, paths := newChromaStub(t)
	idx := NewChromaIndex(srv.URL)

	_, err := idx.Count(context.Background(), "knowledge_base")
	require.NoError(t, err)
	_, err = idx.Count(context.Background(), "knowledge_base")
	require.NoError(t, err)

	creates := 0
	for _, p := range *paths {
		if p == "/api/v1/collections" {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
}
