package usecases

import (
	"context"
	"hash/fnv"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// mockEmbedder returns deterministic vectors derived from the text so that
// identical texts embed identically across calls.
type mockEmbedder struct {
	calls int
	err   error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return textVector(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = textVector(text)
	}
	return out, nil
}

func textVector(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, 4)
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000 + 0.001
	}
	return v
}

// mockIndex serves canned neighbors per namespace and records every call.
type mockIndex struct {
	neighbors map[string][]ports.Neighbor
	ids       map[string][]string

	queries    map[string]int
	upserts    map[string]int
	batchSizes []int
	queryErr   error
	upsertErr  error
}

func newMockIndex() *mockIndex {
	return &mockIndex{
		neighbors: make(map[string][]ports.Neighbor),
		ids:       make(map[string][]string),
		queries:   make(map[string]int),
		upserts:   make(map[string]int),
	}
}

func (m *mockIndex) Upsert(ctx context.Context, namespace string, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error {
	m.upserts[namespace]++
	m.batchSizes = append(m.batchSizes, len(ids))
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.ids[namespace] = append(m.ids[namespace], ids...)
	return nil
}

func (m *mockIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]ports.Neighbor, error) {
	m.queries[namespace]++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	result := m.neighbors[namespace]
	if len(result) > k {
		result = result[:k]
	}
	return result, nil
}

func (m *mockIndex) IDs(ctx context.Context, namespace string) ([]string, error) {
	return m.ids[namespace], nil
}

func (m *mockIndex) Reset(ctx context.Context, namespace string) error {
	m.ids[namespace] = nil
	m.neighbors[namespace] = nil
	return nil
}

func (m *mockIndex) Count(ctx context.Context, namespace string) (int, error) {
	return len(m.ids[namespace]), nil
}

// mockModel is a scripted ports.ModelClient.
type mockModel struct {
	available bool
	response  string
	err       error

	calls        int
	lastQuestion string
	lastContext  []entities.RetrievalResult
	lastHistory  []entities.Turn
	lastLang     string
}

func (m *mockModel) Available() bool { return m.available }

func (m *mockModel) Generate(ctx context.Context, question string, contextResults []entities.RetrievalResult, history []entities.Turn, lang string) (string, error) {
	m.calls++
	m.lastQuestion = question
	m.lastContext = contextResults
	m.lastHistory = history
	m.lastLang = lang
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

// mockConversations keeps per-user history in memory.
type mockConversations struct {
	turns map[int64][]entities.Turn
}

func newMockConversations() *mockConversations {
	return &mockConversations{turns: make(map[int64][]entities.Turn)}
}

func (m *mockConversations) History(ctx context.Context, userID int64) ([]entities.Turn, error) {
	return m.turns[userID], nil
}

func (m *mockConversations) Append(ctx context.Context, userID int64, role, text string) error {
	m.turns[userID] = append(m.turns[userID], entities.Turn{Role: role, Text: text})
	return nil
}

func (m *mockConversations) Clear(ctx context.Context, userID int64) error {
	delete(m.turns, userID)
	return nil
}

// mockRecorder counts pipeline events.
type mockRecorder struct {
	cacheHits       int
	cacheMisses     int
	modelCalls      int
	modelFailures   int
	parserFallbacks int
	documents       int
}

func (m *mockRecorder) CacheHit()               { m.cacheHits++ }
func (m *mockRecorder) CacheMiss()              { m.cacheMisses++ }
func (m *mockRecorder) ModelCall()              { m.modelCalls++ }
func (m *mockRecorder) ModelFailure()           { m.modelFailures++ }
func (m *mockRecorder) ParserFallback()         { m.parserFallbacks++ }
func (m *mockRecorder) DocumentsIngested(n int) { m.documents += n }

// mockQueryLog records logged entries.
type mockQueryLog struct {
	entries []ports.QueryLogEntry
}

func (m *mockQueryLog) Log(ctx context.Context, entry ports.QueryLogEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}
