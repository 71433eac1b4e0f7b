package usecases

import (
	"context"
	"fmt"
	"testing"

	"github.com/erkebulan/ustazai/internal/adapters/vectordb"
	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

func TestIngestor_ExpandsAltQuestions(t *testing.T) {
	index := newMockIndex()
	ing := NewIngestor(&mockEmbedder{}, index, nil, nil)

	entries := []entities.KnowledgeEntry{{
		ID:           "42",
		Question:     "when does suhoor end",
		Answer:       "at fajr",
		AltQuestions: []string{"until when can I eat", "", "suhoor deadline"},
	}}
	written, err := ing.Ingest(context.Background(), entries)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	// Main question plus two non-empty alternates.
	if written != 3 {
		t.Fatalf("expected 3 documents, got %d", written)
	}
	ids := index.ids[ports.NamespaceKnowledge]
	want := map[string]bool{"42_main": true, "42_alt_0": true, "42_alt_2": true}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected document id %q", id)
		}
		delete(want, id)
	}
	if len(want) != 0 {
		t.Errorf("missing document ids: %v", want)
	}
}

func TestIngestor_SkipsIncompleteEntries(t *testing.T) {
	index := newMockIndex()
	ing := NewIngestor(&mockEmbedder{}, index, nil, nil)

	entries := []entities.KnowledgeEntry{
		{ID: "1", Question: "complete", Answer: "yes"},
		{ID: "2", Question: "no answer"},
		{ID: "3", Answer: "no question"},
	}
	written, err := ing.Ingest(context.Background(), entries)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if written != 1 {
		t.Errorf("expected 1 document, got %d", written)
	}
}

func TestIngestor_Idempotent(t *testing.T) {
	index := vectordb.NewMemoryIndex()
	ing := NewIngestor(&mockEmbedder{}, index, nil, nil)
	ctx := context.Background()

	entries := []entities.KnowledgeEntry{
		{ID: "1", Question: "q1", Answer: "a1", AltQuestions: []string{"q1b"}},
		{ID: "2", Question: "q2", Answer: "a2"},
	}
	first, err := ing.Ingest(ctx, entries)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if first != 3 {
		t.Fatalf("expected 3 documents on first run, got %d", first)
	}

	second, err := ing.Ingest(ctx, entries)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if second != 0 {
		t.Errorf("re-ingesting unchanged data must write nothing, got %d", second)
	}
	count, err := ing.Count(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 documents after re-ingest, got %d", count)
	}
}

func TestIngestor_NewEntriesOnlyWriteDelta(t *testing.T) {
	index := vectordb.NewMemoryIndex()
	ing := NewIngestor(&mockEmbedder{}, index, nil, nil)
	ctx := context.Background()

	base := []entities.KnowledgeEntry{{ID: "1", Question: "q1", Answer: "a1"}}
	if _, err := ing.Ingest(ctx, base); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	extended := append(base, entities.KnowledgeEntry{ID: "2", Question: "q2", Answer: "a2"})
	written, err := ing.Ingest(ctx, extended)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if written != 1 {
		t.Errorf("expected only the new entry written, got %d", written)
	}
}

func TestIngestor_BatchesLargeLoads(t *testing.T) {
	index := newMockIndex()
	ing := NewIngestor(&mockEmbedder{}, index, nil, nil)

	var entries []entities.KnowledgeEntry
	for i := 0; i < 250; i++ {
		entries = append(entries, entities.KnowledgeEntry{
			ID:       fmt.Sprintf("%d", i),
			Question: fmt.Sprintf("question %d", i),
			Answer:   fmt.Sprintf("answer %d", i),
		})
	}
	written, err := ing.Ingest(context.Background(), entries)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if written != 250 {
		t.Fatalf("expected 250 documents, got %d", written)
	}
	for _, size := range index.batchSizes {
		if size > ports.UpsertBatchLimit {
			t.Errorf("batch of %d exceeds limit %d", size, ports.UpsertBatchLimit)
		}
	}
	if got := len(index.batchSizes); got != 3 {
		t.Errorf("expected 3 batches for 250 documents, got %d", got)
	}
}

func TestIngestor_RecordsIngestedDocuments(t *testing.T) {
	index := vectordb.NewMemoryIndex()
	recorder := &mockRecorder{}
	ing := NewIngestor(&mockEmbedder{}, index, recorder, nil)
	ctx := context.Background()

	entries := []entities.KnowledgeEntry{
		{ID: "1", Question: "q1", Answer: "a1", AltQuestions: []string{"q1b"}},
		{ID: "2", Question: "q2", Answer: "a2"},
	}
	if _, err := ing.Ingest(ctx, entries); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if recorder.documents != 3 {
		t.Errorf("expected 3 documents recorded, got %d", recorder.documents)
	}

	// A zero-write re-run must not inflate the counter.
	if _, err := ing.Ingest(ctx, entries); err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if recorder.documents != 3 {
		t.Errorf("unchanged re-ingest must record nothing, got %d", recorder.documents)
	}
}

func TestIngestor_Reset(t *testing.T) {
	index := vectordb.NewMemoryIndex()
	ing := NewIngestor(&mockEmbedder{}, index, nil, nil)
	ctx := context.Background()

	if _, err := ing.Ingest(ctx, []entities.KnowledgeEntry{{ID: "1", Question: "q", Answer: "a"}}); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if err := ing.Reset(ctx); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	count, err := ing.Count(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty namespace after reset, got %d", count)
	}
}
