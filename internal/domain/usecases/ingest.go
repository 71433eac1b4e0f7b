package usecases

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// indexedDoc is one surface phrasing prepared for upsert.
type indexedDoc struct {
	id   string
	text string
	meta map[string]string
}

// Ingestor loads knowledge entries into the knowledge namespace.
// Ingestion is idempotent: candidate document ids are diffed against the
// namespace's current contents and only the delta is embedded and written,
// so re-running over unchanged source data performs zero writes.
type Ingestor struct {
	embedder ports.EmbeddingService
	index    ports.VectorIndex
	metrics  Recorder
	log      *zap.Logger
}

// NewIngestor creates an Ingestor. metrics may be nil.
func NewIngestor(embedder ports.EmbeddingService, index ports.VectorIndex, metrics Recorder, log *zap.Logger) *Ingestor {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{embedder: embedder, index: index, metrics: metrics, log: log}
}

// Ingest indexes the entries' phrasings and returns the number of documents
// written. Entries missing a question or answer are skipped. Each alternate
// phrasing becomes its own document sharing the parent's identity and answer.
func (ing *Ingestor) Ingest(ctx context.Context, entries []entities.KnowledgeEntry) (int, error) {
	var docs []indexedDoc
	skipped := 0
	for i, entry := range entries {
		if entry.Question == "" || entry.Answer == "" {
			ing.log.Warn("skipping entry with missing question or answer", zap.String("id", entry.ID))
			skipped++
			continue
		}
		docs = append(docs, expandEntry(entry, i)...)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	existing, err := ing.index.IDs(ctx, ports.NamespaceKnowledge)
	if err != nil {
		return 0, fmt.Errorf("listing knowledge ids: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		present[id] = struct{}{}
	}

	var delta []indexedDoc
	for _, doc := range docs {
		if _, ok := present[doc.id]; !ok {
			delta = append(delta, doc)
		}
	}
	if len(delta) == 0 {
		ing.log.Info("knowledge unchanged, nothing to ingest", zap.Int("documents", len(docs)))
		return 0, nil
	}

	for start := 0; start < len(delta); start += ports.UpsertBatchLimit {
		end := start + ports.UpsertBatchLimit
		if end > len(delta) {
			end = len(delta)
		}
		batch := delta[start:end]

		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = doc.text
		}
		vectors, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding knowledge batch: %w", err)
		}

		ids := make([]string, len(batch))
		metas := make([]map[string]string, len(batch))
		for i, doc := range batch {
			ids[i] = doc.id
			metas[i] = doc.meta
		}
		if err := ing.index.Upsert(ctx, ports.NamespaceKnowledge, ids, vectors, texts, metas); err != nil {
			return 0, fmt.Errorf("upserting knowledge batch: %w", err)
		}
	}

	ing.metrics.DocumentsIngested(len(delta))
	ing.log.Info("knowledge ingested",
		zap.Int("entries", len(entries)-skipped),
		zap.Int("documents", len(delta)),
		zap.Int("skipped", skipped))
	return len(delta), nil
}

// Reset discards the knowledge namespace for a full re-ingestion.
func (ing *Ingestor) Reset(ctx context.Context) error {
	return ing.index.Reset(ctx, ports.NamespaceKnowledge)
}

// Count returns the number of indexed knowledge documents.
func (ing *Ingestor) Count(ctx context.Context) (int, error) {
	return ing.index.Count(ctx, ports.NamespaceKnowledge)
}

// expandEntry turns one entry into its indexable documents: the main
// question plus every alternate phrasing, all carrying the same logical
// identity and canonical answer in metadata.
func expandEntry(entry entities.KnowledgeEntry, ordinal int) []indexedDoc {
	logicalID := entry.ID
	if logicalID == "" {
		logicalID = fmt.Sprintf("%d", ordinal)
	}

	meta := func(isAlt bool) map[string]string {
		m := map[string]string{
			"knowledge_id": logicalID,
			"answer":       entry.Answer,
			"category":     entry.Category,
			"tags":         strings.Join(entry.Tags, ","),
			"source":       entry.Source,
			"source_url":   entry.SourceURL,
			"author":       entry.Author,
			"book_title":   entry.BookTitle,
			"page":         entry.Page,
			"is_alt":       "false",
		}
		if isAlt {
			m["is_alt"] = "true"
		}
		return m
	}

	docs := []indexedDoc{{
		id:   logicalID + "_main",
		text: entry.Question,
		meta: meta(false),
	}}
	for i, alt := range entry.AltQuestions {
		if strings.TrimSpace(alt) == "" {
			continue
		}
		docs = append(docs, indexedDoc{
			id:   fmt.Sprintf("%s_alt_%d", logicalID, i),
			text: alt,
			meta: meta(true),
		})
	}
	return docs
}
