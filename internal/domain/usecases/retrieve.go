package usecases

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// DefaultTopK is the number of knowledge neighbors fetched per question.
const DefaultTopK = 5

// Retriever finds knowledge context for a question.
// No similarity threshold is applied: up to k results come back however weak
// the match, because relevance judgment is deferred to the model and a hard
// cutoff would discard loosely related but still useful context.
type Retriever struct {
	embedder ports.EmbeddingService
	index    ports.VectorIndex
	topK     int
	log      *zap.Logger
}

// NewRetriever creates a Retriever. topK <= 0 selects the default.
func NewRetriever(embedder ports.EmbeddingService, index ports.VectorIndex, topK int, log *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, topK: topK, log: log}
}

// Retrieve returns up to k knowledge results for the normalized query,
// ordered by descending similarity. Results are deduplicated by knowledge
// entry identity, keeping only the first (highest-similarity) occurrence:
// one entry may be indexed under several phrasings and must not be
// double-counted or double-cited. k <= 0 selects the retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, normalized string, k int) ([]entities.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}

	vector, err := r.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := r.index.Query(ctx, ports.NamespaceKnowledge, vector, k)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge: %w", err)
	}

	results := make([]entities.RetrievalResult, 0, len(neighbors))
	seen := make(map[string]struct{}, len(neighbors))
	for _, n := range neighbors {
		kid := n.Metadata["knowledge_id"]
		if kid == "" {
			kid = n.ID
		}
		if _, dup := seen[kid]; dup {
			continue
		}
		seen[kid] = struct{}{}

		results = append(results, entities.RetrievalResult{
			Question:   n.Document,
			Answer:     n.Metadata["answer"],
			Similarity: n.Similarity,
			Source:     n.Metadata["source"],
			Category:   n.Metadata["category"],
			Author:     n.Metadata["author"],
			BookTitle:  n.Metadata["book_title"],
			Page:       n.Metadata["page"],
			SourceURL:  n.Metadata["source_url"],
		})
	}

	r.log.Debug("context retrieved",
		zap.Int("neighbors", len(neighbors)),
		zap.Int("unique", len(results)))
	return results, nil
}
