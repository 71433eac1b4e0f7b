// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
package usecases

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// CachePolicy decides whether the answer cache participates in a turn.
// It is selected once per turn from the conversation state, so the gating
// rule stays testable independent of the surrounding pipeline.
type CachePolicy int

const (
	// AlwaysCheckCache: single-turn question; lookup before generating and
	// store the answer afterwards (unless off-topic).
	AlwaysCheckCache CachePolicy = iota

	// NeverCheckCache: mid-dialogue question; a cached answer from a
	// different conversational context could be contextually wrong, so the
	// cache is neither read nor written.
	NeverCheckCache
)

// PolicyFor derives the cache policy from the turn's prior history.
func PolicyFor(history []entities.Turn) CachePolicy {
	if len(history) == 0 {
		return AlwaysCheckCache
	}
	return NeverCheckCache
}

// DefaultCacheThreshold is the minimum similarity for a cache hit.
const DefaultCacheThreshold = 0.90

// CacheGate reads and writes the memoized-answer namespace.
// Entries are append-only: stores never merge with near-identical rows, and
// nothing expires without an explicit Clear.
type CacheGate struct {
	embedder  ports.EmbeddingService
	index     ports.VectorIndex
	threshold float64
	log       *zap.Logger
	now       func() time.Time
}

// NewCacheGate creates a CacheGate. threshold <= 0 selects the default.
func NewCacheGate(embedder ports.EmbeddingService, index ports.VectorIndex, threshold float64, log *zap.Logger) *CacheGate {
	if threshold <= 0 {
		threshold = DefaultCacheThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CacheGate{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		log:       log,
		now:       time.Now,
	}
}

// Lookup searches the cache for a question similar to the normalized query.
// A hit requires the nearest neighbor's similarity to be at or above the
// threshold (inclusive); otherwise nil is returned.
func (g *CacheGate) Lookup(ctx context.Context, normalized string) (*entities.CacheHit, error) {
	vector, err := g.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embedding cache query: %w", err)
	}

	neighbors, err := g.index.Query(ctx, ports.NamespaceCache, vector, 1)
	if err != nil {
		return nil, fmt.Errorf("querying cache: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	n := neighbors[0]
	if n.Similarity < g.threshold {
		return nil, nil
	}

	g.log.Info("cache hit",
		zap.Float64("similarity", n.Similarity),
		zap.String("matched_question", n.Document))

	return &entities.CacheHit{
		Answer:          n.Metadata["answer"],
		Sources:         n.Metadata["sources"],
		MatchedQuestion: n.Document,
		Similarity:      n.Similarity,
	}, nil
}

// Store memoizes an answer under the normalized question. Each store creates
// a new entry keyed by a timestamp-derived identifier; there is no dedup
// against existing near-identical entries.
func (g *CacheGate) Store(ctx context.Context, normalized, answer, sources string) error {
	if answer == "" {
		return nil
	}

	vector, err := g.embedder.Embed(ctx, normalized)
	if err != nil {
		return fmt.Errorf("embedding cache entry: %w", err)
	}

	now := g.now()
	id := fmt.Sprintf("cache_%d", now.UnixMilli())
	meta := map[string]string{
		"answer":    answer,
		"sources":   sources,
		"cached_at": fmt.Sprintf("%d", now.Unix()),
	}
	if err := g.index.Upsert(ctx, ports.NamespaceCache, []string{id}, [][]float32{vector}, []string{normalized}, []map[string]string{meta}); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}

	g.log.Debug("answer cached", zap.String("question", normalized))
	return nil
}

// Clear resets the cache namespace entirely. Administrative operation, not
// part of the normal request path.
func (g *CacheGate) Clear(ctx context.Context) error {
	return g.index.Reset(ctx, ports.NamespaceCache)
}

// Count returns the number of cached answers.
func (g *CacheGate) Count(ctx context.Context) (int, error) {
	return g.index.Count(ctx, ports.NamespaceCache)
}
