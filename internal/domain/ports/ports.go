// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"
	"errors"

	"github.com/erkebulan/ustazai/internal/domain/entities"
)

// Vector index namespaces. The knowledge corpus and the answer cache live in
// the same store but never interact.
const (
	NamespaceKnowledge = "knowledge_base"
	NamespaceCache     = "ai_cache"
)

// UpsertBatchLimit is the maximum number of documents per Upsert call.
// Callers must chunk larger sets.
const UpsertBatchLimit = 100

// ErrModelUnavailable is returned by ModelClient when no generation is
// possible: either no credential was configured (permanent for the process
// lifetime) or the retry budget against transient failures is exhausted.
// Callers cannot distinguish the two cases.
var ErrModelUnavailable = errors.New("model unavailable")

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Neighbor is one nearest-neighbor result returned by VectorIndex.Query.
type Neighbor struct {
	ID         string
	Document   string
	Similarity float64 // in [0,1], higher is closer
	Metadata   map[string]string
}

// VectorIndex is a similarity-searchable store with independent namespaces.
// Side effects are confined to the named namespace. Querying an empty or
// absent namespace returns an empty list, not an error.
type VectorIndex interface {
	// Upsert inserts or overwrites entries. Batches must not exceed
	// UpsertBatchLimit documents per call.
	Upsert(ctx context.Context, namespace string, ids []string, vectors [][]float32, documents []string, metadatas []map[string]string) error

	// Query returns up to k nearest neighbors by similarity, descending.
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]Neighbor, error)

	// IDs lists all document identifiers currently in the namespace.
	IDs(ctx context.Context, namespace string) ([]string, error)

	// Reset atomically discards all entries in the namespace and
	// recreates it empty.
	Reset(ctx context.Context, namespace string) error

	// Count returns the current number of documents in the namespace.
	Count(ctx context.Context, namespace string) (int, error)
}

// ModelClient is the adapter to the generative model.
type ModelClient interface {
	// Available reports whether a valid provider credential is configured.
	// When false, Generate returns ErrModelUnavailable immediately.
	Available() bool

	// Generate sends the question with retrieved context and conversation
	// history to the model and returns the raw completion text. Concurrency
	// is bounded process-wide; callers beyond the bound block until a slot
	// frees. lang is "kk" or "ru".
	Generate(ctx context.Context, question string, contextResults []entities.RetrievalResult, history []entities.Turn, lang string) (string, error)
}

// ConversationStore keeps per-user dialogue history, oldest first.
type ConversationStore interface {
	// History returns the user's recent turns, oldest to newest.
	History(ctx context.Context, userID int64) ([]entities.Turn, error)

	// Append adds one turn and trims the history to the retention limit.
	Append(ctx context.Context, userID int64, role, text string) error

	// Clear discards the user's history.
	Clear(ctx context.Context, userID int64) error
}

// QueryLogEntry records one answered or unanswered question.
type QueryLogEntry struct {
	UserID          int64
	RequestID       string
	QueryText       string
	NormalizedText  string
	MatchedQuestion string
	AnswerText      string
	Similarity      float64
	Answered        bool
}

// QueryLog persists ask outcomes for later analysis.
type QueryLog interface {
	Log(ctx context.Context, entry QueryLogEntry) error
}
