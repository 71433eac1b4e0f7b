// Package embedding provides the OpenAI embedding adapter.
// Clean Architecture: Adapter implementing ports.EmbeddingService.
package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is a multilingual embedding model that handles the Kazakh and
// Russian question mix.
const DefaultModel = "text-embedding-3-small"

// OpenAIAdapter implements ports.EmbeddingService against the OpenAI
// embeddings API (or any compatible endpoint via baseURL).
type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIAdapter creates an embedding adapter. baseURL and model are
// optional; empty values select the OpenAI default endpoint and DefaultModel.
func NewOpenAIAdapter(apiKey, baseURL, model string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}
}

// Embed generates an embedding for a single text.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (a *OpenAIAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: asked %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
