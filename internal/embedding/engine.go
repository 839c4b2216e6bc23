// Package embedding turns meme content into vectors for association:
// similar memes get weighted connections. Backends: Ollama (local) and
// Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"mos/internal/config"
	"mos/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is implemented by engines that can verify availability
// before batch work.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewEngine builds an engine from config.
func NewEngine(cfg *config.Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	provider := cfg.Embedding.Provider
	logging.Embedding("creating embedding engine: provider=%s model=%s", provider, cfg.Embedding.Model)

	switch provider {
	case "", "ollama":
		return NewOllamaEngine(cfg.Embedding.Endpoint, cfg.Embedding.Model)
	case "genai", "gemini":
		return NewGenAIEngine(cfg.Embedding.APIKey, cfg.Embedding.Model)
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q (use ollama or genai)", provider)
	}
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched dimensions or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// SimilarityResult pairs a corpus index with its similarity score.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the k corpus vectors most similar to the query,
// best first.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}
	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		results = append(results, SimilarityResult{
			Index:      i,
			Similarity: CosineSimilarity(query, vec),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Index < results[j].Index
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
