// Package embedding generates vector embeddings for the vector index.
// Backends: Ollama (local server), Google GenAI (cloud), and a deterministic
// local engine used when no provider is configured and in tests.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"cortex/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// Config selects and parameterizes an engine.
type Config struct {
	Provider string // "ollama", "genai", or "local"
	Model    string
	APIKey   string
	Endpoint string // Ollama endpoint
}

// NewEngine creates an embedding engine from configuration. An empty or
// unknown provider falls back to the local engine so the indexing pipeline
// always has something to work with.
func NewEngine(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "ollama":
		logging.Embedding("using ollama embeddings: endpoint=%s model=%s", cfg.Endpoint, cfg.Model)
		return NewOllamaEngine(cfg.Endpoint, cfg.Model), nil
	case "genai":
		logging.Embedding("using genai embeddings: model=%s", cfg.Model)
		return NewGenAIEngine(cfg.APIKey, cfg.Model)
	case "local", "":
		logging.Embedding("using local deterministic embeddings")
		return NewLocalEngine(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use ollama, genai, or local)", cfg.Provider)
	}
}

// CosineSimilarity computes the cosine similarity of two vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Match is one nearest-neighbor result.
type Match struct {
	Index      int
	Similarity float64
}

// TopK returns the indices of the k corpus vectors most similar to query,
// similarity-descending. Vectors with mismatched dimensions are skipped.
func TopK(query []float32, corpus [][]float32, k int) []Match {
	if k <= 0 {
		k = 10
	}
	matches := make([]Match, 0, len(corpus))
	for i, v := range corpus {
		sim, err := CosineSimilarity(query, v)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
