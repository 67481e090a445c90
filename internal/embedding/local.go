package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// localDims keeps the fallback vectors small; retrieval quality only needs
// token overlap to be reflected, not semantic nuance.
const localDims = 128

// LocalEngine is a deterministic, dependency-free embedding engine. It maps
// each token into a hashed bag-of-words vector, so texts sharing tokens get
// high cosine similarity. It backs tests and keyless deployments.
type LocalEngine struct{}

// NewLocalEngine creates the deterministic local engine.
func NewLocalEngine() *LocalEngine { return &LocalEngine{} }

// Embed hashes the lowercased whitespace tokens of text into a fixed-size
// vector and L2-normalizes it. Identical text always embeds identically.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// Sign bit from the hash keeps buckets from all pointing one way.
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[sum%localDims] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the fixed local dimensionality.
func (e *LocalEngine) Dimensions() int { return localDims }

// Name returns the engine name.
func (e *LocalEngine) Name() string { return "local" }
