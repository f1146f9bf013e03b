// ABOUTME: Embedder abstraction for turning text into similarity vectors
// ABOUTME: Ships a deterministic local embedder for development and tests

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

// Embedder converts text into a fixed-size vector suitable for
// similarity search. Production deployments plug in a real model; the
// service only depends on this interface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Local is a deterministic bag-of-words embedder. Same text always
// produces the same vector, which is all the search paths need in
// development.
type Local struct {
	dim int
}

// NewLocal creates a local embedder producing vectors of the store's
// embedding dimensionality.
func NewLocal() *Local {
	return &Local{dim: store.EmbeddingDim}
}

// Embed hashes each whitespace-separated token into a dimension and
// L2-normalizes the result. Empty text yields the zero vector.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%l.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

var _ Embedder = (*Local)(nil)
