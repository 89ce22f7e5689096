// Package hashemb implements a deterministic feature-hashing embedder.
//
// Tokens are lowercased, hashed with FNV-1a, and accumulated into a
// fixed-size vector with a sign bit taken from the hash. The result is
// L2-normalized. No model, no network: similar texts land on overlapping
// buckets, which is enough for offline operation and for exercising the
// retrieval path in tests with real (non-stub) vectors.
package hashemb

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/loomcomputeco/loom/pkg/embeddings"
)

// DefaultDimensions is the default vector size.
const DefaultDimensions = 256

// Embedder hashes token features into a fixed-size vector.
type Embedder struct {
	dim int
}

// New creates a hashing embedder. Non-positive dim falls back to
// DefaultDimensions.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Embedder{dim: dim}
}

// Embed converts text into a normalized feature-hash vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dim))
		if sum&(1<<63) != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}
	return embeddings.Normalize(vec), nil
}

// EmbedBatch embeds each text independently. Hashing cannot fail, so the
// all-or-nothing batch contract is trivially met.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dim returns the vector size.
func (e *Embedder) Dim() int { return e.dim }

// Close is a no-op.
func (e *Embedder) Close() error { return nil }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ embeddings.Embedder = (*Embedder)(nil)
