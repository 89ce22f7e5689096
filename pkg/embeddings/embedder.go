// Package embeddings provides the dense-embedding capability consumed by the
// memory subsystem.
//
// Implementations return L2-normalized float32 vectors of a fixed dimension
// advertised by Dim. Batch embedding never partially succeeds: on any failure
// the whole batch errors.
package embeddings

import (
	"context"
	"errors"
	"math"
)

// ErrEmbedding is the sentinel wrapped by all embedder failures.
var ErrEmbedding = errors.New("embedding failed")

// Embedder converts text into dense vectors.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in one call. The result has one
	// vector per input, in order. All-or-nothing: no partial results.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dim is the fixed dimension of every vector this embedder produces.
	Dim() int

	// Close releases any resources held by the embedder.
	Close() error
}

// Normalize scales v to unit L2 length in place and returns it.
// Zero vectors pass through untouched.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero
// or the dimensions disagree.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
