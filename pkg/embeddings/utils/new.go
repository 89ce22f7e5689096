// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/loomcomputeco/loom/pkg/embeddings"
	"github.com/loomcomputeco/loom/pkg/embeddings/hashemb"
	"github.com/loomcomputeco/loom/pkg/embeddings/ollama"
)

// NewEmbedderOpts selects and configures an embedder provider.
type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Dimensions   int
}

// NewEmbedder constructs the embedder named by opts.ProviderType.
func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case "hash", "":
		return hashemb.New(o.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
