// Package vector stores and searches embedded text chunks per named
// collection. Two providers exist behind one interface: chromem (embedded,
// zero-config, optional file persistence) and qdrant (remote). Embedding is
// done by the caller; providers only ever see pre-computed vectors.
package vector

import (
	"context"
	"fmt"
)

// Result is one retrieved chunk.
type Result struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Provider is the per-collection vector index with its document sidecar.
// Querying a collection that was never ingested returns empty results, not an
// error.
type Provider interface {
	// Ingest stores chunks with their vectors under the collection.
	Ingest(ctx context.Context, collection string, chunks []string, vectors [][]float32) error

	// Query returns the topK most similar chunks.
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// DeleteCollection removes the collection and its documents.
	DeleteCollection(ctx context.Context, collection string) error

	Name() string
	Close() error
}

// ProviderType identifies a provider implementation.
type ProviderType string

const (
	ProviderChromem ProviderType = "chromem"
	ProviderQdrant  ProviderType = "qdrant"
)

// Config selects and configures a provider.
type Config struct {
	Type    ProviderType   `yaml:"type"`
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant  *QdrantConfig  `yaml:"qdrant,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = ProviderChromem
	}
	if c.Type == ProviderChromem && c.Chromem == nil {
		c.Chromem = &ChromemConfig{}
	}
	if c.Type == ProviderQdrant && c.Qdrant == nil {
		c.Qdrant = &QdrantConfig{}
	}
}

// NewProvider builds the configured provider.
func NewProvider(cfg Config) (Provider, error) {
	cfg.SetDefaults()
	switch cfg.Type {
	case ProviderChromem:
		return NewChromemProvider(*cfg.Chromem)
	case ProviderQdrant:
		return NewQdrantProvider(*cfg.Qdrant)
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s", cfg.Type)
	}
}
