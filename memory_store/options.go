package memorystore

import (
	"context"

	"github.com/maxfong/my-mem-mcp/memory_store/providers/embedder"
	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
)

type Option func(*Options)

type Options struct {
	Embedder    embedder.Embedder
	Persister   persister.Persister
	MinScore    float64
	SearchLimit int
	Context     context.Context
}

func WithEmbedder(embedder embedder.Embedder) Option {
	return func(o *Options) {
		o.Embedder = embedder
	}
}

func WithPersister(persister persister.Persister) Option {
	return func(o *Options) {
		o.Persister = persister
	}
}

func WithMinScore(minScore float64) Option {
	return func(o *Options) {
		o.MinScore = minScore
	}
}

func WithSearchLimit(limit int) Option {
	return func(o *Options) {
		o.SearchLimit = limit
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		MinScore:    0.5, // below this, results are presumed unrelated
		SearchLimit: 5,
		Context:     context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
