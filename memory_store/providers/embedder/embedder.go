package embedder

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates the embedding model server could not be
// reached or returned an error. The store never retries; callers decide.
var ErrProviderUnavailable = errors.New("embedder: provider unavailable")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Health(ctx context.Context) bool
}
