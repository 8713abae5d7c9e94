package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/maxfong/my-mem-mcp/memory_store/providers/embedder"
)

type cachedEmbedder struct {
	options embedder.Options
	inner   embedder.Embedder
	cache   *ristretto.Cache
}

// Embed returns a cached vector when the same text was embedded before and
// falls through to the inner provider otherwise. Provider failures are never
// cached.
func (e *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.options.Model + "\x00" + text

	if v, ok := e.cache.Get(key); ok {
		if vector, ok := v.([]float32); ok {
			return vector, nil
		}
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, vector, int64(len(vector)*4))

	return vector, nil
}

func (e *cachedEmbedder) Health(ctx context.Context) bool {
	return e.inner.Health(ctx)
}

// Wait blocks until pending cache writes are applied. Test hook.
func (e *cachedEmbedder) Wait() {
	e.cache.Wait()
}

// NewEmbedder wraps inner with a read-through embedding cache. Embedding the
// same text twice (repeated queries, re-added pairs) skips the model server.
func NewEmbedder(inner embedder.Embedder, opts ...embedder.Option) (embedder.Embedder, error) {
	options := embedder.NewOptions(opts...)

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	e := &cachedEmbedder{
		options: options,
		inner:   inner,
		cache:   cache,
	}

	return e, nil
}
