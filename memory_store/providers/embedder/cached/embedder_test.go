package cached

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/maxfong/my-mem-mcp/memory_store/providers/embedder"
)

type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("connection refused")
	}
	return []float32{1, 2, 3}, nil
}

func (e *countingEmbedder) Health(ctx context.Context) bool {
	return !e.fail
}

func TestEmbedCachesRepeatedText(t *testing.T) {
	ctx := context.Background()

	inner := &countingEmbedder{}
	e, err := NewEmbedder(inner, embedder.WithModel("test-model"))
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	cached := e.(*cachedEmbedder)

	first, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()

	second, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}

	if !slices.Equal(first, second) {
		t.Error("cached vector differs from the original")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 provider call, got %d", got)
	}
}

func TestEmbedDistinctTextsMiss(t *testing.T) {
	ctx := context.Background()

	inner := &countingEmbedder{}
	e, err := NewEmbedder(inner)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	cached := e.(*cachedEmbedder)

	if _, err := e.Embed(ctx, "one"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	cached.Wait()

	if _, err := e.Embed(ctx, "two"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected 2 provider calls, got %d", got)
	}
}

func TestEmbedNeverCachesFailures(t *testing.T) {
	ctx := context.Background()

	inner := &countingEmbedder{fail: true}
	e, err := NewEmbedder(inner)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	cached := e.(*cachedEmbedder)

	if _, err := e.Embed(ctx, "hello"); err == nil {
		t.Fatal("expected an error from the failing provider")
	}
	cached.Wait()

	// The provider recovers; the failure must not have been cached.
	inner.fail = false

	vector, err := e.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed failed after recovery: %v", err)
	}
	if len(vector) == 0 {
		t.Error("expected a vector after recovery")
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected 2 provider calls, got %d", got)
	}
}

func TestHealthDelegates(t *testing.T) {
	ctx := context.Background()

	inner := &countingEmbedder{}
	e, err := NewEmbedder(inner)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if !e.Health(ctx) {
		t.Error("expected healthy")
	}

	inner.fail = true
	if e.Health(ctx) {
		t.Error("expected unhealthy")
	}
}
