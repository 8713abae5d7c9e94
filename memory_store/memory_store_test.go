package memorystore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	memorystore "github.com/maxfong/my-mem-mcp/memory_store"
	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
	"github.com/maxfong/my-mem-mcp/similarity"
)

// mockEmbedder returns canned vectors per text and counts calls. Unknown
// texts get a deterministic fallback so adds never fail unexpectedly.
type mockEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	calls    atomic.Int64
	fail     bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		vectors:  map[string][]float32{},
		fallback: []float32{0, 0, 0, 1},
	}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.fail {
		return nil, errors.New("connection refused")
	}
	if vector, ok := m.vectors[text]; ok {
		return vector, nil
	}
	return m.fallback, nil
}

func (m *mockEmbedder) Health(ctx context.Context) bool {
	return !m.fail
}

// mockPersister keeps collections in memory and can fail on demand.
type mockPersister struct {
	mtx         sync.Mutex
	collections map[string][]persister.Record
	failSaves   bool
}

func newMockPersister() *mockPersister {
	return &mockPersister{
		collections: map[string][]persister.Record{},
	}
}

func (m *mockPersister) Load(ctx context.Context, userId string) (*persister.Collection, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	records, ok := m.collections[userId]
	if !ok {
		return nil, nil
	}

	return &persister.Collection{
		Version:  persister.SchemaVersion,
		Memories: slices.Clone(records),
	}, nil
}

func (m *mockPersister) Save(ctx context.Context, userId string, records []persister.Record) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.failSaves {
		return errors.New("disk full")
	}

	m.collections[userId] = slices.Clone(records)
	return nil
}

func (m *mockPersister) Users(ctx context.Context) ([]string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	users := make([]string, 0, len(m.collections))
	for user := range m.collections {
		users = append(users, user)
	}
	return users, nil
}

func newTestStore(t *testing.T, embedder *mockEmbedder, p *mockPersister) *memorystore.Store {
	t.Helper()

	store, err := memorystore.New(
		memorystore.WithEmbedder(embedder),
		memorystore.WithPersister(p),
	)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return store
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a complete record", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		rec, err := store.Add(ctx, "bob", "What is 2+2?", "4")
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		if len(rec.Id) == 0 {
			t.Error("expected a non-empty id")
		}
		if rec.UserId != "bob" {
			t.Errorf("expected user bob, got %q", rec.UserId)
		}
		if rec.Question != "What is 2+2?" || rec.Answer != "4" {
			t.Errorf("question/answer mismatch: %+v", rec)
		}
		if rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.UpdatedAt) {
			t.Errorf("expected equal creation timestamps, got %v / %v", rec.CreatedAt, rec.UpdatedAt)
		}

		if got := len(p.collections["bob"]); got != 1 {
			t.Errorf("expected 1 persisted record, got %d", got)
		}
	})

	t.Run("get returns the identical record", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		rec, err := store.Add(ctx, "bob", "q", "a")
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		got, ok := store.Get("bob", rec.Id)
		if !ok {
			t.Fatal("Get did not find the record")
		}
		if got.Question != rec.Question || got.Answer != rec.Answer {
			t.Errorf("round trip mismatch: %+v vs %+v", got, rec)
		}
		if !slices.Equal(got.Embedding, rec.Embedding) {
			t.Error("embedding changed in round trip")
		}
	})

	t.Run("embedder failure creates nothing", func(t *testing.T) {
		embedder := newMockEmbedder()
		embedder.fail = true
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		_, err := store.Add(ctx, "bob", "q", "a")
		if !errors.Is(err, memorystore.ErrEmbeddingUnavailable) {
			t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
		}

		if store.Count("bob") != 0 {
			t.Error("record exists after failed embedding")
		}
		if len(p.collections) != 0 {
			t.Error("something was persisted after failed embedding")
		}
	})

	t.Run("persist failure rolls the cache back", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		p.failSaves = true

		_, err := store.Add(ctx, "bob", "q", "a")
		if !errors.Is(err, memorystore.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}

		if store.Count("bob") != 0 {
			t.Error("cache kept a record that was never persisted")
		}
	})

	t.Run("rejects a changed embedding dimension", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		if _, err := store.Add(ctx, "bob", "q1", "a1"); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		embedder.fallback = []float32{1, 2}

		_, err := store.Add(ctx, "bob", "q2", "a2")
		if !errors.Is(err, similarity.ErrDimensionMismatch) {
			t.Fatalf("expected ErrDimensionMismatch, got %v", err)
		}
		if store.Count("bob") != 1 {
			t.Errorf("expected 1 record, got %d", store.Count("bob"))
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("empty user skips the embedding provider", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		results, err := store.Search(ctx, "alice", "foo", 5)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		if len(results) != 0 {
			t.Errorf("expected no results, got %d", len(results))
		}
		if embedder.calls.Load() != 0 {
			t.Errorf("embedder was called %d times for an empty user", embedder.calls.Load())
		}
	})

	t.Run("filters below the minimum score and orders descending", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		// Exact cosine scores against the query [1,0,0,0]:
		// close    -> 1.0, borderline -> 0.5, far -> 0.0
		embedder.vectors["question: close\nanswer: a"] = []float32{1, 0, 0, 0}
		embedder.vectors["question: borderline\nanswer: a"] = []float32{1, 1, 1, 1}
		embedder.vectors["question: far\nanswer: a"] = []float32{0, 1, 0, 0}
		embedder.vectors["the query"] = []float32{1, 0, 0, 0}

		for _, q := range []string{"far", "borderline", "close"} {
			if _, err := store.Add(ctx, "bob", q, "a"); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}

		results, err := store.Search(ctx, "bob", "the query", 5)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
		}
		if results[0].Record.Question != "close" || results[0].Score != 1 {
			t.Errorf("unexpected top result: %+v", results[0])
		}
		if results[1].Record.Question != "borderline" || results[1].Score != 0.5 {
			t.Errorf("expected the 0.5 score included, got %+v", results[1])
		}
	})

	t.Run("truncates to limit after filtering", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		embedder.fallback = []float32{1, 0, 0, 0}
		embedder.vectors["q"] = []float32{1, 0, 0, 0}

		for i := 0; i < 6; i++ {
			if _, err := store.Add(ctx, "bob", fmt.Sprintf("q%d", i), "a"); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}

		results, err := store.Search(ctx, "bob", "q", 3)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		if len(results) != 3 {
			t.Errorf("expected 3 results, got %d", len(results))
		}
	})

	t.Run("default limit is 5", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		embedder.fallback = []float32{1, 0, 0, 0}
		embedder.vectors["q"] = []float32{1, 0, 0, 0}

		for i := 0; i < 8; i++ {
			if _, err := store.Add(ctx, "bob", fmt.Sprintf("q%d", i), "a"); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}

		results, err := store.Search(ctx, "bob", "q", 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		if len(results) != 5 {
			t.Errorf("expected 5 results, got %d", len(results))
		}
	})

	t.Run("never returns another user's records", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		embedder.fallback = []float32{1, 0, 0, 0}
		embedder.vectors["anything"] = []float32{1, 0, 0, 0}

		if _, err := store.Add(ctx, "alice", "alice secret", "s"); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if _, err := store.Add(ctx, "bob", "bob fact", "f"); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		results, err := store.Search(ctx, "bob", "anything", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}

		for _, hit := range results {
			if hit.Record.UserId != "bob" {
				t.Errorf("search leaked a record owned by %q", hit.Record.UserId)
			}
			if strings.Contains(hit.Record.Question, "alice") {
				t.Errorf("search leaked alice's content: %+v", hit.Record)
			}
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		rec, err := store.Add(ctx, "bob", "q", "a")
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		deleted, err := store.Delete(ctx, "bob", rec.Id)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if !deleted {
			t.Error("first delete reported false")
		}

		if _, ok := store.Get("bob", rec.Id); ok {
			t.Error("record still present after delete")
		}

		deleted, err = store.Delete(ctx, "bob", rec.Id)
		if err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
		if deleted {
			t.Error("second delete reported true")
		}
	})

	t.Run("cannot delete across users", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		rec, err := store.Add(ctx, "alice", "q", "a")
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		deleted, err := store.Delete(ctx, "bob", rec.Id)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if deleted {
			t.Error("bob deleted alice's record")
		}
		if store.Count("alice") != 1 {
			t.Error("alice's record vanished")
		}
	})

	t.Run("persist failure restores the record", func(t *testing.T) {
		embedder := newMockEmbedder()
		p := newMockPersister()
		store := newTestStore(t, embedder, p)

		rec, err := store.Add(ctx, "bob", "q", "a")
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		p.failSaves = true

		_, err = store.Delete(ctx, "bob", rec.Id)
		if !errors.Is(err, memorystore.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}

		if _, ok := store.Get("bob", rec.Id); !ok {
			t.Error("record missing from cache after failed persist")
		}
	})
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()

	embedder := newMockEmbedder()
	p := newMockPersister()
	store := newTestStore(t, embedder, p)

	const writers = 10

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Add(ctx, "bob", fmt.Sprintf("q%d", i), "a"); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if store.Count("bob") != writers {
		t.Errorf("expected %d cached records, got %d", writers, store.Count("bob"))
	}

	// Neither write may have overwritten the other: the persisted
	// collection must contain every record.
	if got := len(p.collections["bob"]); got != writers {
		t.Errorf("expected %d persisted records, got %d", writers, got)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()

	embedder := newMockEmbedder()
	p := newMockPersister()
	store := newTestStore(t, embedder, p)

	if _, err := store.Add(ctx, "bob", "q1", "a1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "bob", "q2", "a2"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	views := store.List("bob")
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}

	// Insertion order, and no embedding on the wire.
	if views[0].Question != "q1" || views[1].Question != "q2" {
		t.Errorf("list order wrong: %+v", views)
	}

	data, err := json.Marshal(views)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "embedding") {
		t.Errorf("list projection leaked embeddings: %s", data)
	}
}

func TestLoadOnConstruction(t *testing.T) {
	ctx := context.Background()

	embedder := newMockEmbedder()
	p := newMockPersister()
	store := newTestStore(t, embedder, p)

	if _, err := store.Add(ctx, "alice", "q1", "a1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, "bob", "q2", "a2"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	reloaded := newTestStore(t, embedder, p)

	if reloaded.Total() != 2 {
		t.Errorf("expected 2 records after reload, got %d", reloaded.Total())
	}
	if reloaded.Count("alice") != 1 || reloaded.Count("bob") != 1 {
		t.Error("per-user counts wrong after reload")
	}
	if users := reloaded.Users(); len(users) != 2 {
		t.Errorf("expected 2 users after reload, got %v", users)
	}
}
