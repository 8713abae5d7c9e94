package memorystore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
	"github.com/maxfong/my-mem-mcp/similarity"
)

var (
	// ErrEmbeddingUnavailable means the embedding provider failed and the
	// operation was aborted before any record was created.
	ErrEmbeddingUnavailable = errors.New("memorystore: embedding unavailable")

	// ErrPersistence means the write-through to storage failed. The
	// in-memory mutation is rolled back so cache and disk stay aligned.
	ErrPersistence = errors.New("memorystore: persistence failed")
)

// ScoredRecord pairs a record with its similarity score for a query.
type ScoredRecord struct {
	Record persister.Record
	Score  float64
}

// Store is the sole reader and mutator of record collections. The cache is
// the source of truth for the process lifetime; the persister is a
// write-through mirror. Writes for one user never interleave; reads observe
// the latest committed cache state and are never blocked by writers waiting
// on I/O.
type Store struct {
	options Options
	cache   map[string][]persister.Record
	locks   *keyedMutex
	mtx     sync.RWMutex
}

// New builds a store and loads every previously persisted user collection
// into the cache.
func New(opts ...Option) (*Store, error) {
	options := NewOptions(opts...)

	if options.Embedder == nil {
		return nil, errors.New("memorystore: embedder is required")
	}
	if options.Persister == nil {
		return nil, errors.New("memorystore: persister is required")
	}

	s := &Store{
		options: options,
		cache:   map[string][]persister.Record{},
		locks:   newKeyedMutex(),
	}

	users, err := options.Persister.Users(options.Context)
	if err != nil {
		return nil, fmt.Errorf("discover users: %w", err)
	}

	total := 0
	for _, user := range users {
		collection, err := options.Persister.Load(options.Context, user)
		if err != nil {
			return nil, fmt.Errorf("load collection: %w", err)
		}
		if collection == nil {
			continue
		}

		// Storage unit names are sanitized; the records themselves carry
		// the authoritative user id.
		key := user
		if len(collection.Memories) > 0 && len(collection.Memories[0].UserId) > 0 {
			key = collection.Memories[0].UserId
		}

		s.cache[key] = collection.Memories
		total += len(collection.Memories)
	}

	log.Printf("memory store loaded %d records across %d users", total, len(s.cache))

	return s, nil
}

// Add embeds the question/answer pair and appends a new record to the user's
// collection. The embedding call happens before the per-user write lock is
// taken so a slow model server never stalls other writers queueing up.
func (s *Store) Add(ctx context.Context, userId string, question string, answer string) (persister.Record, error) {
	payload := fmt.Sprintf("question: %s\nanswer: %s", question, answer)

	vector, err := s.options.Embedder.Embed(ctx, payload)
	if err != nil {
		return persister.Record{}, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	unlock := s.locks.Lock(userId)
	defer unlock()

	s.mtx.RLock()
	existing := s.cache[userId]
	if len(existing) > 0 && len(existing[0].Embedding) != len(vector) {
		s.mtx.RUnlock()
		return persister.Record{}, fmt.Errorf("%w: provider returned %d dimensions, collection has %d",
			similarity.ErrDimensionMismatch, len(vector), len(existing[0].Embedding))
	}
	s.mtx.RUnlock()

	now := time.Now().UTC()

	rec := persister.Record{
		Id:        uuid.New().String(),
		UserId:    userId,
		Question:  question,
		Answer:    answer,
		Embedding: vector,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mtx.Lock()
	s.cache[userId] = append(s.cache[userId], rec)
	snapshot := slices.Clone(s.cache[userId])
	s.mtx.Unlock()

	if err := s.options.Persister.Save(ctx, userId, snapshot); err != nil {
		s.evict(userId, rec.Id)
		return persister.Record{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return rec, nil
}

// Search embeds the query and returns the user's closest records, best
// first, filtered by the minimum score. A user with no records returns empty
// without contacting the embedding provider.
func (s *Store) Search(ctx context.Context, userId string, query string, limit int) ([]ScoredRecord, error) {
	if limit < 1 {
		limit = s.options.SearchLimit
	}

	s.mtx.RLock()
	records := slices.Clone(s.cache[userId])
	s.mtx.RUnlock()

	if len(records) == 0 {
		return nil, nil
	}

	vector, err := s.options.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	candidates := make([][]float32, len(records))
	for i, rec := range records {
		candidates[i] = rec.Embedding
	}

	// Over-fetch so threshold filtering still leaves enough results.
	matches, err := similarity.Rank(vector, candidates, 2*limit)
	if err != nil {
		return nil, err
	}

	matches = similarity.Threshold(matches, s.options.MinScore)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]ScoredRecord, 0, len(matches))
	for _, match := range matches {
		results = append(results, ScoredRecord{
			Record: records[match.Index],
			Score:  match.Score,
		})
	}

	return results, nil
}

// Delete removes the record with the given id from the user's collection.
// It reports false when the record is already gone; that is a normal
// outcome, not an error. The lookup never scans other users' collections.
func (s *Store) Delete(ctx context.Context, userId string, id string) (bool, error) {
	unlock := s.locks.Lock(userId)
	defer unlock()

	s.mtx.Lock()
	records := s.cache[userId]

	idx := -1
	for i, rec := range records {
		if rec.Id == id {
			idx = i
			break
		}
	}

	if idx == -1 {
		s.mtx.Unlock()
		return false, nil
	}

	removed := records[idx]
	updated := append(slices.Clone(records[:idx]), records[idx+1:]...)
	s.cache[userId] = updated
	s.mtx.Unlock()

	if err := s.options.Persister.Save(ctx, userId, updated); err != nil {
		s.reinsert(userId, idx, removed)
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return true, nil
}

// List returns the user's records in insertion order, without embeddings.
func (s *Store) List(userId string) []persister.View {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	views := make([]persister.View, 0, len(s.cache[userId]))
	for _, rec := range s.cache[userId] {
		views = append(views, persister.ViewOf(rec))
	}

	return views
}

// Get looks up a single record within one user's collection.
func (s *Store) Get(userId string, id string) (persister.Record, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, rec := range s.cache[userId] {
		if rec.Id == id {
			return rec, true
		}
	}

	return persister.Record{}, false
}

// Count returns the number of records for one user.
func (s *Store) Count(userId string) int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.cache[userId])
}

// Total returns the number of records across all users.
func (s *Store) Total() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	total := 0
	for _, records := range s.cache {
		total += len(records)
	}

	return total
}

// Users returns the user ids currently known to the cache, sorted.
func (s *Store) Users() []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	users := make([]string, 0, len(s.cache))
	for user := range s.cache {
		users = append(users, user)
	}
	sort.Strings(users)

	return users
}

// MinScore exposes the configured similarity floor.
func (s *Store) MinScore() float64 {
	return s.options.MinScore
}

// Healthy probes the embedding provider. Used for status reporting, never on
// the add/search path.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.options.Embedder.Health(ctx)
}

func (s *Store) evict(userId string, id string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	records := s.cache[userId]
	for i, rec := range records {
		if rec.Id == id {
			s.cache[userId] = append(slices.Clone(records[:i]), records[i+1:]...)
			return
		}
	}
}

func (s *Store) reinsert(userId string, idx int, rec persister.Record) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	records := s.cache[userId]
	if idx > len(records) {
		idx = len(records)
	}

	updated := make([]persister.Record, 0, len(records)+1)
	updated = append(updated, records[:idx]...)
	updated = append(updated, rec)
	updated = append(updated, records[idx:]...)
	s.cache[userId] = updated
}
