package database

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process DocumentStore.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[Collection][]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[Collection][]Document)}
}

// Insert appends documents to a collection, creating it if needed.
func (s *MemoryStore) Insert(c Collection, docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[c] = append(s.collections[c], docs...)
}

// Documents returns a copy of every document in a collection.
func (s *MemoryStore) Documents(c Collection) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Document(nil), s.collections[c]...)
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	for _, p := range q.Where {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.collections[q.Collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}

	var out []Document
	for _, d := range docs {
		if matchesAll(d, q.Where) {
			out = append(out, d)
		}
	}
	return out, nil
}

func matchesAll(d Document, where []Predicate) bool {
	for _, p := range where {
		if !p.Matches(d) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) CollectionExists(ctx context.Context, c Collection) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[c]) > 0, nil
}

func (s *MemoryStore) ListSeries(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for c, docs := range s.collections {
		if c.UserID == userID && len(docs) > 0 {
			keys = append(keys, c.Key())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ DocumentStore = (*MemoryStore)(nil)
