package storage

import (
	"context"
	"sync"

	"txscope/internal/model"
)

// MemoryStore keeps results in memory keyed by transaction hash. Used in
// tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*model.TransactionResult
	upserts int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*model.TransactionResult)}
}

func (s *MemoryStore) UpsertResult(_ context.Context, result *model.TransactionResult) error {
	if result == nil {
		return nil
	}
	s.mu.Lock()
	s.results[result.Hash] = result
	s.upserts++
	s.mu.Unlock()
	return nil
}

// Get returns the stored result for a hash.
func (s *MemoryStore) Get(hash string) (*model.TransactionResult, bool) {
	s.mu.RLock()
	result, ok := s.results[hash]
	s.mu.RUnlock()
	return result, ok
}

// Len returns the number of distinct stored transactions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Upserts returns the number of upsert calls, including overwrites.
func (s *MemoryStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}
