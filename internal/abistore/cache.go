package abistore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Cache is the keyed entry cache injected into the Store. Entries are
// idempotent for a given chain+address, so a racing double-insert is harmless.
type Cache interface {
	Get(key string) (*Entry, bool)
	Put(key string, entry *Entry)
}

// MemoryCache caches entries in memory by key.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]*Entry)}
}

func (c *MemoryCache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	return entry, ok
}

func (c *MemoryCache) Put(key string, entry *Entry) {
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
}

// CacheKey builds the cache key for a chain+address pair. The key carries no
// block height: the last observed implementation wins on proxy upgrades.
func CacheKey(chainID uint64, address common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(address.Hex()))
}
