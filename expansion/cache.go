package expansion

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

const DefaultLRUSize = 1024

// LRUCache keeps recently used expansions in process in front of a slower
// store. Without a backing store it is a bounded in-memory cache.
type LRUCache struct {
	entries *expirable.LRU[string, *core.ExpansionEntry]
	next    storage.ExpansionCache
}

var _ storage.ExpansionCache = (*LRUCache)(nil)

// NewLRUCache creates a cache of at most size entries that expire after ttl.
// A ttl of zero keeps entries until they are evicted. next may be nil.
func NewLRUCache(size int, ttl time.Duration, next storage.ExpansionCache) (*LRUCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: LRU size must be greater than 0, got %d", core.ErrConfiguration, size)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: LRU ttl cannot be negative", core.ErrConfiguration)
	}
	return &LRUCache{
		entries: expirable.NewLRU[string, *core.ExpansionEntry](size, nil, ttl),
		next:    next,
	}, nil
}

// GetExpansion serves from memory and falls back to the durable store,
// remembering what it finds.
func (c *LRUCache) GetExpansion(ctx context.Context, hash string) (*core.ExpansionEntry, error) {
	if entry, ok := c.entries.Get(hash); ok {
		return entry, nil
	}
	if c.next == nil {
		return nil, storage.ErrNotFound
	}

	entry, err := c.next.GetExpansion(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.entries.Add(hash, entry)
	return entry, nil
}

// PutExpansion writes through to the durable store.
func (c *LRUCache) PutExpansion(ctx context.Context, entry *core.ExpansionEntry) error {
	if entry == nil || entry.Hash == "" {
		return fmt.Errorf("%w: expansion hash is required", storage.ErrInvalidQuery)
	}
	if c.next == nil {
		// First write wins, matching the durable stores
		if !c.entries.Contains(entry.Hash) {
			c.entries.Add(entry.Hash, entry)
		}
		return nil
	}

	if err := c.next.PutExpansion(ctx, entry); err != nil {
		return err
	}
	// The store may have kept an older entry; reload it on next read
	c.entries.Remove(entry.Hash)
	return nil
}

// Len reports how many entries are held in memory.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

// Purge drops every in-memory entry. The backing store is untouched.
func (c *LRUCache) Purge() {
	c.entries.Purge()
}
