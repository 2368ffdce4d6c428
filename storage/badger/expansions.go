package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// ExpansionCache implements storage.ExpansionCache for BadgerDB.
type ExpansionCache struct {
	backend *Backend
	ttl     time.Duration
}

var _ storage.ExpansionCache = (*ExpansionCache)(nil)

// NewExpansionCache creates a new ExpansionCache.
// Entries expire after ttl; a ttl of zero keeps them forever.
func NewExpansionCache(backend *Backend, ttl time.Duration) *ExpansionCache {
	return &ExpansionCache{
		backend: backend,
		ttl:     ttl,
	}
}

// GetExpansion retrieves a cached expansion by normalized query hash.
func (c *ExpansionCache) GetExpansion(ctx context.Context, hash string) (*core.ExpansionEntry, error) {
	var entry *core.ExpansionEntry
	err := c.backend.View(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeExpansionKey(hash))
		if err != nil {
			return err
		}
		if val == nil {
			return storage.ErrNotFound
		}
		entry, err = storage.UnmarshalExpansion(val)
		return err
	})
	return entry, err
}

// PutExpansion stores an entry unless one already exists for the hash.
func (c *ExpansionCache) PutExpansion(ctx context.Context, entry *core.ExpansionEntry) error {
	if entry.Hash == "" {
		return fmt.Errorf("%w: expansion entry has no hash", storage.ErrInvalidQuery)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = storage.Timestamp(time.Now())
	}

	value, err := storage.MarshalExpansion(entry)
	if err != nil {
		return err
	}

	return c.backend.Update(func(tx *badger.Txn) error {
		key := makeExpansionKey(entry.Hash)
		existing, err := getValue(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		e := badger.NewEntry(key, value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return tx.SetEntry(e)
	})
}
