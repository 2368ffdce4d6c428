package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces expansion entries in a shared redis.
const DefaultKeyPrefix = "lexis:expansion:"

// ExpansionCache implements storage.ExpansionCache on redis.
// It lets several pipeline processes share one expansion cache.
type ExpansionCache struct {
	client    goredis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	owned     bool
	logger    *slog.Logger
}

var _ storage.ExpansionCache = (*ExpansionCache)(nil)

// Option configures an ExpansionCache.
type Option func(*ExpansionCache) error

// WithTTL expires entries after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *ExpansionCache) error {
		if ttl < 0 {
			return fmt.Errorf("%w: ttl must not be negative", core.ErrConfiguration)
		}
		c.ttl = ttl
		return nil
	}
}

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(c *ExpansionCache) error {
		c.keyPrefix = prefix
		return nil
	}
}

// WithOwnedClient makes Close also close the client. Use it when the
// cache is the client's only user.
func WithOwnedClient() Option {
	return func(c *ExpansionCache) error {
		c.owned = true
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ExpansionCache) error {
		c.logger = logger
		return nil
	}
}

// NewExpansionCache creates a cache over an existing client.
func NewExpansionCache(client goredis.UniversalClient, opts ...Option) (*ExpansionCache, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", core.ErrConfiguration)
	}
	c := &ExpansionCache{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "redis-expansion-cache")
	return c, nil
}

// GetExpansion returns storage.ErrNotFound on a miss.
func (c *ExpansionCache) GetExpansion(ctx context.Context, hash string) (*core.ExpansionEntry, error) {
	data, err := c.client.Get(ctx, c.keyPrefix+hash).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	entry, err := storage.UnmarshalExpansion(data)
	if err != nil {
		c.logger.Warn("dropping corrupt cache entry", "hash", hash, "err", err)
		if delErr := c.client.Del(ctx, c.keyPrefix+hash).Err(); delErr != nil {
			c.logger.Error("failed to delete corrupt cache entry", "hash", hash, "err", delErr)
		}
		return nil, storage.ErrNotFound
	}
	return entry, nil
}

// PutExpansion stores an entry only if the hash is not cached yet.
func (c *ExpansionCache) PutExpansion(ctx context.Context, entry *core.ExpansionEntry) error {
	if entry.Hash == "" {
		return fmt.Errorf("%w: expansion entry has no hash", storage.ErrInvalidQuery)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = storage.Timestamp(time.Now())
	}

	data, err := storage.MarshalExpansion(entry)
	if err != nil {
		return err
	}

	stored, err := c.client.SetNX(ctx, c.keyPrefix+entry.Hash, data, c.ttl).Result()
	if err != nil {
		return err
	}
	if !stored {
		c.logger.Debug("expansion already cached", "hash", entry.Hash)
	}
	return nil
}

// Close closes the underlying client if the cache owns it.
func (c *ExpansionCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
