// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lexis

import (
	"context"
	"errors"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/poiesic/lexis/ai"
	"github.com/poiesic/lexis/ai/openai"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/embedding"
	"github.com/poiesic/lexis/expansion"
	"github.com/poiesic/lexis/extract"
	"github.com/poiesic/lexis/ingestion"
	"github.com/poiesic/lexis/reembed"
	"github.com/poiesic/lexis/resolve"
	"github.com/poiesic/lexis/retrieval"
	"github.com/poiesic/lexis/schedule"
	"github.com/poiesic/lexis/storage"
	"github.com/poiesic/lexis/storage/badger"
	"github.com/poiesic/lexis/storage/redis"
)

// Database wires the document pipeline, query expansion, retrieval and
// entity resolution over one badger store.
type Database struct {
	config      *Config
	backend     *badger.Backend
	documents   *badger.DocumentRepository
	chunks      *badger.ChunkRepository
	entities    *badger.EntityRepository
	checkpoints *badger.CheckpointRepository
	expansions  storage.ExpansionCache
	redis       *redis.ExpansionCache
	provider    ai.AIProvider
	batcher     *embedding.Batcher
	pipeline    *ingestion.Pipeline
	expander    *expansion.Expander
	aggregator  *retrieval.Aggregator
	resolver    *resolve.Resolver
	logger      *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider    ai.AIProvider
	redisClient goredis.UniversalClient
	inMemory    bool
	logger      *slog.Logger
}

// WithProvider uses the given AI provider instead of connecting to the
// configured hosts. The Database closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithRedisClient caches expansions in redis through an existing client,
// overriding the configured address. The caller keeps ownership of the
// client; Close leaves it open.
func WithRedisClient(client goredis.UniversalClient) DatabaseOption {
	return func(o *databaseOptions) {
		o.redisClient = client
	}
}

// WithInMemory keeps all data in memory. Config.Path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open opens the database described by cfg. A nil cfg uses DefaultConfig.
func Open(cfg *Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	db := &Database{config: cfg, logger: options.logger}
	if err := db.open(options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) open(options *databaseOptions) error {
	cfg := db.config
	path := cfg.Path
	if options.inMemory {
		path = ""
	}

	var err error
	if db.backend, err = badger.OpenBackend(path, options.inMemory); err != nil {
		return err
	}
	if db.documents, err = badger.NewDocumentRepository(db.backend); err != nil {
		return err
	}
	if db.chunks, err = badger.NewChunkRepository(db.backend); err != nil {
		return err
	}
	if db.entities, err = badger.NewEntityRepository(db.backend, resolve.Merge); err != nil {
		return err
	}
	db.checkpoints = badger.NewCheckpointRepository(db.backend)

	if err = db.openExpansionCache(options.redisClient); err != nil {
		return err
	}

	db.provider = options.provider
	if db.provider == nil {
		if db.provider, err = openai.NewProvider(&cfg.AI); err != nil {
			return err
		}
	}

	batcherOpts := []embedding.Option{
		embedding.WithBatchSize(cfg.Ingestion.EmbeddingBatchSize),
		embedding.WithDimensions(cfg.AI.Dimensions),
		embedding.WithLogger(db.logger),
	}
	if db.batcher, err = embedding.NewBatcher(db.provider.Embedder(), batcherOpts...); err != nil {
		return err
	}

	htmlMode := extract.HTMLPlain
	if cfg.Ingestion.HTMLMarkdown {
		htmlMode = extract.HTMLMarkdown
	}
	extractor, err := extract.New(extract.WithHTMLMode(htmlMode), extract.WithLogger(db.logger))
	if err != nil {
		return err
	}

	db.pipeline, err = ingestion.NewPipeline(db.documents, db.chunks, extractor, db.batcher,
		ingestion.WithPoolSize(cfg.Ingestion.PoolSize),
		ingestion.WithChunking(cfg.ChunkingOptions()),
		ingestion.WithStaleAfter(cfg.Ingestion.StaleAfter.Duration),
		ingestion.WithSkipPermanent(cfg.Ingestion.SkipPermanent),
		ingestion.WithLogger(db.logger),
	)
	if err != nil {
		return err
	}

	db.expander, err = expansion.NewExpander(db.provider.Generator(), db.expansions,
		expansion.WithLogger(db.logger))
	if err != nil {
		return err
	}

	db.aggregator, err = retrieval.NewAggregator(db.chunks, db.batcher,
		retrieval.WithExpander(db.expander),
		retrieval.WithCandidates(cfg.Retrieval.Candidates),
		retrieval.WithPoolSize(cfg.Retrieval.PoolSize),
		retrieval.WithVariantTimeout(cfg.Retrieval.VariantTimeout.Duration),
		retrieval.WithLogger(db.logger),
	)
	if err != nil {
		return err
	}

	db.resolver, err = resolve.NewResolver(resolve.WithLogger(db.logger))
	return err
}

// openExpansionCache picks redis when a client or address is configured and
// the badger store otherwise, optionally fronted by an in-process LRU.
func (db *Database) openExpansionCache(client goredis.UniversalClient) error {
	cfg := db.config.Expansion
	owned := false
	if client == nil && cfg.Redis.Addr != "" {
		owned = true
		client = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store storage.ExpansionCache
	if client != nil {
		opts := []redis.Option{redis.WithTTL(cfg.CacheTTL.Duration), redis.WithLogger(db.logger)}
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redis.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		if owned {
			opts = append(opts, redis.WithOwnedClient())
		}
		cache, err := redis.NewExpansionCache(client, opts...)
		if err != nil {
			if owned {
				client.Close()
			}
			return err
		}
		db.redis = cache
		store = cache
	} else {
		store = badger.NewExpansionCache(db.backend, cfg.CacheTTL.Duration)
	}

	if cfg.LRUSize == 0 {
		db.expansions = store
		return nil
	}
	lru, err := expansion.NewLRUCache(cfg.LRUSize, cfg.CacheTTL.Duration, store)
	if err != nil {
		return err
	}
	db.expansions = lru
	return nil
}

// Close releases every component. It is safe to call on a partially opened
// Database.
func (db *Database) Close() error {
	if db.aggregator != nil {
		db.aggregator.Release()
	}
	if db.pipeline != nil {
		db.pipeline.Release()
	}

	var errs []error
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if db.redis != nil {
		if err := db.redis.Close(); err != nil {
			db.logger.Error("error closing redis expansion cache", "err", err)
			errs = append(errs, err)
		}
	}

	var repos []storage.Repository
	if db.entities != nil {
		repos = append(repos, db.entities)
	}
	if db.chunks != nil {
		repos = append(repos, db.chunks)
	}
	if db.documents != nil {
		repos = append(repos, db.documents)
	}
	for _, repo := range repos {
		if err := repo.Close(); err != nil {
			db.logger.Error("error closing repository", "err", err)
			errs = append(errs, err)
		}
	}

	// The backend is closed even when a repository failed to close.
	if db.backend != nil {
		if err := db.backend.Close(); err != nil {
			db.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (db *Database) Config() *Config {
	return db.config
}

func (db *Database) Pipeline() *ingestion.Pipeline {
	return db.pipeline
}

func (db *Database) Expander() *expansion.Expander {
	return db.expander
}

func (db *Database) Aggregator() *retrieval.Aggregator {
	return db.aggregator
}

func (db *Database) Resolver() *resolve.Resolver {
	return db.resolver
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.documents
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.chunks
}

func (db *Database) EntityRepository() storage.EntityRepository {
	return db.entities
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpoints
}

// Retrieve expands query and returns the configured number of top chunks.
func (db *Database) Retrieve(ctx context.Context, query string) (*retrieval.Result, error) {
	return db.aggregator.RetrieveQuery(ctx, query, db.config.Expansion.Count, db.config.Retrieval.TopK)
}

// ResolveEntities resolves raw extraction output and folds it into the
// stored entities.
func (db *Database) ResolveEntities(ctx context.Context, raw []core.ExtractedEntity) ([]*core.Entity, error) {
	resolved := db.resolver.Resolve(raw)
	if len(resolved) == 0 {
		return nil, nil
	}
	entities := make([]*core.Entity, len(resolved))
	for i := range resolved {
		entities[i] = &resolved[i]
	}
	return db.entities.SaveEntities(ctx, entities...)
}

// NewWorker creates a scheduled ingestion worker from the worker settings.
func (db *Database) NewWorker(name string, opts ...schedule.Option) (*schedule.Worker, error) {
	cfg := db.config.Worker
	defaults := []schedule.Option{
		schedule.WithSchedule(cfg.Schedule),
		schedule.WithBatchSize(cfg.BatchSize),
		schedule.WithRetryFailed(cfg.RetryFailed),
		schedule.WithLogger(db.logger),
	}
	return schedule.NewWorker(name, db.pipeline, db.checkpoints, append(defaults, opts...)...)
}

// Reembed regenerates the vectors of every indexed chunk with the configured
// embedding model. Progress lines go to progress when it is not nil.
func (db *Database) Reembed(ctx context.Context, config *reembed.Config, progress io.Writer) (*reembed.Report, error) {
	r, err := reembed.NewReembedder(db.documents, db.chunks, db.batcher, config, progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
