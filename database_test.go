package lexis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lexis/ai"
	"github.com/poiesic/lexis/ai/mock"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/expansion"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "lexis.db")
	cfg.AI.Dimensions = mock.DefaultDimensions
	cfg.Chunking = ChunkingConfig{Size: 100, Overlap: 10}
	return cfg
}

func openTestDatabase(t *testing.T, cfg *Config, opts ...DatabaseOption) (*Database, *mock.MockGenerator) {
	t.Helper()
	generator := mock.NewMockGenerator(`{"expansions": ["grain exports", "wheat shipments"]}`)
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), generator)
	db, err := Open(cfg, append([]DatabaseOption{WithProvider(provider)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, generator
}

func TestOpen(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		db, _ := openTestDatabase(t, testConfig(t))

		assert.NotNil(t, db.Pipeline())
		assert.NotNil(t, db.Expander())
		assert.NotNil(t, db.Aggregator())
		assert.NotNil(t, db.Resolver())
		assert.NotNil(t, db.DocumentRepository())
		assert.NotNil(t, db.ChunkRepository())
		assert.NotNil(t, db.EntityRepository())
		assert.NotNil(t, db.CheckpointRepository())
		assert.IsType(t, &expansion.LRUCache{}, db.expansions)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Path = filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(cfg.Path, []byte("test"), 0644))

		db, err := Open(cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Chunking.Overlap = cfg.Chunking.Size

		_, err := Open(cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

type failingCloseProvider struct {
	ai.AIProvider
}

func (p failingCloseProvider) Close() error {
	return errors.New("provider stuck")
}

func TestDatabase_Close(t *testing.T) {
	db, err := Open(testConfig(t), WithProvider(mock.NewMockProvider()), WithInMemory())
	require.NoError(t, err)
	assert.NoError(t, db.Close())
	assert.True(t, db.backend.IsClosed())

	t.Run("backend closes after an earlier failure", func(t *testing.T) {
		db, err := Open(testConfig(t), WithProvider(failingCloseProvider{mock.NewMockProvider()}), WithInMemory())
		require.NoError(t, err)

		err = db.Close()
		assert.ErrorContains(t, err, "provider stuck")
		assert.True(t, db.backend.IsClosed())
	})
}

func TestDatabase_IngestAndRetrieve(t *testing.T) {
	db, generator := openTestDatabase(t, testConfig(t), WithInMemory())
	ctx := context.Background()

	texts := []string{
		"grain exports fell sharply after the drought",
		"wheat shipments were rerouted through new ports",
		"chip export controls tightened again",
	}
	for _, text := range texts {
		_, err := db.Pipeline().Enqueue(ctx, []byte(text), "text/plain", "", core.SourcePaste)
		require.NoError(t, err)
	}

	report, err := db.Pipeline().ProcessBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Successful)

	stats, err := db.Pipeline().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents.Indexed)
	assert.Equal(t, 3, stats.Chunks.Indexed)

	result, err := db.Retrieve(ctx, "grain exports fell sharply after the drought")
	require.NoError(t, err)
	assert.Equal(t, []string{"grain exports fell sharply after the drought", "grain exports", "wheat shipments"}, result.Variants)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, texts[0], result.Chunks[0].Chunk.Content)
	assert.InDelta(t, 0, result.Chunks[0].BestDistance, 1e-4)

	// The second retrieval is served from the expansion cache
	_, err = db.Retrieve(ctx, "Grain exports fell sharply after the drought")
	require.NoError(t, err)
	assert.Equal(t, 1, generator.CallCount())
}

func TestDatabase_ResolveEntities(t *testing.T) {
	db, _ := openTestDatabase(t, testConfig(t), WithInMemory())
	ctx := context.Background()

	first, err := db.ResolveEntities(ctx, []core.ExtractedEntity{
		{Type: core.EntityActor, Label: "US", Confidence: 60,
			Provenance: []core.ProvenanceRef{{ChunkId: 1, Quote: "the US said"}}},
		{Type: core.EntityActor, Label: "United States", Confidence: 70,
			Provenance: []core.ProvenanceRef{{ChunkId: 2, Quote: "United States officials"}}},
	})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 78, first[0].Confidence)

	// A later pass folds into the stored entity
	second, err := db.ResolveEntities(ctx, []core.ExtractedEntity{
		{Type: core.EntityActor, Label: "USA", Confidence: 65,
			Provenance: []core.ProvenanceRef{{ChunkId: 3, Quote: "USA"}}},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 3, second[0].Members)
	assert.Equal(t, 85, second[0].Confidence)
	assert.Len(t, second[0].Provenance, 3)

	stored, err := db.EntityRepository().FindEntity(ctx, core.EntityActor, "united states")
	require.NoError(t, err)
	assert.Equal(t, "United States", stored.Label)

	none, err := db.ResolveEntities(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDatabase_RedisExpansionCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})

	cfg := testConfig(t)
	cfg.Expansion.LRUSize = 0
	db, generator := openTestDatabase(t, cfg, WithInMemory(), WithRedisClient(client))
	ctx := context.Background()

	result, err := db.Expander().Expand(ctx, "grain", 5)
	require.NoError(t, err)
	assert.False(t, result.Cached)

	assert.True(t, server.Exists("lexis:expansion:"+expansion.Hash("grain")))

	result, err = db.Expander().Expand(ctx, "GRAIN", 5)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, 1, generator.CallCount())

	// The injected client belongs to the caller
	require.NoError(t, db.redis.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestDatabase_NewWorker(t *testing.T) {
	db, _ := openTestDatabase(t, testConfig(t), WithInMemory())
	ctx := context.Background()

	_, err := db.Pipeline().Enqueue(ctx, []byte("a short note"), "", "note", core.SourceUpload)
	require.NoError(t, err)

	worker, err := db.NewWorker("ingest")
	require.NoError(t, err)
	report, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)

	cp, err := worker.Checkpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, report.RunId, cp.RunId)
}

func TestDatabase_Reembed(t *testing.T) {
	db, _ := openTestDatabase(t, testConfig(t), WithInMemory())
	ctx := context.Background()

	for _, text := range []string{"grain exports fell", "fuel prices rose"} {
		_, err := db.Pipeline().Enqueue(ctx, []byte(text), "text/plain", "", core.SourcePaste)
		require.NoError(t, err)
	}
	_, err := db.Pipeline().ProcessBatch(ctx, 10)
	require.NoError(t, err)

	var progress strings.Builder
	report, err := db.Reembed(ctx, nil, &progress)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Chunks)
	assert.Empty(t, report.Failed)
	assert.Contains(t, progress.String(), "2/2 chunks")

	// Same model, same vectors: retrieval is unchanged
	result, err := db.Retrieve(ctx, "grain exports fell")
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "grain exports fell", result.Chunks[0].Chunk.Content)
}
