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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/lexis/ai"
	"github.com/poiesic/lexis/chunking"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/expansion"
	"github.com/poiesic/lexis/ingestion"
	"github.com/poiesic/lexis/retrieval"
	"github.com/poiesic/lexis/schedule"
)

// Duration is a time.Duration written as a string such as "90s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the file-level configuration of a Lexis database.
type Config struct {
	// Path is the badger data directory.
	Path string `toml:"path"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`

	AI        ai.Config       `toml:"ai"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Expansion ExpansionConfig `toml:"expansion"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Worker    WorkerConfig    `toml:"worker"`
}

type ChunkingConfig struct {
	Size    int `toml:"size"`
	Overlap int `toml:"overlap"`
}

type IngestionConfig struct {
	// PoolSize is the number of embedding batches run at once.
	PoolSize int `toml:"pool_size"`

	// EmbeddingBatchSize is the number of chunks per provider call.
	EmbeddingBatchSize int `toml:"embedding_batch_size"`

	// StaleAfter is how long an unfinished document waits before another
	// worker may resume it.
	StaleAfter Duration `toml:"stale_after"`

	// SkipPermanent makes retries leave documents that failed because of
	// their content.
	SkipPermanent bool `toml:"skip_permanent"`

	// HTMLMarkdown renders HTML as Markdown instead of plain text.
	HTMLMarkdown bool `toml:"html_markdown"`
}

type ExpansionConfig struct {
	// Count is the number of variants requested per query.
	Count int `toml:"count"`

	// CacheTTL expires stored expansions. Zero keeps them forever.
	CacheTTL Duration `toml:"cache_ttl"`

	// LRUSize is the number of expansions kept in process. Zero disables
	// the in-process cache.
	LRUSize int `toml:"lru_size"`

	Redis RedisConfig `toml:"redis"`
}

// RedisConfig selects a shared redis expansion cache. An empty Addr keeps
// expansions in the badger store.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

type RetrievalConfig struct {
	TopK           int      `toml:"top_k"`
	Candidates     int      `toml:"candidates"`
	PoolSize       int      `toml:"pool_size"`
	VariantTimeout Duration `toml:"variant_timeout"`
}

type WorkerConfig struct {
	Schedule    string `toml:"schedule"`
	BatchSize   int    `toml:"batch_size"`
	RetryFailed int    `toml:"retry_failed"`
}

// DefaultConfig returns a Config for a local OpenAI-compatible server and a
// data directory named lexis.db.
func DefaultConfig() *Config {
	return &Config{
		Path:     "lexis.db",
		LogLevel: "info",
		AI:       *ai.DefaultConfig(),
		Chunking: ChunkingConfig{Size: chunking.DefaultSize, Overlap: chunking.DefaultOverlap},
		Ingestion: IngestionConfig{
			PoolSize:           4,
			EmbeddingBatchSize: 20,
			StaleAfter:         Duration{ingestion.DefaultStaleAfter},
		},
		Expansion: ExpansionConfig{
			Count:   expansion.DefaultExpansions,
			LRUSize: expansion.DefaultLRUSize,
		},
		Retrieval: RetrievalConfig{
			TopK:           10,
			Candidates:     retrieval.DefaultCandidates,
			PoolSize:       retrieval.DefaultPoolSize,
			VariantTimeout: Duration{retrieval.DefaultVariantTimeout},
		},
		Worker: WorkerConfig{
			Schedule:  schedule.DefaultSchedule,
			BatchSize: schedule.DefaultBatchSize,
		},
	}
}

// LoadConfig reads a TOML file over the defaults. Keys missing from the file
// keep their default values; unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", core.ErrConfiguration, strict.String())
		}
		return nil, fmt.Errorf("%w: %s: %w", core.ErrConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes the AI hosts.
func (c *Config) Validate() error {
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if err := c.ChunkingOptions().Validate(); err != nil {
		return err
	}

	positive := []struct {
		name  string
		value int
	}{
		{"ingestion.pool_size", c.Ingestion.PoolSize},
		{"ingestion.embedding_batch_size", c.Ingestion.EmbeddingBatchSize},
		{"expansion.count", c.Expansion.Count},
		{"retrieval.top_k", c.Retrieval.TopK},
		{"retrieval.candidates", c.Retrieval.Candidates},
		{"retrieval.pool_size", c.Retrieval.PoolSize},
		{"worker.batch_size", c.Worker.BatchSize},
	}
	for _, field := range positive {
		if field.value <= 0 {
			return fmt.Errorf("%w: %s must be greater than 0, got %d", core.ErrConfiguration, field.name, field.value)
		}
	}
	if c.Expansion.LRUSize < 0 || c.Worker.RetryFailed < 0 {
		return fmt.Errorf("%w: sizes cannot be negative", core.ErrConfiguration)
	}
	if c.Ingestion.StaleAfter.Duration <= 0 || c.Retrieval.VariantTimeout.Duration <= 0 {
		return fmt.Errorf("%w: durations must be positive", core.ErrConfiguration)
	}
	if c.Expansion.CacheTTL.Duration < 0 {
		return fmt.Errorf("%w: expansion cache ttl cannot be negative", core.ErrConfiguration)
	}
	return nil
}

// ChunkingOptions returns the chunker settings.
func (c *Config) ChunkingOptions() chunking.Options {
	return chunking.Options{Size: c.Chunking.Size, Overlap: c.Chunking.Overlap}
}
