package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/expansion"
	"github.com/poiesic/lexis/storage"
)

const (
	// DefaultCandidates is how many nearest chunks each variant contributes.
	DefaultCandidates = 50

	// DefaultVariantTimeout bounds the embed and search of one variant.
	DefaultVariantTimeout = 10 * time.Second
	// DefaultPoolSize is how many variants are searched concurrently.
	DefaultPoolSize = 8
)

// QueryEmbedder turns query variants into vectors.
type QueryEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryExpander produces the variants of a query.
type QueryExpander interface {
	Expand(ctx context.Context, query string, n int) (*expansion.Result, error)
}

// Result is the outcome of one retrieval.
type Result struct {
	Chunks []core.RetrievedChunk

	// Found is the number of distinct chunks before truncation to topK.
	Found int

	// Variants are the searched variants after blanks and duplicates were
	// dropped. RetrievedChunk.Variants indexes into this slice.
	Variants []string

	FailedVariants []string

	// Expansion is set by RetrieveQuery.
	Expansion *expansion.Result
}

// Aggregator searches every query variant and merges the hits per chunk.
type Aggregator struct {
	chunks         storage.ChunkRepository
	embedder       QueryEmbedder
	expander       QueryExpander
	pool           *ants.Pool
	candidates     int
	variantTimeout time.Duration
	logger         *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator) error

// WithPoolSize sets how many variants are searched at once.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(a *Aggregator) error {
		if size <= 0 {
			return fmt.Errorf("%w: pool size must be greater than 0, got %d", core.ErrConfiguration, size)
		}
		if a.pool != nil {
			a.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		a.pool = pool
		return nil
	}
}

// WithCandidates sets how many chunks each variant pulls from the store.
func WithCandidates(n int) Option {
	return func(a *Aggregator) error {
		if n <= 0 {
			return fmt.Errorf("%w: candidates must be greater than 0, got %d", core.ErrConfiguration, n)
		}
		a.candidates = n
		return nil
	}
}

// WithVariantTimeout bounds embedding and searching a single variant.
// A variant past its deadline is reported as failed.
func WithVariantTimeout(d time.Duration) Option {
	return func(a *Aggregator) error {
		if d <= 0 {
			return fmt.Errorf("%w: variant timeout must be positive", core.ErrConfiguration)
		}
		a.variantTimeout = d
		return nil
	}
}

// WithExpander enables RetrieveQuery.
func WithExpander(expander QueryExpander) Option {
	return func(a *Aggregator) error {
		a.expander = expander
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAggregator creates an Aggregator over indexed chunks. Call Release
// when done to free its worker pool.
func NewAggregator(chunks storage.ChunkRepository, embedder QueryEmbedder, opts ...Option) (*Aggregator, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	a := &Aggregator{
		chunks:         chunks,
		embedder:       embedder,
		candidates:     DefaultCandidates,
		variantTimeout: DefaultVariantTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			a.Release()
			return nil, err
		}
	}
	if a.pool == nil {
		pool, err := ants.NewPool(DefaultPoolSize)
		if err != nil {
			return nil, err
		}
		a.pool = pool
	}
	a.logger = a.logger.With("component", "retrieval")
	return a, nil
}

// Release frees the worker pool.
func (a *Aggregator) Release() {
	if a.pool != nil {
		a.pool.Release()
	}
}

// Retrieve searches the chunk store with every variant and returns the topK
// chunks in rank order.
func (a *Aggregator) Retrieve(ctx context.Context, variants []string, topK int) (*Result, error) {
	return a.RetrieveWithMonitor(ctx, variants, topK, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each step.
func (a *Aggregator) RetrieveWithMonitor(ctx context.Context, variants []string, topK int, monitor RetrievalMonitor) (*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be greater than 0, got %d", core.ErrValidation, topK)
	}

	variants = distinctVariants(variants)
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrNoVariants)
	}
	monitor.Start(variants)

	outcomes := a.searchVariants(ctx, variants)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Variants: variants}
	var searched []variantOutcome
	var errs []error
	for i, outcome := range outcomes {
		if outcome.err != nil {
			a.logger.Warn("variant failed", "variant", variants[i], "err", outcome.err)
			monitor.VariantFailed(i, variants[i], outcome.err)
			result.FailedVariants = append(result.FailedVariants, variants[i])
			errs = append(errs, outcome.err)
			continue
		}
		monitor.VariantSearched(i, variants[i], outcome.hits)
		searched = append(searched, outcome)
	}
	if len(searched) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllVariantsFailed, errors.Join(errs...))
	}

	merged := merge(searched)
	result.Found = len(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	result.Chunks = merged

	a.logger.Debug("retrieved chunks", "variants", len(variants), "failed", len(result.FailedVariants),
		"found", result.Found, "returned", len(merged))
	monitor.Finish(result.Chunks, result.Found)
	return result, nil
}

// RetrieveQuery expands query into up to n variants and retrieves with them.
// Expansion failures fall back to the query alone.
func (a *Aggregator) RetrieveQuery(ctx context.Context, query string, n, topK int) (*Result, error) {
	if a.expander == nil {
		return nil, ErrExpanderRequired
	}
	expanded, err := a.expander.Expand(ctx, query, n)
	if err != nil {
		return nil, err
	}

	result, err := a.Retrieve(ctx, expanded.Expansions, topK)
	if err != nil {
		return nil, err
	}
	result.Expansion = expanded
	return result, nil
}

type variantOutcome struct {
	index int
	hits  []core.ChunkHit
	err   error
}

// searchVariants runs one task per variant on the pool and waits for all of
// them. Outcomes are returned in variant order.
func (a *Aggregator) searchVariants(ctx context.Context, variants []string) []variantOutcome {
	outcomes := make([]variantOutcome, len(variants))
	var wg sync.WaitGroup

	for i, variant := range variants {
		outcomes[i].index = i
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			outcomes[i].hits, outcomes[i].err = a.searchVariant(ctx, variant)
		})
		if err != nil {
			wg.Done()
			outcomes[i].err = err
		}
	}

	wg.Wait()
	return outcomes
}

func (a *Aggregator) searchVariant(ctx context.Context, variant string) ([]core.ChunkHit, error) {
	ctx, cancel := context.WithTimeout(ctx, a.variantTimeout)
	defer cancel()

	vectors, err := a.embedder.EmbedBatch(ctx, []string{variant})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", core.ErrInvalidResponse, len(vectors))
	}
	return a.chunks.SearchChunks(ctx, vectors[0], a.candidates)
}

// merge folds per-variant hits into one ranking.
func merge(outcomes []variantOutcome) []core.RetrievedChunk {
	byID := make(map[core.ID]*core.RetrievedChunk)
	for _, outcome := range outcomes {
		for _, hit := range outcome.hits {
			rc, ok := byID[hit.Chunk.Id]
			if !ok {
				byID[hit.Chunk.Id] = &core.RetrievedChunk{
					Chunk:        hit.Chunk,
					HitCount:     1,
					Variants:     []int{outcome.index},
					BestDistance: hit.Distance,
				}
				continue
			}
			// A store returns each chunk at most once per search
			if rc.Variants[len(rc.Variants)-1] != outcome.index {
				rc.HitCount++
				rc.Variants = append(rc.Variants, outcome.index)
			}
			rc.BestDistance = min(rc.BestDistance, hit.Distance)
		}
	}

	merged := make([]core.RetrievedChunk, 0, len(byID))
	for _, rc := range byID {
		rc.Score = float32(rc.HitCount) + (1 - rc.BestDistance)
		merged = append(merged, *rc)
	}
	slices.SortFunc(merged, compareRetrieved)
	return merged
}

func compareRetrieved(a, b core.RetrievedChunk) int {
	if c := cmp.Compare(b.HitCount, a.HitCount); c != 0 {
		return c
	}
	if c := cmp.Compare(a.BestDistance, b.BestDistance); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
}

// distinctVariants drops blank variants and variants that normalize to one
// already seen, keeping first occurrences in order.
func distinctVariants(variants []string) []string {
	seen := make(map[string]struct{}, len(variants))
	out := make([]string, 0, len(variants))
	for _, variant := range variants {
		key := expansion.Normalize(variant)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, variant)
	}
	return out
}
