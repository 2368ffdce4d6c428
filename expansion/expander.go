package expansion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/lexis/ai"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/retry"
	"github.com/poiesic/lexis/storage"
)

const (
	// DefaultExpansions is the number of variants requested when the caller
	// does not ask for a specific count.
	DefaultExpansions = 15

	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

// Result is the outcome of an expansion. Expansions[0] is always the query.
type Result struct {
	Expansions []string
	Cached     bool
	Degraded   bool
}

// Expander turns a query into paraphrased variants with a text generator
// and caches the result by normalized query.
type Expander struct {
	generator ai.Generator
	cache     storage.ExpansionCache
	policy    retry.Policy
	maxTokens int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Expander.
type Option func(*Expander) error

// WithPolicy sets the retry policy for generation calls.
func WithPolicy(policy retry.Policy) Option {
	return func(e *Expander) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		e.policy = policy
		return nil
	}
}

// WithMaxTokens caps the generated response. Zero leaves it to the provider.
func WithMaxTokens(maxTokens int) Option {
	return func(e *Expander) error {
		if maxTokens < 0 {
			return fmt.Errorf("%w: max tokens cannot be negative", core.ErrConfiguration)
		}
		e.maxTokens = maxTokens
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) error {
		e.logger = logger
		return nil
	}
}

// NewExpander creates an Expander that reads and writes cache.
func NewExpander(generator ai.Generator, cache storage.ExpansionCache, opts ...Option) (*Expander, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}

	policy := retry.DefaultPolicy()
	policy.Temperature = defaultTemperature
	e := &Expander{
		generator: generator,
		cache:     cache,
		policy:    policy,
		maxTokens: defaultMaxTokens,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "query-expander")
	return e, nil
}

// Expand returns up to n variants of query, with the query itself first.
// A blank query is a validation error. Every other failure degrades to a
// result holding only the query so callers can keep going.
func (e *Expander) Expand(ctx context.Context, query string, n int) (*Result, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", core.ErrValidation)
	}
	if n <= 0 {
		n = DefaultExpansions
	}
	hash := Hash(query)

	entry, err := e.cache.GetExpansion(ctx, hash)
	switch {
	case err == nil:
		e.logger.Debug("expansion cache hit", "hash", hash)
		return &Result{Expansions: entry.Expansions, Cached: true}, nil
	case !errors.Is(err, storage.ErrNotFound):
		e.logger.Warn("expansion cache read failed", "hash", hash, "err", err)
	}

	generated, err := e.generate(ctx, query, n)
	if err != nil {
		e.logger.Warn("query expansion degraded", "query", query, "err", err)
		return degraded(query), nil
	}

	expansions := finalize(query, generated, n)
	entry = &core.ExpansionEntry{
		Hash:       hash,
		Query:      normalized,
		Expansions: expansions,
		CreatedAt:  e.now(),
	}
	if err := e.cache.PutExpansion(ctx, entry); err != nil {
		e.logger.Warn("failed to cache expansions", "hash", hash, "err", err)
	}
	e.logger.Debug("expanded query", "hash", hash, "variants", len(expansions))
	return &Result{Expansions: expansions}, nil
}

func (e *Expander) generate(ctx context.Context, query string, n int) ([]string, error) {
	prompt := buildPrompt(query, n)
	var expansions []string
	err := retry.Do(ctx, e.policy, func(ctx context.Context, attempt retry.Attempt) error {
		response, err := e.generator.Generate(ctx, prompt, ai.GenerateOptions{
			Temperature: attempt.Temperature,
			MaxTokens:   e.maxTokens,
			JSON:        true,
		})
		if err != nil {
			return err
		}
		expansions, err = parseExpansions(response)
		return err
	})
	return expansions, err
}

// finalize drops blank and duplicate variants, puts the query first and caps
// the list at n+1 entries.
func finalize(query string, generated []string, n int) []string {
	trimmed := trimQuery(query)
	seen := map[string]struct{}{Normalize(query): {}}
	out := make([]string, 0, min(len(generated), n)+1)
	out = append(out, trimmed)
	for _, variant := range generated {
		if len(out) == n+1 {
			break
		}
		key := Normalize(variant)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimQuery(variant))
	}
	return out
}

func degraded(query string) *Result {
	return &Result{Expansions: []string{trimQuery(query)}, Degraded: true}
}

// trimQuery collapses whitespace but keeps the caller's casing.
func trimQuery(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
