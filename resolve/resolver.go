package resolve

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/lexis/core"
)

const (
	maxConfidence = 100

	// pairBoost is added when two raw entities corroborate each other.
	pairBoost = 8

	// groupBoost is added when three or more raw entities agree.
	groupBoost = 15
)

// Resolver folds raw extracted entities into canonical entities.
type Resolver struct {
	aliases aliasIndex
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithAliases adds canonical names for an entity type on top of the
// built-in actor and policy tables.
func WithAliases(entityType core.EntityType, table AliasTable) Option {
	return func(r *Resolver) error {
		switch entityType {
		case core.EntityActor, core.EntityPolicy, core.EntityOutcome, core.EntityRisk:
		default:
			return fmt.Errorf("%w: %w: %q", core.ErrConfiguration, core.ErrInvalidEntityType, entityType)
		}
		return r.aliases.add(entityType, table)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewResolver creates a Resolver with the built-in alias tables.
func NewResolver(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		aliases: newAliasIndex(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "entity-resolver")
	return r, nil
}

type group struct {
	entityType core.EntityType
	key        string
	canonical  string // Set when the key came from an alias table
	members    []core.ExtractedEntity
}

// Resolve groups raw entities by type and normalized label and folds each
// group into one entity. Invalid raw entities are skipped with a warning.
// The result is sorted by (type, key).
func (r *Resolver) Resolve(raw []core.ExtractedEntity) []core.Entity {
	groups := make(map[string]*group)
	skipped := 0

	for _, entity := range raw {
		if err := core.ValidateExtractedEntity(&entity); err != nil {
			r.logger.Warn("skipping invalid entity", "label", entity.Label, "type", entity.Type, "err", err)
			skipped++
			continue
		}

		key := NormalizeLabel(entity.Label)
		canonical := ""
		if name, ok := r.aliases.lookup(entity.Type, key); ok {
			key, canonical = name.key, name.label
		}

		tuple := string(entity.Type) + "\x00" + key
		g, ok := groups[tuple]
		if !ok {
			g = &group{entityType: entity.Type, key: key, canonical: canonical}
			groups[tuple] = g
		}
		g.members = append(g.members, entity)
	}

	resolved := make([]core.Entity, 0, len(groups))
	for _, g := range groups {
		resolved = append(resolved, g.resolve())
	}
	slices.SortFunc(resolved, compareEntities)

	r.logger.Debug("resolved entities", "raw", len(raw), "skipped", skipped, "resolved", len(resolved))
	return resolved
}

func (g *group) resolve() core.Entity {
	base := 0
	var provenance []core.ProvenanceRef
	var forms []string
	for _, member := range g.members {
		base = max(base, member.Confidence)
		provenance = append(provenance, member.Provenance...)
		forms = append(forms, surfaceForm(member.Label))
		for _, alias := range member.Aliases {
			if alias = surfaceForm(alias); alias != "" {
				forms = append(forms, alias)
			}
		}
	}

	label := g.canonical
	if label == "" {
		label = mostFrequent(g.members)
	}

	sortProvenance(provenance)
	entity := core.Entity{
		Type:           g.entityType,
		Label:          label,
		Key:            g.key,
		BaseConfidence: base,
		Confidence:     boosted(base, len(g.members)),
		Members:        len(g.members),
		Aliases:        aliasesExcept(forms, label),
		Provenance:     provenance,
	}
	entity.Id = core.IDFromContent(entity.Tuple())
	return entity
}

// Merge folds incoming into stored, two entities already resolved under the
// same (type, key). The stored label is kept. Confidence never drops.
func Merge(stored, incoming core.Entity) core.Entity {
	merged := stored
	merged.Members = stored.Members + incoming.Members
	merged.BaseConfidence = max(stored.BaseConfidence, incoming.BaseConfidence)
	merged.Confidence = max(
		stored.Confidence,
		incoming.Confidence,
		boosted(merged.BaseConfidence, merged.Members),
	)

	merged.Provenance = make([]core.ProvenanceRef, 0, len(stored.Provenance)+len(incoming.Provenance))
	merged.Provenance = append(merged.Provenance, stored.Provenance...)
	merged.Provenance = append(merged.Provenance, incoming.Provenance...)
	sortProvenance(merged.Provenance)

	forms := make([]string, 0, len(stored.Aliases)+len(incoming.Aliases)+1)
	forms = append(forms, stored.Aliases...)
	forms = append(forms, incoming.Aliases...)
	forms = append(forms, incoming.Label)
	merged.Aliases = aliasesExcept(forms, merged.Label)
	return merged
}

// boosted applies the corroboration boost for a group of n raw entities.
func boosted(base, n int) int {
	switch {
	case n >= 3:
		base += groupBoost
	case n == 2:
		base += pairBoost
	}
	return min(maxConfidence, base)
}

// mostFrequent picks the most common surface form, breaking ties by the
// lexicographically smallest.
func mostFrequent(members []core.ExtractedEntity) string {
	counts := make(map[string]int, len(members))
	for _, member := range members {
		counts[surfaceForm(member.Label)]++
	}

	best, bestCount := "", 0
	for form, count := range counts {
		if count > bestCount || (count == bestCount && form < best) {
			best, bestCount = form, count
		}
	}
	return best
}

// aliasesExcept returns the distinct forms other than label, sorted.
func aliasesExcept(forms []string, label string) []string {
	seen := map[string]bool{label: true}
	var aliases []string
	for _, form := range forms {
		if form == "" || seen[form] {
			continue
		}
		seen[form] = true
		aliases = append(aliases, form)
	}
	slices.Sort(aliases)
	return aliases
}

func sortProvenance(refs []core.ProvenanceRef) {
	slices.SortFunc(refs, func(a, b core.ProvenanceRef) int {
		if c := cmp.Compare(a.ChunkId, b.ChunkId); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Quote, b.Quote); c != 0 {
			return c
		}
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}

func compareEntities(a, b core.Entity) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}
