package resolve

import (
	"fmt"
	"maps"
	"slices"

	"github.com/poiesic/lexis/core"
)

// AliasTable maps a canonical display name to the other names it goes by.
type AliasTable map[string][]string

// ActorAliases covers countries and institutions that policy texts refer to
// by several names.
var ActorAliases = AliasTable{
	"United States":               {"US", "USA", "U.S.", "U.S.A.", "America", "United States of America"},
	"United Kingdom":              {"UK", "U.K.", "Britain", "Great Britain", "Great Britain and Northern Ireland"},
	"European Union":              {"EU", "E.U."},
	"United Nations":              {"UN", "U.N."},
	"Israel":                      {"State of Israel"},
	"Russia":                      {"Russian Federation"},
	"China":                       {"People's Republic of China", "PRC"},
	"US Congress":                 {"United States Congress", "Congress", "U.S. Congress"},
	"US Senate":                   {"United States Senate", "Senate", "U.S. Senate"},
	"US House of Representatives": {"House of Representatives", "House", "US House"},
	"White House":                 {"Executive Office of the President"},
	"NATO":                        {"North Atlantic Treaty Organization"},
	"World Bank":                  {"International Bank for Reconstruction and Development"},
	"International Monetary Fund": {"IMF"},
	"World Health Organization":   {"WHO"},
	"European Central Bank":       {"ECB"},
	"Federal Reserve":             {"Fed", "Federal Reserve System"},
	"Supreme Court":               {"US Supreme Court", "United States Supreme Court"},
	"Department of Defense":       {"DoD", "Pentagon"},
}

// PolicyAliases folds common variants of broad policy instruments.
var PolicyAliases = AliasTable{
	"Sanctions":    {"Economic Sanctions", "Trade Sanctions"},
	"Trade Policy": {"Trade Agreement", "Trade Deal", "Free Trade Agreement"},
	"Foreign Aid":  {"International Aid", "Development Assistance", "Foreign Assistance"},
	"Military Aid": {"Security Assistance", "Defense Assistance", "Military Assistance"},
}

// canonicalName is the display label an alias resolves to.
type canonicalName struct {
	key   string
	label string
}

// aliasIndex looks canonical names up by entity type and normalized alias.
type aliasIndex map[core.EntityType]map[string]canonicalName

func newAliasIndex() aliasIndex {
	idx := aliasIndex{}
	for entityType, table := range map[core.EntityType]AliasTable{
		core.EntityActor:  ActorAliases,
		core.EntityPolicy: PolicyAliases,
	} {
		if err := idx.add(entityType, table); err != nil {
			panic(err)
		}
	}
	return idx
}

// add registers a table on top of earlier ones; its names replace earlier
// entries for the same alias. A table that sends one alias to two canonical
// names is rejected.
func (idx aliasIndex) add(entityType core.EntityType, table AliasTable) error {
	added := make(map[string]canonicalName)
	for _, label := range slices.Sorted(maps.Keys(table)) {
		canonical := canonicalName{key: NormalizeLabel(label), label: label}
		keys := []string{canonical.key}
		for _, alias := range table[label] {
			keys = append(keys, NormalizeLabel(alias))
		}
		for _, key := range keys {
			if key == "" {
				continue
			}
			if prev, ok := added[key]; ok && prev != canonical {
				return fmt.Errorf("%w: alias %q maps to both %q and %q",
					core.ErrConfiguration, key, prev.label, canonical.label)
			}
			added[key] = canonical
		}
	}

	names := idx[entityType]
	if names == nil {
		names = make(map[string]canonicalName)
		idx[entityType] = names
	}
	maps.Copy(names, added)
	return nil
}

// lookup returns the canonical name for a normalized label, if one is known.
func (idx aliasIndex) lookup(entityType core.EntityType, key string) (canonicalName, bool) {
	canonical, ok := idx[entityType][key]
	return canonical, ok
}
