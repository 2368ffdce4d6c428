// Package expansion turns a research query into a list of query variants.
//
// An Expander asks a generation model for alternative phrasings covering
// synonyms, narrower aspects, involved entities, time context and
// relationships. The first entry of every result is the query itself, so a
// result is never empty even when the model is unavailable.
//
// Results are cached by the SHA-256 of the normalized query. Any
// storage.ExpansionCache works; LRUCache adds an in-process front to a
// badger or redis store.
package expansion
