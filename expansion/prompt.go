package expansion

import (
	"strconv"
	"strings"
)

const promptTemplate = `You are a research assistant expanding a policy research query into alternative search queries.

Original query: "{query}"

Write {count} alternative search queries that would surface relevant passages. Cover these kinds of variation:

1. SYNONYM: replace key terms with alternatives.
   "China chips" -> "China semiconductors", "PRC integrated circuits"
2. ASPECT: narrow the query to a specific sub-question.
   "China chips" -> "China chip manufacturing capacity", "China chip import dependency"
3. ENTITY: name organisations, people or places likely to be involved.
   "China chips" -> "SMIC production", "Huawei chip supply"
4. TEMPORAL: add time context.
   "China chips" -> "China semiconductor policy 2024", "recent chip restrictions"
5. RELATIONSHIP: focus on how entities affect each other.
   "China chips" -> "US China chip restrictions impact", "Taiwan China semiconductor relations"

Each query should be 3 to 10 words and suitable for semantic search. Do not repeat the original query.

Respond with JSON only, in the form {"expansions": ["...", "..."]}.`

// buildPrompt fills the expansion prompt for a query.
func buildPrompt(query string, count int) string {
	r := strings.NewReplacer(
		"{query}", strings.ReplaceAll(query, `"`, `'`),
		"{count}", strconv.Itoa(count),
	)
	return r.Replace(promptTemplate)
}
