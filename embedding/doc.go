// Package embedding batches texts for an embedding provider.
//
// A Batcher sends at most BatchSize texts per provider call and retries each
// call with the class-aware policy from the retry package. Responses are
// validated for count and width before any vector is handed back, so a
// batch either embeds completely or not at all.
//
// The same Batcher embeds chunk text during ingestion and query variants
// during retrieval.
package embedding
