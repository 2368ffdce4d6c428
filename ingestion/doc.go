// Package ingestion drives documents through the processing state machine.
//
// The Pipeline type manages the document workflow:
//   - Enqueue validates raw content and stores a pending document
//   - ProcessBatch claims pending documents and runs parsing, chunking and embedding
//   - RetryFailed returns failed documents to pending
//
// Each stage persists its status before the next begins, so a cancelled or
// crashed run resumes from the last persisted stage. Embedding batches of one
// document run concurrently on a worker pool.
package ingestion
