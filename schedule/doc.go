// Package schedule runs ingestion batches on a cron schedule.
//
// A Worker calls ProcessBatch on each tick and records a checkpoint with the
// outcome of the last run, so operators can see what a background worker did
// without reading its logs. Overlapping runs are skipped.
package schedule
