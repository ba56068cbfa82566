// Package ingestion turns registered documents into indexed chunks.
//
// An Ingestor drives one document through its status machine:
//
//	pending -> processing -> completed | error
//
// extracting text, chunking it, embedding the chunks and upserting the
// vectors. A document is completed only when every chunk is indexed.
//
// A Scheduler runs many documents on a bounded worker pool, isolating
// failures, and a Queue wraps the Scheduler in persisted, pollable tasks
// that survive process restarts.
package ingestion
