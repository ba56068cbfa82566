package ingestion

import "errors"

var (
	// ErrExtractionFailure indicates the document's text could not be extracted.
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrPanic indicates ingestion of a document panicked and was recovered.
	ErrPanic = errors.New("ingestion panicked")

	// ErrNotRetryable is returned by RetryDocument for documents not in error.
	ErrNotRetryable = errors.New("document is not in error state")

	// ErrInterrupted is recorded on documents whose ingestion was cut
	// short by the process exiting.
	ErrInterrupted = errors.New("ingestion interrupted by restart")

	// ErrQueueClosed is returned when enqueueing after Close.
	ErrQueueClosed = errors.New("queue closed")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrGeneratorRequired is returned when an embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrIndexerRequired is returned when an indexer is not provided.
	ErrIndexerRequired = errors.New("indexer required")

	// ErrIngestorRequired is returned when a scheduler has nothing to run.
	ErrIngestorRequired = errors.New("ingestor required")

	// ErrTaskRepositoryRequired is returned when a task repository is not provided.
	ErrTaskRepositoryRequired = errors.New("task repository required")
)
