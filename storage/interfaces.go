package storage

import (
	"context"

	"github.com/poiesic/lore/core"
)

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	// CollectionId limits results to one collection when non-empty.
	CollectionId string

	// Statuses limits results to documents in any of the given states.
	Statuses []core.DocumentStatus

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// DocumentRepository stores document rows.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// CreateDocument inserts a new document. An empty Id is replaced with a
	// fresh one; Status defaults to pending and timestamps are set.
	// Returns ErrDuplicateKey if the id is taken.
	CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// UpdateDocument writes every mutable field except Status, which only
	// Transition changes. Updates UpdatedAt automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// Transition atomically moves a document to status to, provided
	// core.CanTransition allows it from the stored status. update, when
	// non-nil, may change other fields in the same write. Entering
	// processing stamps ProcessingStartedAt and clears the error message;
	// entering a terminal state stamps ProcessingFinishedAt.
	// Returns an error wrapping core.ErrInvalidStateTransition when the
	// stored status does not allow the move, and ErrNotFound when the
	// document doesn't exist.
	Transition(ctx context.Context, id core.ID, to core.DocumentStatus, update func(*core.Document)) (*core.Document, error)

	// ListDocuments returns documents matching filter, oldest first.
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*core.Document, error)

	// Close releases resources.
	Close() error
}

// ChunkRepository stores chunk rows.
// Implementations must be thread-safe and support concurrent access.
type ChunkRepository interface {
	// ReplaceChunks deletes every chunk of documentID and inserts chunks in
	// one transaction. Chunk indices must be dense starting at zero.
	ReplaceChunks(ctx context.Context, documentID core.ID, chunks []*core.Chunk) error

	// GetChunks returns the chunks of documentID ordered by index.
	GetChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// UpdateChunkStatuses sets status on every chunk of documentID in one
	// transaction. vectorIDs maps chunk ids to the vector ids to record;
	// chunks missing from the map have their vector id cleared.
	UpdateChunkStatuses(ctx context.Context, documentID core.ID, status core.ChunkStatus, vectorIDs map[core.ID]core.ID) error

	// CountChunks counts chunks of documentID, optionally restricted to statuses.
	CountChunks(ctx context.Context, documentID core.ID, statuses ...core.ChunkStatus) (int, error)

	// Close releases resources.
	Close() error
}

// VectorStore holds embeddings with metadata, partitioned by collection.
// Implementations must be thread-safe and support concurrent access.
type VectorStore interface {
	// Upsert writes records, overwriting any existing record with the same
	// id. Records are partitioned by Metadata.CollectionId.
	Upsert(ctx context.Context, records []core.VectorRecord) error

	// Query returns up to topK records of collectionID ordered by
	// similarity to vector, highest first.
	Query(ctx context.Context, vector []float32, collectionID string, topK int) ([]core.VectorMatch, error)

	// DeleteDocument removes every record of documentID in collectionID
	// and returns how many were removed.
	DeleteDocument(ctx context.Context, collectionID string, documentID core.ID) (int, error)

	// Count returns the number of records in collectionID.
	Count(ctx context.Context, collectionID string) (int, error)

	// Close releases resources.
	Close() error
}

// TaskRepository persists background ingestion tasks.
// Implementations must be thread-safe and support concurrent access.
type TaskRepository interface {
	// SaveTask inserts or overwrites a task.
	SaveTask(ctx context.Context, task *core.Task) error

	// GetTask retrieves a task by ID.
	// Returns ErrNotFound if the task doesn't exist.
	GetTask(ctx context.Context, id core.ID) (*core.Task, error)

	// ListTasks returns tasks in any of statuses (all tasks when empty),
	// oldest first.
	ListTasks(ctx context.Context, statuses ...core.TaskStatus) ([]*core.Task, error)

	// Close releases resources.
	Close() error
}

// CheckpointRepository persists progress markers of resumable batch jobs.
type CheckpointRepository interface {
	// SaveCheckpoint stores checkpoint under its name, stamping UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the named checkpoint, or nil, nil if none exists.
	LoadCheckpoint(ctx context.Context, name string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes the named checkpoint. Missing names are ignored.
	DeleteCheckpoint(ctx context.Context, name string) error
}
