// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package indexer writes vector records to a VectorStore in bounded batches.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

// DefaultBatchSize is the number of records written per store call.
const DefaultBatchSize = 100

var (
	// ErrIndexingFailure indicates records could not be written. Batches
	// already written are not rolled back, but the caller must treat the
	// whole call as failed.
	ErrIndexingFailure = errors.New("indexing failure")

	// ErrStoreRequired is returned when constructing an Indexer without a store.
	ErrStoreRequired = errors.New("vector store required")
)

// Indexer upserts vector records in batches.
type Indexer struct {
	store     storage.VectorStore
	batchSize int
	logger    *slog.Logger
}

type Option func(*Indexer)

func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

func New(store storage.VectorStore, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	ix := &Indexer{
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "indexer")
	return ix, nil
}

// Upsert validates records and writes them batch by batch. Writing is
// idempotent per record id. Any failed batch fails the whole call with
// ErrIndexingFailure.
func (ix *Indexer) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validate(records); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexingFailure, err)
	}

	for start := 0; start < len(records); start += ix.batchSize {
		end := min(start+ix.batchSize, len(records))
		if err := ix.store.Upsert(ctx, records[start:end]); err != nil {
			ix.logger.Error("batch upsert failed", "start", start, "end", end, "total", len(records), "err", err)
			return fmt.Errorf("%w: batch [%d:%d]: %w", ErrIndexingFailure, start, end, err)
		}
	}

	ix.logger.Debug("indexed records", "records", len(records))
	return nil
}

// Remove deletes every vector of documentID in collectionID.
func (ix *Indexer) Remove(ctx context.Context, collectionID string, documentID core.ID) (int, error) {
	n, err := ix.store.DeleteDocument(ctx, collectionID, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: remove document %s: %w", ErrIndexingFailure, documentID, err)
	}
	if n > 0 {
		ix.logger.Debug("removed document vectors", "document", documentID, "records", n)
	}
	return n, nil
}

func validate(records []core.VectorRecord) error {
	dim := len(records[0].Vector)
	for i, r := range records {
		if r.Id == "" {
			return fmt.Errorf("record %d: empty id", i)
		}
		if r.Metadata.CollectionId == "" {
			return fmt.Errorf("record %s: %w", r.Id, core.ErrEmptyCollection)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("record %s: %w: length %d, want %d", r.Id, storage.ErrDimensionMismatch, len(r.Vector), dim)
		}
	}
	return nil
}
