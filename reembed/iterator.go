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

package reembed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

const (
	// DefaultBatchSize is the default number of documents handled between checkpoints
	DefaultBatchSize = 20
)

// Cursor marks the last document a run finished. Documents are ordered by
// creation time, then id, the same order ListDocuments returns.
type Cursor struct {
	CreatedAt time.Time
	Id        core.ID
}

// CursorOf returns the cursor positioned at doc.
func CursorOf(doc *core.Document) Cursor {
	return Cursor{CreatedAt: doc.CreatedAt, Id: doc.Id}
}

// IsZero reports whether the cursor is the start of the collection.
func (c Cursor) IsZero() bool {
	return c.Id == "" && c.CreatedAt.IsZero()
}

// String encodes the cursor as a checkpoint position.
func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	return strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + string(c.Id)
}

// ParseCursor decodes a checkpoint position. The empty string is the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	nanos, id, ok := strings.Cut(s, "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q: %w", ErrInvalidCursor, s, err)
	}
	return Cursor{CreatedAt: time.Unix(0, n).UTC(), Id: core.ID(id)}, nil
}

// Before reports whether the cursor sorts before doc, meaning doc still
// needs processing.
func (c Cursor) Before(doc *core.Document) bool {
	if c.IsZero() {
		return true
	}
	if !doc.CreatedAt.Equal(c.CreatedAt) {
		return c.CreatedAt.Before(doc.CreatedAt)
	}
	return c.Id < doc.Id
}

// DocumentIterator walks a collection's completed documents in batches.
type DocumentIterator struct {
	documents storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch (DefaultBatchSize when <= 0)
func NewDocumentIterator(documents storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		documents: documents,
		batchSize: batchSize,
	}
}

// Remaining returns the completed documents of collectionID after cursor.
func (it *DocumentIterator) Remaining(ctx context.Context, collectionID string, cursor Cursor) ([]*core.Document, error) {
	docs, err := it.documents.ListDocuments(ctx, storage.DocumentFilter{
		CollectionId: collectionID,
		Statuses:     []core.DocumentStatus{core.DocumentStatusCompleted},
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	remaining := docs[:0]
	for _, doc := range docs {
		if cursor.Before(doc) {
			remaining = append(remaining, doc)
		}
	}
	return remaining, nil
}

// ForEach calls fn for each batch of documents after cursor.
// Iteration stops on first error from fn or when all documents are processed.
// Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, collectionID string, cursor Cursor, fn func([]*core.Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docs, err := it.Remaining(ctx, collectionID, cursor)
	if err != nil {
		return err
	}

	for i := 0; i < len(docs); i += it.batchSize {
		end := min(i+it.batchSize, len(docs))

		if err := fn(docs[i:end]); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
