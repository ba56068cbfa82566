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

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/storage"
)

// BatchProcessor re-embeds the chunks of single documents and overwrites
// their vectors. Chunk ids double as vector ids, so each record replaces
// the one it was built from.
type BatchProcessor struct {
	documents    storage.DocumentRepository
	chunks       storage.ChunkRepository
	embedder     ingestion.ChunkEmbedder
	indexer      ingestion.VectorIndexer
	snippetRunes int
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder ingestion.ChunkEmbedder,
	indexer ingestion.VectorIndexer,
	snippetRunes int,
) *BatchProcessor {
	return &BatchProcessor{
		documents:    documents,
		chunks:       chunks,
		embedder:     embedder,
		indexer:      indexer,
		snippetRunes: snippetRunes,
	}
}

// Process re-embeds doc and returns how many chunks it wrote. A document
// that is no longer completed, for instance because it is being
// re-ingested, is skipped with skipped set.
func (bp *BatchProcessor) Process(ctx context.Context, doc *core.Document) (written int, skipped bool, err error) {
	current, err := bp.documents.GetDocument(ctx, doc.Id)
	if err != nil {
		return 0, false, fmt.Errorf("load document: %w", err)
	}
	if current.Status != core.DocumentStatusCompleted {
		return 0, true, nil
	}

	chunks, err := bp.chunks.GetChunks(ctx, current.Id)
	if err != nil {
		return 0, false, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, false, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	result, err := bp.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, false, fmt.Errorf("embed chunks: %w", err)
	}
	if result.Mock {
		return 0, false, ErrMockEmbedding
	}
	if len(result.Vectors) != len(chunks) {
		return 0, false, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(result.Vectors))
	}

	source := ingestion.SourceName(current, nil)
	records := ingestion.VectorRecords(current, source, chunks, result.Vectors, false, bp.snippetRunes)
	if err := bp.indexer.Upsert(ctx, records); err != nil {
		return 0, false, fmt.Errorf("store vectors: %w", err)
	}

	vectorIDs := make(map[core.ID]core.ID, len(records))
	for _, r := range records {
		vectorIDs[r.Id] = r.Id
	}
	if err := bp.chunks.UpdateChunkStatuses(ctx, current.Id, core.ChunkStatusEmbedded, vectorIDs); err != nil {
		return 0, false, fmt.Errorf("update chunks: %w", err)
	}

	if current.Metadata.MockEmbedding {
		current.Metadata.MockEmbedding = false
		current.Metadata.Warning = ""
		if _, err := bp.documents.UpdateDocument(ctx, current); err != nil {
			return 0, false, fmt.Errorf("clear mock embedding flag: %w", err)
		}
	}

	return len(chunks), false, nil
}
