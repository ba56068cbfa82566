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

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/poiesic/lore/cache"
	"github.com/poiesic/lore/chunker"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/extract"
)

// job carries one document through the stages of an ingestion attempt.
type job struct {
	doc        *core.Document
	extraction *extract.Extraction
	chunks     []*core.Chunk
	embedded   *embedding.Result
	records    []core.VectorRecord
	warnings   []string
	note       string
	truncated  bool

	// empty ends the attempt early as a success with no chunks.
	empty bool

	// chunksWritten and indexed tell the failure path what to undo.
	chunksWritten bool
	indexed       bool
}

// stage is one step of an ingestion attempt.
type stage struct {
	name string
	run  func(ctx context.Context, j *job) error
}

func (i *Ingestor) stages() []stage {
	return []stage{
		{"extract", i.extractText},
		{"chunk", i.chunkText},
		{"embed", i.embedChunks},
		{"index", i.indexChunks},
	}
}

func extractionKey(doc *core.Document) string {
	return cache.Key("extract", doc.CollectionId, string(doc.Id))
}

func (i *Ingestor) extractText(ctx context.Context, j *job) error {
	key := extractionKey(j.doc)
	data, found, err := i.cache.Get(ctx, key)
	if err != nil {
		i.logger.Warn("extraction cache read failed", "key", key, "err", err)
	}
	if found {
		var cached extract.Extraction
		if err := json.Unmarshal(data, &cached); err == nil {
			j.extraction = &cached
			return nil
		}
		i.logger.Warn("discarding unreadable cached extraction", "key", key)
	}

	ex, err := i.extractor.Extract(ctx, j.doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}
	if ex == nil {
		ex = &extract.Extraction{}
	}
	j.extraction = ex

	if data, err := json.Marshal(ex); err == nil {
		if err := i.cache.Set(ctx, key, data, i.cacheTTL); err != nil {
			i.logger.Warn("extraction cache write failed", "key", key, "err", err)
		}
	}
	return nil
}

// chunkText splits the extracted text and replaces the document's stored
// chunks and vectors, so a re-ingested document never keeps stale ones.
func (i *Ingestor) chunkText(ctx context.Context, j *job) error {
	var (
		text    = j.extraction.Text
		offsets []int
	)
	if len(j.extraction.Pages) > 0 {
		text, offsets = chunker.NormalizePages(j.extraction.Pages)
	}

	result := chunker.Split(text, i.chunkSize, i.chunkOverlap)
	if result.Truncated {
		j.truncated = true
		j.warnings = append(j.warnings, fmt.Sprintf("chunking stopped early after %d chunks", len(result.Spans)))
	}

	j.chunks = make([]*core.Chunk, len(result.Spans))
	for idx, span := range result.Spans {
		j.chunks[idx] = &core.Chunk{
			Id:         core.ChunkID(j.doc.Id, idx),
			DocumentId: j.doc.Id,
			Index:      idx,
			Text:       span.Text,
			TokenCount: chunker.EstimateTokens(span.Text),
			Page:       chunker.PageAt(offsets, span.Start),
			Status:     core.ChunkStatusPending,
		}
	}

	if err := i.chunkRepo.ReplaceChunks(ctx, j.doc.Id, j.chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	j.chunksWritten = len(j.chunks) > 0

	if _, err := i.indexer.Remove(ctx, j.doc.CollectionId, j.doc.Id); err != nil {
		return fmt.Errorf("remove previous vectors: %w", err)
	}

	if len(j.chunks) == 0 {
		j.empty = true
		j.note = "no content"
	}
	return nil
}

func (i *Ingestor) embedChunks(ctx context.Context, j *job) error {
	texts := make([]string, len(j.chunks))
	for idx, c := range j.chunks {
		texts[idx] = c.Text
	}

	result, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(result.Vectors) != len(texts) {
		return fmt.Errorf("embed chunks: %w: %d vectors for %d chunks", embedding.ErrProviderFailure, len(result.Vectors), len(texts))
	}
	if result.Mock {
		j.warnings = append(j.warnings, result.Warning)
	}
	j.embedded = result
	return nil
}

func (i *Ingestor) indexChunks(ctx context.Context, j *job) error {
	source := SourceName(j.doc, j.extraction)
	j.records = VectorRecords(j.doc, source, j.chunks, j.embedded.Vectors, j.embedded.Mock, i.snippetRunes)

	// Batches may land before a later one fails.
	j.indexed = true
	return i.indexer.Upsert(ctx, j.records)
}

// VectorRecords pairs chunks with their vectors. vectors[k] belongs to
// chunks[k]; the record id is the chunk id.
func VectorRecords(doc *core.Document, source string, chunks []*core.Chunk, vectors [][]float32, mock bool, snippetRunes int) []core.VectorRecord {
	records := make([]core.VectorRecord, len(chunks))
	for idx, c := range chunks {
		records[idx] = core.VectorRecord{
			Id:     c.Id,
			Vector: vectors[idx],
			Metadata: core.VectorMetadata{
				DocumentId:    doc.Id,
				CollectionId:  doc.CollectionId,
				SourceName:    source,
				SourceKind:    doc.SourceKind,
				Snippet:       snippet(c.Text, snippetRunes),
				Page:          c.Page,
				ChunkIndex:    c.Index,
				MockEmbedding: mock,
			},
		}
	}
	return records
}

// SourceName is the name citations show for doc: its Name, else the
// extracted title, else the file name or URL. ex may be nil.
func SourceName(doc *core.Document, ex *extract.Extraction) string {
	switch {
	case doc.Name != "":
		return doc.Name
	case ex != nil && ex.Title != "":
		return ex.Title
	case doc.SourceKind == core.SourceKindFile:
		return filepath.Base(doc.StorageRef)
	}
	return doc.StorageRef
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
