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

package core

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID identifies documents, chunks, vector records and tasks.
type ID string

// NewID returns a random ID for records created on request (documents, tasks).
func NewID() ID {
	return ID(uuid.NewString())
}

// IDFromContent returns a deterministic ID derived from text.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(text))
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// ChunkID returns the deterministic ID of the chunk at index within a document.
// Re-ingesting a document therefore overwrites the same vector records.
func ChunkID(documentID ID, index int) ID {
	return IDFromContent(string(documentID) + ":" + strconv.Itoa(index))
}

func (id ID) String() string {
	return string(id)
}

type SourceKind string

const (
	SourceKindFile    SourceKind = "file"
	SourceKindWebpage SourceKind = "webpage"
)

// SourceKindOf guesses the kind of a storage reference: http and https
// URLs are web pages, anything else is a file path.
func SourceKindOf(ref string) SourceKind {
	lower := strings.ToLower(strings.TrimSpace(ref))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return SourceKindWebpage
	}
	return SourceKindFile
}

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusError      DocumentStatus = "error"
)

type ChunkStatus string

const (
	ChunkStatusPending  ChunkStatus = "pending"
	ChunkStatusEmbedded ChunkStatus = "embedded"
	ChunkStatusError    ChunkStatus = "error"
)

// ProcessingMetadata records what the last ingestion attempt did.
type ProcessingMetadata struct {
	Attempts      int    `json:"attempts"`
	ChunkCount    int    `json:"chunk_count"`
	ElapsedMillis int64  `json:"elapsed_ms"`
	MockEmbedding bool   `json:"mock_embedding,omitempty"`
	Warning       string `json:"warning,omitempty"`
	Note          string `json:"note,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

type Document struct {
	Id                   ID
	CollectionId         string
	Name                 string // Source name shown in citations
	SourceKind           SourceKind
	StorageRef           string // File path or URL
	ExtractedText        string // Optional cached text, size-capped
	Status               DocumentStatus
	ErrorMessage         string
	Metadata             ProcessingMetadata
	ProcessingStartedAt  time.Time
	ProcessingFinishedAt time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Chunk struct {
	Id         ID
	DocumentId ID
	Index      int
	Text       string
	TokenCount int
	Page       int // 1-based, 0 when unknown
	Status     ChunkStatus
	VectorId   ID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VectorMetadata is stored next to each embedding in the vector store.
type VectorMetadata struct {
	DocumentId    ID
	CollectionId  string
	SourceName    string
	SourceKind    SourceKind
	Snippet       string
	Page          int
	ChunkIndex    int
	MockEmbedding bool
}

type VectorRecord struct {
	Id       ID
	Vector   []float32
	Metadata VectorMetadata
}

// VectorMatch is a nearest-neighbour hit returned by a vector store query.
type VectorMatch struct {
	Id       ID
	Score    float32
	Metadata VectorMetadata
}

type Citation struct {
	Marker     int
	DocumentId ID
	SourceName string
	Page       int
	Snippet    string
	Score      float32
}

type QueryResult struct {
	Content       string
	Citations     []Citation
	Confidence    float64
	DocumentsUsed []string
	Fallback      bool // Content came from the no-results path
}

// Segment is a run of generated text and the citations its marker resolved to.
// Prose segments carry no citations.
type Segment struct {
	Text      string
	Citations []Citation
}

type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
)

// Task is a pollable handle for a background ingestion run.
type Task struct {
	Id            ID
	DocumentIds   []ID
	MaxConcurrent int
	Status        TaskStatus
	Succeeded     int
	Failed        int
	Failures      map[ID]string
	CreatedAt     time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Checkpoint records how far a resumable batch job got.
type Checkpoint struct {
	Name      string
	Position  string
	UpdatedAt time.Time
}
