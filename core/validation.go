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
	"fmt"
	"strings"
)

// ValidateDocument checks the fields a document needs before ingestion.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.CollectionId) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyCollection)
	}

	if err := ValidateSourceKind(doc.SourceKind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if strings.TrimSpace(doc.StorageRef) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyStorageRef)
	}

	return nil
}

// ValidateChunk checks a chunk before it is persisted.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocumentId == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidChunk)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	return nil
}

func ValidateSourceKind(kind SourceKind) error {
	if kind != SourceKindFile && kind != SourceKindWebpage {
		return fmt.Errorf("%w: value %q", ErrInvalidSourceKind, kind)
	}
	return nil
}

// CanTransition reports whether a document may move from one status to another.
//
//	pending    -> processing
//	processing -> completed | error
//	error      -> processing   (retry)
//	completed  -> processing   (re-ingestion)
//
// processing -> processing is never allowed.
func CanTransition(from, to DocumentStatus) bool {
	switch to {
	case DocumentStatusProcessing:
		return from == DocumentStatusPending || from == DocumentStatusError || from == DocumentStatusCompleted
	case DocumentStatusCompleted, DocumentStatusError:
		return from == DocumentStatusProcessing
	}
	return false
}

// CheckTransition is CanTransition returning ErrInvalidStateTransition.
func CheckTransition(from, to DocumentStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}
