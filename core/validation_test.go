package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name: "valid file document",
			doc: &Document{
				CollectionId: "kb",
				SourceKind:   SourceKindFile,
				StorageRef:   "/tmp/notes.txt",
			},
		},
		{
			name: "valid webpage document",
			doc: &Document{
				CollectionId: "kb",
				SourceKind:   SourceKindWebpage,
				StorageRef:   "https://example.com",
			},
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name: "missing collection",
			doc: &Document{
				SourceKind: SourceKindFile,
				StorageRef: "/tmp/notes.txt",
			},
			wantErr: ErrEmptyCollection,
		},
		{
			name: "unknown source kind",
			doc: &Document{
				CollectionId: "kb",
				SourceKind:   "ftp",
				StorageRef:   "/tmp/notes.txt",
			},
			wantErr: ErrInvalidSourceKind,
		},
		{
			name: "missing storage reference",
			doc: &Document{
				CollectionId: "kb",
				SourceKind:   SourceKindFile,
				StorageRef:   "  ",
			},
			wantErr: ErrEmptyStorageRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
			assert.True(t, errors.Is(err, ErrInvalidDocument))
		})
	}
}

func TestValidateChunk(t *testing.T) {
	valid := &Chunk{DocumentId: "doc", Index: 0, Text: "hello"}
	assert.NoError(t, ValidateChunk(valid))

	assert.ErrorIs(t, ValidateChunk(nil), ErrInvalidChunk)
	assert.ErrorIs(t, ValidateChunk(&Chunk{Index: 0, Text: "x"}), ErrInvalidChunk)
	assert.ErrorIs(t, ValidateChunk(&Chunk{DocumentId: "doc", Index: -1, Text: "x"}), ErrInvalidChunk)
	assert.ErrorIs(t, ValidateChunk(&Chunk{DocumentId: "doc", Text: "   "}), ErrEmptyContent)
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]DocumentStatus]bool{
		{DocumentStatusPending, DocumentStatusProcessing}:    true,
		{DocumentStatusProcessing, DocumentStatusCompleted}:  true,
		{DocumentStatusProcessing, DocumentStatusError}:      true,
		{DocumentStatusError, DocumentStatusProcessing}:      true,
		{DocumentStatusCompleted, DocumentStatusProcessing}:  true,
		{DocumentStatusProcessing, DocumentStatusProcessing}: false,
		{DocumentStatusPending, DocumentStatusCompleted}:     false,
		{DocumentStatusPending, DocumentStatusError}:         false,
		{DocumentStatusCompleted, DocumentStatusError}:       false,
		{DocumentStatusError, DocumentStatusCompleted}:       false,
	}

	for edge, want := range allowed {
		t.Run(fmt.Sprintf("%s->%s", edge[0], edge[1]), func(t *testing.T) {
			assert.Equal(t, want, CanTransition(edge[0], edge[1]))
			if want {
				assert.NoError(t, CheckTransition(edge[0], edge[1]))
			} else {
				assert.ErrorIs(t, CheckTransition(edge[0], edge[1]), ErrInvalidStateTransition)
			}
		})
	}
}
