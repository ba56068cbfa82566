package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "short content", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			assert.Equal(t, id1, id2)
			assert.Len(t, string(id1), 32)
		})
	}
}

func TestIDFromContent_DifferentContent(t *testing.T) {
	assert.NotEqual(t, IDFromContent("a"), IDFromContent("b"))
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, ChunkID("doc-1", 0), ChunkID("doc-1", 0))
	assert.NotEqual(t, ChunkID("doc-1", 0), ChunkID("doc-1", 1))
	assert.NotEqual(t, ChunkID("doc-1", 0), ChunkID("doc-2", 0))
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestSourceKindOf(t *testing.T) {
	assert.Equal(t, SourceKindWebpage, SourceKindOf("https://example.com/a"))
	assert.Equal(t, SourceKindWebpage, SourceKindOf("  HTTP://example.com"))
	assert.Equal(t, SourceKindFile, SourceKindOf("/docs/guide.pdf"))
	assert.Equal(t, SourceKindFile, SourceKindOf("ftp://example.com/file"))
}
