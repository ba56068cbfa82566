package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n\n ", ""},
		{"collapses spaces", "a  \t b", "a b"},
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"many newlines", "a\n\n\n\n\nb", "a\n\nb"},
		{"spaces around newline", "a  \n  b", "a\nb"},
		{"form feed", "page one\fpage two", "page one\n\npage two"},
		{"trims", "  hello world  ", "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	inputs := []string{
		"hello",
		"  spaced   out\n\n\n\ntext  ",
		strings.Repeat("x", 100),
		"héllo wörld ünïcode",
	}
	for _, in := range inputs {
		normalized := Normalize(in)
		chunks := Chunk(in, 100, 20)
		require.Len(t, chunks, 1, "input %q", in)
		assert.Equal(t, normalized, chunks[0])
	}
}

func TestChunk_EmptyText(t *testing.T) {
	assert.Empty(t, Chunk("", 100, 10))
	assert.Empty(t, Chunk(" \n\t ", 100, 10))
}

func TestChunk_RespectsMaxSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
		if i%7 == 0 {
			b.WriteString("\n\n")
		}
	}
	chunks := Chunk(b.String(), 250, 50)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 250, "chunk %d", i)
		assert.NotEmpty(t, c)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
}

func TestChunk_PrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("word ", 16) + "end."
	second := strings.Repeat("more ", 30)
	chunks := Chunk(first+"\n\n"+second, 100, 0)
	require.NotEmpty(t, chunks)
	assert.Equal(t, Normalize(first), chunks[0])
}

func TestChunk_PrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("a", 85) + ". " + strings.Repeat("b", 60)
	chunks := Chunk(text, 100, 0)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("a", 85)+".", chunks[0])
}

func TestChunk_OverlapCarriesText(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)
	chunks := Chunk(text, 100, 20)
	require.Greater(t, len(chunks), 1)
	// no separators, so every boundary is the naive end
	assert.Equal(t, chunks[0][80:], chunks[1][:20])
}

func TestChunk_AdversarialOverlapTerminates(t *testing.T) {
	const n = 5000
	const maxSize = 100
	const overlap = maxSize - 1
	text := strings.Repeat("z", n)

	result := Split(text, maxSize, overlap)

	assert.False(t, result.Truncated)
	bound := 10*((n+(maxSize-overlap)-1)/(maxSize-overlap)) + 10
	assert.LessOrEqual(t, len(result.Spans), bound)
	require.NotEmpty(t, result.Spans)
	assert.Equal(t, n, result.Spans[len(result.Spans)-1].End)
	for i := 1; i < len(result.Spans); i++ {
		assert.Greater(t, result.Spans[i].Start, result.Spans[i-1].Start)
	}
}

func TestChunk_AdversarialSpacesTerminate(t *testing.T) {
	text := strings.Repeat("a ", 3000)
	result := Split(text, 50, 49)
	assert.False(t, result.Truncated)
	require.NotEmpty(t, result.Spans)
	assert.Equal(t, utf8.RuneCountInString(Normalize(text)), result.Spans[len(result.Spans)-1].End)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name                 string
		maxSize, overlap     int
		wantMax, wantOverlap int
	}{
		{"valid", 100, 20, 100, 20},
		{"zero max", 0, 20, DefaultMaxSize, 20},
		{"negative overlap", 100, -5, 100, 0},
		{"overlap equals max", 100, 100, 100, 20},
		{"overlap exceeds max", 100, 500, 100, 20},
		{"tiny max", 1, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, o := clamp(tt.maxSize, tt.overlap)
			assert.Equal(t, tt.wantMax, m)
			assert.Equal(t, tt.wantOverlap, o)
			assert.Less(t, o, m)
		})
	}
}

func TestSplit_SpansMatchNormalizedText(t *testing.T) {
	text := strings.Repeat("Sentence number one is here. ", 40)
	normalized := []rune(Normalize(text))
	result := Split(text, 120, 30)
	for _, s := range result.Spans {
		assert.Equal(t, string(normalized[s.Start:s.End]), s.Text)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Repeat("Determinism matters. ", 100)
	assert.Equal(t, Chunk(text, 200, 40), Chunk(text, 200, 40))
}
