package extract

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fileDoc(path string) *core.Document {
	return &core.Document{
		Id:           "doc-1",
		CollectionId: "c1",
		Name:         filepath.Base(path),
		SourceKind:   core.SourceKindFile,
		StorageRef:   path,
	}
}

func TestRegistry_TextFile(t *testing.T) {
	path := writeFile(t, "notes.txt", "\uFEFFhello\n\nworld")
	ex, err := NewRegistry().Extract(context.Background(), fileDoc(path))

	require.NoError(t, err)
	assert.Equal(t, "hello\n\nworld", ex.Text)
	assert.Empty(t, ex.Pages)
}

func TestRegistry_DispatchesByExtension(t *testing.T) {
	path := writeFile(t, "README.MD", "# Title\n\nBody *text*.")
	ex, err := NewRegistry().Extract(context.Background(), fileDoc(path))

	require.NoError(t, err)
	assert.Equal(t, "Title", ex.Title)
	assert.Equal(t, "Title\n\nBody text.", ex.Text)
}

func TestRegistry_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "image.png", "not really")
	_, err := NewRegistry().Extract(context.Background(), fileDoc(path))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	r := NewRegistry(WithFallback(ParserFunc(ParseText)))
	ex, err := r.Extract(context.Background(), fileDoc(path))
	require.NoError(t, err)
	assert.Equal(t, "not really", ex.Text)
}

func TestRegistry_CustomParser(t *testing.T) {
	path := writeFile(t, "data.rst", "ignored")
	custom := ParserFunc(func(data []byte, name string) (*Extraction, error) {
		return &Extraction{Text: "custom " + name}, nil
	})

	r := NewRegistry(WithParser(custom, "rst"))
	assert.True(t, r.Supports("x.RST"))

	ex, err := r.Extract(context.Background(), fileDoc(path))
	require.NoError(t, err)
	assert.Equal(t, "custom data.rst", ex.Text)
}

func TestRegistry_TooLarge(t *testing.T) {
	path := writeFile(t, "big.txt", "0123456789")
	_, err := NewRegistry(WithMaxBytes(5)).Extract(context.Background(), fileDoc(path))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRegistry_MissingFile(t *testing.T) {
	doc := fileDoc(filepath.Join(t.TempDir(), "gone.txt"))
	_, err := NewRegistry().Extract(context.Background(), doc)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRegistry_InvalidSourceKind(t *testing.T) {
	doc := fileDoc("x.txt")
	doc.SourceKind = "ftp"
	_, err := NewRegistry().Extract(context.Background(), doc)
	assert.ErrorIs(t, err, core.ErrInvalidSourceKind)
}

func TestRegistry_CancelledContext(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRegistry().Extract(ctx, fileDoc(path))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMarkdown_StripsSyntax(t *testing.T) {
	src := "# Guide\n\nSome *emphasis* and `code`.\n\n- one\n- two\n\n```\nx := 1\n```\n\n<div>raw</div>\n"
	ex, err := ParseMarkdown([]byte(src), "guide.md")
	require.NoError(t, err)

	assert.Equal(t, "Guide", ex.Title)
	assert.Contains(t, ex.Text, "Some emphasis and code.")
	assert.Contains(t, ex.Text, "one")
	assert.Contains(t, ex.Text, "two")
	assert.Contains(t, ex.Text, "x := 1")
	assert.NotContains(t, ex.Text, "*")
	assert.NotContains(t, ex.Text, "`")
	assert.NotContains(t, ex.Text, "raw")
}

func TestParseHTML_ReadableText(t *testing.T) {
	page := `<html><head><title>Doc Title</title><style>.x{}</style></head>
<body><nav>Menu</nav><main><h1>Heading</h1><p>First   paragraph
 spans.</p><script>alert(1)</script><ul><li>one</li><li>two</li></ul>line<br>break</main>
<footer>foot</footer></body></html>`

	ex, err := ParseHTML([]byte(page), "page.html")
	require.NoError(t, err)

	assert.Equal(t, "Doc Title", ex.Title)
	assert.Equal(t, "Heading\n\nFirst paragraph spans.\n\none\n\ntwo\n\nline\nbreak", ex.Text)
}

func TestParseHTML_TitleFromHeading(t *testing.T) {
	ex, err := ParseHTML([]byte(`<body><h1>Only Heading</h1><p>text</p></body>`), "x.html")
	require.NoError(t, err)
	assert.Equal(t, "Only Heading", ex.Title)
}

func TestParseHTML_PreKeepsWhitespace(t *testing.T) {
	ex, err := ParseHTML([]byte("<body><pre>a\n  b</pre></body>"), "x.html")
	require.NoError(t, err)
	assert.Equal(t, "a\nb", ex.Text)
}

func TestParsePDF_Malformed(t *testing.T) {
	_, err := ParsePDF([]byte("%PDF-1.4 definitely not a pdf"), "bad.pdf")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseDOCX(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("First paragraph.")
	w.AddParagraph().AddText("Second paragraph.")

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	ex, err := ParseDOCX(buf.Bytes(), "doc.docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", ex.Text)
}

func TestParseDOCX_Malformed(t *testing.T) {
	_, err := ParseDOCX([]byte("PK not a zip"), "bad.docx")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFromPages(t *testing.T) {
	ex := fromPages([]string{"one", "", "three"}, "t")
	assert.Equal(t, "one\f\fthree", ex.Text)
	assert.Len(t, ex.Pages, 3)
}

func TestTidy(t *testing.T) {
	assert.Equal(t, "a\n\nb\nc", tidy("  \n a \n\n\n\n b\nc  \n\n"))
	assert.Equal(t, "", tidy(" \n \n"))
}
