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

// Package extract turns source documents into raw text.
//
// A Registry dispatches on the document's SourceKind: files are read from
// disk and parsed by extension, web pages are fetched over HTTP.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/lore/core"
)

// DefaultMaxBytes caps how much of a single source is read.
const DefaultMaxBytes = 64 << 20

// Extraction is the raw text of a document.
type Extraction struct {
	Text string

	// Pages holds per-page text for paged formats (PDF). Text is the pages
	// joined with form feeds when Pages is set.
	Pages []string

	// Title is the document title when the format carries one.
	Title string
}

// Extractor produces the raw text of a document.
type Extractor interface {
	Extract(ctx context.Context, doc *core.Document) (*Extraction, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, doc *core.Document) (*Extraction, error)

func (f ExtractorFunc) Extract(ctx context.Context, doc *core.Document) (*Extraction, error) {
	return f(ctx, doc)
}

// Parser converts raw bytes of one file format into an Extraction.
type Parser interface {
	Parse(data []byte, name string) (*Extraction, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(data []byte, name string) (*Extraction, error)

func (f ParserFunc) Parse(data []byte, name string) (*Extraction, error) {
	return f(data, name)
}

// Registry is an Extractor dispatching files by extension and web pages to
// a Fetcher.
type Registry struct {
	parsers  map[string]Parser
	fallback Parser
	fetcher  *Fetcher
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithParser registers parser for the given extensions (".md", ".txt", ...).
func WithParser(parser Parser, extensions ...string) Option {
	return func(r *Registry) {
		for _, ext := range extensions {
			r.parsers[normalizeExt(ext)] = parser
		}
	}
}

// WithFallback sets the parser used for unknown extensions. Without one,
// unknown extensions fail with ErrUnsupportedFormat.
func WithFallback(parser Parser) Option {
	return func(r *Registry) {
		r.fallback = parser
	}
}

// WithFetcher sets the fetcher used for web pages.
func WithFetcher(fetcher *Fetcher) Option {
	return func(r *Registry) {
		r.fetcher = fetcher
	}
}

// WithMaxBytes caps how many bytes of a file are read.
func WithMaxBytes(n int64) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns a Registry that understands plain text, Markdown,
// HTML, PDF and DOCX files and fetches web pages with a default Fetcher.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		parsers:  make(map[string]Parser),
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	WithParser(ParserFunc(ParseText), ".txt", ".text", ".log", ".csv")(r)
	WithParser(ParserFunc(ParseMarkdown), ".md", ".markdown")(r)
	WithParser(ParserFunc(ParseHTML), ".html", ".htm")(r)
	WithParser(ParserFunc(ParsePDF), ".pdf")(r)
	WithParser(ParserFunc(ParseDOCX), ".docx")(r)

	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = NewFetcher(WithFetchMaxBytes(r.maxBytes))
	}
	r.logger = r.logger.With("component", "extract")
	return r
}

// Supports reports whether name has a registered extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.parsers[normalizeExt(filepath.Ext(name))]
	return ok || r.fallback != nil
}

// Extract implements Extractor.
func (r *Registry) Extract(ctx context.Context, doc *core.Document) (*Extraction, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", core.ErrInvalidDocument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch doc.SourceKind {
	case core.SourceKindWebpage:
		return r.fetcher.Fetch(ctx, doc.StorageRef)
	case core.SourceKindFile:
		return r.extractFile(ctx, doc.StorageRef)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidSourceKind, doc.SourceKind)
	}
}

func (r *Registry) extractFile(ctx context.Context, path string) (*Extraction, error) {
	parser, err := r.parserFor(path)
	if err != nil {
		return nil, err
	}

	data, err := readFile(path, r.maxBytes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("parsing file", "path", path, "bytes", len(data))
	ex, err := parser.Parse(data, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return ex, nil
}

func (r *Registry) parserFor(path string) (Parser, error) {
	ext := normalizeExt(filepath.Ext(path))
	if p, ok := r.parsers[ext]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func readFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// fromPages builds an Extraction whose Text joins pages with form feeds.
func fromPages(pages []string, title string) *Extraction {
	var buf bytes.Buffer
	for i, p := range pages {
		if i > 0 {
			buf.WriteByte('\f')
		}
		buf.WriteString(p)
	}
	return &Extraction{Text: buf.String(), Pages: pages, Title: title}
}
