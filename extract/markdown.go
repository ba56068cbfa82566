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

package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// ParseMarkdown strips Markdown syntax, keeping one paragraph per top-level
// block. The first level-one heading becomes the title.
func ParseMarkdown(data []byte, _ string) (*Extraction, error) {
	src := []byte(strings.TrimPrefix(string(data), bom))
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		blocks []string
		title  string
	)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		var buf strings.Builder
		writeMarkdown(&buf, n, src)
		t := tidy(buf.String())
		if t == "" {
			continue
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && title == "" {
			title = t
		}
		blocks = append(blocks, t)
	}

	return &Extraction{Text: strings.Join(blocks, "\n\n"), Title: title}, nil
}

func writeMarkdown(buf *strings.Builder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Text:
		buf.Write(node.Value(src))
		if node.SoftLineBreak() || node.HardLineBreak() {
			buf.WriteByte('\n')
		}
		return
	case *ast.String:
		buf.Write(node.Value)
		return
	case *ast.AutoLink:
		buf.Write(node.URL(src))
		return
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return
	case *ast.HTMLBlock, *ast.RawHTML:
		return
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writeMarkdown(buf, c, src)
		if c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
	}
}
