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
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Elements that never carry readable content.
const boilerplate = "script, style, noscript, template, iframe, svg, nav, footer, header, aside, form"

// Main content candidates, most specific first.
var contentSelectors = []string{"main", "article", "[role='main']", "#content", "body"}

var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "figcaption": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "li": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// ParseHTML extracts the readable text of an HTML page, one paragraph per
// block element. Navigation, scripts and styles are dropped.
func ParseHTML(data []byte, _ string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return fromHTML(doc), nil
}

func fromHTML(doc *goquery.Document) *Extraction {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(boilerplate).Remove()

	var root *goquery.Selection
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			root = sel
			break
		}
	}
	if root == nil {
		return &Extraction{Title: title}
	}

	if title == "" {
		title = strings.TrimSpace(root.Find("h1").First().Text())
	}
	return &Extraction{Text: blockText(root.Nodes), Title: title}
}

// blockText renders nodes as text, separating block elements with blank
// lines. Whitespace inside text runs collapses except under <pre>.
func blockText(nodes []*html.Node) string {
	var buf strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				buf.WriteString(n.Data)
			} else {
				buf.WriteString(collapseSpace(n.Data))
			}
			return
		case html.ElementNode:
			if n.Data == "br" {
				buf.WriteByte('\n')
				return
			}
			pre = pre || n.Data == "pre"
		}

		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			buf.WriteString("\n\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}
		if block {
			buf.WriteString("\n\n")
		}
	}
	for _, n := range nodes {
		walk(n, false)
	}
	return tidy(buf.String())
}

func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if isHTMLSpace(s[0]) {
		out = " " + out
	}
	if isHTMLSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isHTMLSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
