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

package retrieval

import (
	"fmt"
	"strings"

	"github.com/poiesic/lore/core"
)

const noResultsBase = "I could not find anything in this collection that answers your question."

func answerPrompt(query string, citations []core.Citation) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the numbered sources below.\n")
	b.WriteString("Cite every claim with the marker of the source it comes from, like [1] or [1, 2].\n")
	b.WriteString("If the sources do not contain the answer, say that they do not.\n\n")
	b.WriteString("Sources:\n")
	for _, c := range citations {
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n%s\n\n", c.Marker, sourceLabel(c), c.Score, c.Snippet)
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer:", query)
	return b.String()
}

// noResultsPrompt asks for a reply admitting the gap. excerpts are the
// closest passages found, none of them relevant enough to cite.
func noResultsPrompt(query string, hints []string, excerpts []core.VectorMatch) string {
	var b strings.Builder
	b.WriteString("The knowledge base has no passage that answers the question below.\n")
	b.WriteString("Tell the user briefly that the answer is not in the available documents. Do not guess an answer.\n")
	if len(excerpts) > 0 {
		b.WriteString("These are the closest passages found. They do not answer the question; use them only to see what the documents do cover:\n")
		for _, m := range excerpts {
			fmt.Fprintf(&b, "- %s: %s\n", matchLabel(m), m.Metadata.Snippet)
		}
	}
	if len(hints) > 0 {
		fmt.Fprintf(&b, "Suggest that they ask about one of these related topics instead: %s.\n", strings.Join(hints, ", "))
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nResponse:", query)
	return b.String()
}

func matchLabel(m core.VectorMatch) string {
	return sourceLabel(core.Citation{
		DocumentId: m.Metadata.DocumentId,
		SourceName: m.Metadata.SourceName,
		Page:       m.Metadata.Page,
	})
}

func noResultsMessage(hints []string) string {
	if len(hints) == 0 {
		return noResultsBase + " Try rephrasing it or adding documents that cover the topic."
	}
	return fmt.Sprintf("%s Related topics in this collection include: %s.", noResultsBase, strings.Join(hints, ", "))
}

// excerptAnswer stands in for a generated answer when the generator fails.
func excerptAnswer(citations []core.Citation) string {
	var b strings.Builder
	b.WriteString("I could not compose an answer, but these excerpts match your question:\n")
	for _, c := range citations {
		fmt.Fprintf(&b, "\n[%d] %s: %s", c.Marker, sourceLabel(c), c.Snippet)
	}
	return b.String()
}

func sourceLabel(c core.Citation) string {
	name := c.SourceName
	if name == "" {
		name = string(c.DocumentId)
	}
	if c.Page > 0 {
		return fmt.Sprintf("%s, page %d", name, c.Page)
	}
	return name
}
