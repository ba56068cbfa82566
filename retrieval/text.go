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
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Stop words to filter out when picking topic hints
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "were": true, "been": true, "has": true,
	"had": true, "its": true, "their": true, "they": true, "there": true,
	"which": true, "what": true, "when": true, "where": true, "who": true,
	"will": true, "would": true, "can": true, "could": true, "should": true,
	"may": true, "also": true, "into": true, "than": true, "then": true,
	"these": true, "those": true, "such": true, "other": true, "more": true,
	"most": true, "some": true, "any": true, "all": true, "each": true,
	"our": true, "your": true, "we": true, "he": true, "she": true, "his": true,
	"her": true, "them": true, "about": true, "how": true, "if": true,
	"only": true, "over": true, "out": true, "up": true, "so": true, "no": true,
}

// minKeywordRunes drops short fragments such as "ok" or "id" from hints.
const minKeywordRunes = 3

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))

		if utf8.RuneCountInString(cleaned) < minKeywordRunes || stopWords[cleaned] || isNumber(cleaned) {
			continue
		}
		filtered = append(filtered, cleaned)
	}

	return filtered
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// topKeywords returns up to n words ranked by frequency across texts. Ties
// keep first-seen order so the result is deterministic.
func topKeywords(texts []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, text := range texts {
		for _, word := range tokenizeAndFilter(text) {
			if counts[word] == 0 {
				order = append(order, word)
			}
			counts[word]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}
