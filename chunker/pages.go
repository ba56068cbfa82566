package chunker

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// tokensPerWord approximates subword tokenisation for English prose.
const tokensPerWord = 1.33

// EstimateTokens returns a rough token count for text.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// NormalizePages normalises each page on its own and joins the non-empty ones
// with paragraph breaks. offsets[i] is the rune offset where page i+1 starts
// in the joined text; empty pages share the offset of the next page.
func NormalizePages(pages []string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, len(pages))
	pos := 0
	for i, page := range pages {
		text := Normalize(page)
		if text != "" && pos > 0 {
			b.WriteString("\n\n")
			pos += 2
		}
		offsets[i] = pos
		b.WriteString(text)
		pos += utf8.RuneCountInString(text)
	}
	return b.String(), offsets
}

// PageAt maps a rune offset to a 1-based page number using offsets from
// NormalizePages. Returns 0 when offsets is empty.
func PageAt(offsets []int, pos int) int {
	if len(offsets) == 0 {
		return 0
	}
	// last page whose start is <= pos
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > pos })
	if i == 0 {
		return 1
	}
	return i
}
