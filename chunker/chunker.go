// Package chunker splits normalised document text into overlapping,
// bounded segments. Sizes and offsets are measured in runes.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxSize is used when a non-positive max size is requested.
	DefaultMaxSize = 1000

	// DefaultOverlap is the overlap used by callers that do not configure one.
	DefaultOverlap = 200
)

// Boundary search windows, as fractions of maxSize measured back from the
// naive chunk end.
const (
	paragraphWindow = 0.30
	sentenceWindow  = 0.20
	wordWindow      = 0.10
)

var (
	crlf       = regexp.MustCompile(`\r\n?`)
	hspace     = regexp.MustCompile(`[^\S\n]+`)
	lineEdges  = regexp.MustCompile(` ?\n ?`)
	manyBreaks = regexp.MustCompile(`\n{3,}`)
)

// Span is one chunk and its rune offsets in the normalised text.
type Span struct {
	Text  string
	Start int
	End   int
}

// Result is the output of Split.
type Result struct {
	Spans []Span

	// Truncated is set when the iteration circuit breaker fired and Spans
	// holds only what was collected before it did.
	Truncated bool
}

// Texts returns the chunk texts in order.
func (r Result) Texts() []string {
	texts := make([]string, len(r.Spans))
	for i, s := range r.Spans {
		texts[i] = s.Text
	}
	return texts
}

// Normalize collapses horizontal whitespace runs into one space and runs of
// three or more newlines into a single paragraph break. Form feeds (PDF page
// separators) become paragraph breaks.
func Normalize(text string) string {
	text = crlf.ReplaceAllString(text, "\n")
	text = strings.ReplaceAll(text, "\f", "\n\n")
	text = hspace.ReplaceAllString(text, " ")
	text = lineEdges.ReplaceAllString(text, "\n")
	text = manyBreaks.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk normalises text and splits it into chunks of at most maxSize runes
// that overlap by roughly overlap runes.
func Chunk(text string, maxSize, overlap int) []string {
	return Split(text, maxSize, overlap).Texts()
}

// Split is Chunk returning rune offsets into Normalize(text).
func Split(text string, maxSize, overlap int) Result {
	maxSize, overlap = clamp(maxSize, overlap)
	return splitNormalized([]rune(Normalize(text)), maxSize, overlap)
}

// clamp fixes invalid sizes so the window always moves forward.
func clamp(maxSize, overlap int) (int, int) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 5
	}
	return maxSize, overlap
}

func splitNormalized(runes []rune, maxSize, overlap int) Result {
	n := len(runes)
	if n == 0 {
		return Result{}
	}
	if n <= maxSize {
		return Result{Spans: []Span{{Text: string(runes), Start: 0, End: n}}}
	}

	step := maxSize - overlap
	maxIterations := 10*((n+step-1)/step) + 10

	var result Result
	start := 0
	for iterations := 0; start < n; iterations++ {
		if iterations >= maxIterations {
			result.Truncated = true
			break
		}

		end := start + maxSize
		if end >= n {
			end = n
		} else {
			end = findBoundary(runes, start, end, maxSize)
		}

		if text, s, e := trimmed(runes, start, end); text != "" {
			result.Spans = append(result.Spans, Span{Text: text, Start: s, End: e})
		}

		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return result
}

// findBoundary looks back from end for a paragraph, sentence or word break
// and returns the adjusted chunk end, or end when none is found.
func findBoundary(runes []rune, start, end, maxSize int) int {
	if i := lastIndex(runes, start, end, window(end, maxSize, paragraphWindow, start), "\n\n"); i >= 0 {
		return i
	}
	if i := lastIndex(runes, start, end, window(end, maxSize, sentenceWindow, start), ". "); i >= 0 {
		return i + 1 // keep the period
	}
	if i := lastIndex(runes, start, end, window(end, maxSize, wordWindow, start), " "); i >= 0 {
		return i
	}
	return end
}

func window(end, maxSize int, fraction float64, start int) int {
	from := end - int(float64(maxSize)*fraction)
	if from < start {
		from = start
	}
	return from
}

// lastIndex finds the last occurrence of sep fully inside runes[from:end]
// whose position is past start. Returns -1 when absent.
func lastIndex(runes []rune, start, end, from int, sep string) int {
	pattern := []rune(sep)
	for i := end - len(pattern); i >= from; i-- {
		if i <= start {
			break
		}
		match := true
		for j, r := range pattern {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// trimmed returns runes[start:end] without surrounding whitespace, and the
// offsets of what is left.
func trimmed(runes []rune, start, end int) (string, int, int) {
	for start < end && isSpace(runes[start]) {
		start++
	}
	for end > start && isSpace(runes[end-1]) {
		end--
	}
	return string(runes[start:end]), start, end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n'
}
