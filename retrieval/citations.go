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
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/lore/core"
)

// markerPattern matches [1] and [1, 2, ...].
var markerPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// ResolveCitationMarkers splits text into alternating prose and marker
// segments. A marker segment carries the citations its numbers refer to, in
// the order written; numbers with no matching citation are skipped, so an
// unknown marker resolves to an empty, non-nil list. Prose segments have nil
// Citations.
func ResolveCitationMarkers(text string, citations []core.Citation) []core.Segment {
	byMarker := make(map[int]core.Citation, len(citations))
	for _, c := range citations {
		byMarker[c.Marker] = c
	}

	segments := []core.Segment{}
	pos := 0
	for _, loc := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > pos {
			segments = append(segments, core.Segment{Text: text[pos:loc[0]]})
		}

		resolved := []core.Citation{}
		seen := make(map[int]bool)
		for _, part := range strings.Split(text[loc[2]:loc[3]], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || seen[n] {
				continue
			}
			seen[n] = true
			if c, ok := byMarker[n]; ok {
				resolved = append(resolved, c)
			}
		}

		segments = append(segments, core.Segment{Text: text[loc[0]:loc[1]], Citations: resolved})
		pos = loc[1]
	}
	if pos < len(text) {
		segments = append(segments, core.Segment{Text: text[pos:]})
	}
	return segments
}
