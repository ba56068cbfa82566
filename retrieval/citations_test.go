package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/core"
)

func TestResolveCitationMarkers(t *testing.T) {
	c1 := core.Citation{Marker: 1, DocumentId: "paris", SourceName: "paris.txt"}
	c2 := core.Citation{Marker: 2, DocumentId: "tower", SourceName: "tower.txt"}
	text := "Paris is the capital [1]. It has the Eiffel Tower [1,2]."

	segments := ResolveCitationMarkers(text, []core.Citation{c1, c2})

	require.Len(t, segments, 5)
	assert.Equal(t, core.Segment{Text: "Paris is the capital "}, segments[0])
	assert.Equal(t, core.Segment{Text: "[1]", Citations: []core.Citation{c1}}, segments[1])
	assert.Equal(t, core.Segment{Text: ". It has the Eiffel Tower "}, segments[2])
	assert.Equal(t, core.Segment{Text: "[1,2]", Citations: []core.Citation{c1, c2}}, segments[3])
	assert.Equal(t, core.Segment{Text: "."}, segments[4])

	var rebuilt string
	for _, s := range segments {
		rebuilt += s.Text
	}
	assert.Equal(t, text, rebuilt)
}

func TestResolveCitationMarkers_UnknownMarker(t *testing.T) {
	c1 := core.Citation{Marker: 1}
	c2 := core.Citation{Marker: 2}

	segments := ResolveCitationMarkers("See [3].", []core.Citation{c1, c2})

	require.Len(t, segments, 3)
	assert.Equal(t, "[3]", segments[1].Text)
	assert.NotNil(t, segments[1].Citations)
	assert.Empty(t, segments[1].Citations)
}

func TestResolveCitationMarkers_Variants(t *testing.T) {
	c1 := core.Citation{Marker: 1}
	c2 := core.Citation{Marker: 2}
	citations := []core.Citation{c1, c2}

	tests := []struct {
		name string
		text string
		want []core.Segment
	}{
		{
			name: "no markers",
			text: "plain prose",
			want: []core.Segment{{Text: "plain prose"}},
		},
		{
			name: "empty",
			text: "",
			want: []core.Segment{},
		},
		{
			name: "marker only",
			text: "[2]",
			want: []core.Segment{{Text: "[2]", Citations: []core.Citation{c2}}},
		},
		{
			name: "spaces and repeats",
			text: "x [2, 1 ,2]",
			want: []core.Segment{
				{Text: "x "},
				{Text: "[2, 1 ,2]", Citations: []core.Citation{c2, c1}},
			},
		},
		{
			name: "partly unknown",
			text: "[1, 9]",
			want: []core.Segment{{Text: "[1, 9]", Citations: []core.Citation{c1}}},
		},
		{
			name: "not a marker",
			text: "array[i] and [a, b] and [ 1 ]",
			want: []core.Segment{{Text: "array[i] and [a, b] and [ 1 ]"}},
		},
		{
			name: "adjacent",
			text: "[1][2]",
			want: []core.Segment{
				{Text: "[1]", Citations: []core.Citation{c1}},
				{Text: "[2]", Citations: []core.Citation{c2}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveCitationMarkers(tt.text, citations))
		})
	}
}
