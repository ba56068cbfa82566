package mock

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicVector(t *testing.T) {
	a := DeterministicVector("hello", 64)
	b := DeterministicVector("hello", 64)
	c := DeterministicVector("world", 64)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedder_ConcurrentCalls(t *testing.T) {
	m := NewMockEmbedder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, m.CallCount())
	assert.Equal(t, 40, m.TextCount())
}

func TestMockEmbedder_Dimensions(t *testing.T) {
	m := NewMockEmbedder()
	m.Dimensions = 8
	v, err := m.EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator()
	out, err := g.Generate(context.Background(), "prompt one")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	g.WithGenerateFunc(func(ctx context.Context, prompt string) (string, error) {
		return "custom: " + prompt, nil
	})
	out, err = g.Generate(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, "custom: two", out)
	assert.Equal(t, []string{"prompt one", "two"}, g.Prompts())

	g.Reset()
	assert.Equal(t, 0, g.CallCount())
}
