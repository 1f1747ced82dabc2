package splitter_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velding/newsrag/internal/models"
	"github.com/velding/newsrag/pkg/splitter"
)

func TestSplitterConfigValidation(t *testing.T) {
	_, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 100, ChunkOverlap: 100})
	require.Error(t, err)
	var cfgErr *splitter.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 100, ChunkOverlap: 150})
	assert.Error(t, err)

	_, err = splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 100, ChunkOverlap: -1})
	assert.Error(t, err)

	_, err = splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 100, ChunkOverlap: 20})
	assert.NoError(t, err)
}

func TestSplitShortDocumentYieldsOneChunk(t *testing.T) {
	s, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	doc := models.Document{URL: "https://example.com/a", Content: "Stock X rose 5%."}
	chunks := s.Split(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, doc.Content, chunks[0].Text)
	assert.Equal(t, doc.URL, chunks[0].URL)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.NotEmpty(t, chunks[0].ID)
}

func TestSplitEmptyDocument(t *testing.T) {
	s, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)

	assert.Empty(t, s.Split(models.Document{URL: "https://example.com/empty"}))
}

func TestSplitChunkCountArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		size    int
		overlap int
		want    int
	}{
		{"exactly one chunk", 1000, 1000, 200, 1},
		{"one char over", 1001, 1000, 200, 2},
		{"several strides", 1800, 1000, 200, 2},
		{"many chunks", 5000, 1000, 200, 6}, // ceil((5000-200)/800)
		{"no overlap", 250, 100, 0, 3},
		{"tiny chunks", 10, 3, 1, 5}, // ceil((10-1)/2)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := splitter.NewWithConfig(splitter.SplitterConfig{
				ChunkSize:    tt.size,
				ChunkOverlap: tt.overlap,
			})
			require.NoError(t, err)

			chunks := s.Split(models.Document{Content: strings.Repeat("a", tt.length)})
			assert.Len(t, chunks, tt.want)
		})
	}
}

func TestSplitCoversTextWithoutGaps(t *testing.T) {
	s, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 50, ChunkOverlap: 10})
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 37) // 370 chars, not a multiple of the stride
	chunks := s.Split(models.Document{Content: text})
	require.NotEmpty(t, chunks)

	// Dropping each chunk's leading overlap and concatenating must
	// reconstruct the original text exactly.
	var rebuilt strings.Builder
	for i, chunk := range chunks {
		part := chunk.Text
		if i > 0 {
			part = part[10:]
		}
		rebuilt.WriteString(part)
	}
	assert.Equal(t, text, rebuilt.String())

	// Consecutive chunks share exactly the overlap.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		assert.Equal(t, prev[len(prev)-10:], chunks[i].Text[:10])
	}
}

func TestSplitOrdinalsAreSequential(t *testing.T) {
	s, err := splitter.NewWithConfig(splitter.SplitterConfig{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)

	chunks := s.Split(models.Document{Content: strings.Repeat("x", 100)})
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Ordinal)
	}
}
