package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policychat-backend/models"
)

func TestSplit(t *testing.T) {
	t.Run("Should keep short text as a single chunk", func(t *testing.T) {
		s := NewRecursiveCharacter(100, 10)
		chunks := s.Split("a short paragraph")
		require.Len(t, chunks, 1)
		assert.Equal(t, "a short paragraph", chunks[0])
	})

	t.Run("Should respect the chunk size cap", func(t *testing.T) {
		s := NewRecursiveCharacter(50, 10)
		var b strings.Builder
		for i := 0; i < 40; i++ {
			b.WriteString("word word word. ")
		}
		chunks := s.Split(b.String())
		require.NotEmpty(t, chunks)
		for _, ch := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(ch), 50)
		}
	})

	t.Run("Should prefer paragraph boundaries", func(t *testing.T) {
		s := NewRecursiveCharacter(30, 0)
		chunks := s.Split("first paragraph\n\nsecond paragraph")
		require.Len(t, chunks, 2)
		assert.Equal(t, "first paragraph", chunks[0])
		assert.Equal(t, "second paragraph", chunks[1])
	})

	t.Run("Should split text without separators by size", func(t *testing.T) {
		s := NewRecursiveCharacter(10, 0)
		chunks := s.Split(strings.Repeat("x", 35))
		require.NotEmpty(t, chunks)
		for _, ch := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(ch), 10)
		}
		assert.Equal(t, 35, utf8.RuneCountInString(strings.Join(chunks, "")))
	})
}

func TestSplitDocuments(t *testing.T) {
	t.Run("Should carry source metadata onto chunks", func(t *testing.T) {
		s := NewRecursiveCharacter(20, 0)
		docs := []models.Document{
			{Text: "first paragraph\n\nsecond paragraph", Metadata: map[string]any{"source": "a.txt"}},
		}
		chunks := s.SplitDocuments(docs)
		require.Len(t, chunks, 2)
		for i, ch := range chunks {
			assert.Equal(t, "a.txt", ch.Metadata["source"])
			assert.Equal(t, i, ch.Metadata["chunk"])
		}
	})
}

func TestFilterComplexMetadata(t *testing.T) {
	t.Run("Should drop non-scalar metadata values", func(t *testing.T) {
		chunks := []models.Chunk{
			{
				Text: "text",
				Metadata: map[string]any{
					"source": "a.pdf",
					"page":   3,
					"score":  0.5,
					"nested": map[string]any{"x": 1},
					"tags":   []string{"a", "b"},
				},
			},
		}
		filtered := models.FilterComplexMetadata(chunks)
		require.Len(t, filtered, 1)
		assert.Equal(t, "text", filtered[0].Text)
		assert.Equal(t, map[string]any{"source": "a.pdf", "page": 3, "score": 0.5}, filtered[0].Metadata)
	})
}
