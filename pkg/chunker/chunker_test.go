package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/reanchor/pkg/chunker"
)

func TestChunk_OffsetsAreOrderedAndVerbatim(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Paragraph %d has a few sentences. They stretch the body out. More text follows here.\n\n", i)
	}
	body := b.String()

	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 200})
	require.NoError(t, err)

	docID, gen := uuid.New(), uuid.New()
	chunks, err := c.Chunk(docID, gen, body)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	prevEnd := 0
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, docID, ch.DocumentID)
		assert.Equal(t, gen, ch.Generation)
		assert.GreaterOrEqual(t, ch.StartOffset, prevEnd, "chunk ranges must not overlap")
		assert.Less(t, ch.StartOffset, ch.EndOffset)
		assert.Equal(t, body[ch.StartOffset:ch.EndOffset], ch.Content)
		assert.Positive(t, ch.TokenCount)
		prevEnd = ch.EndOffset
	}
}

func TestChunk_EmptyBody(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{})
	require.NoError(t, err)

	chunks, err := c.Chunk(uuid.New(), uuid.New(), "   \n ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_RepeatedTextKeepsDistinctOffsets(t *testing.T) {
	line := "the same sentence appears again and again in this body. "
	body := strings.Repeat(line+"\n\n", 12)

	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 60})
	require.NoError(t, err)

	chunks, err := c.Chunk(uuid.New(), uuid.New(), body)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	seen := map[int]bool{}
	for _, ch := range chunks {
		assert.False(t, seen[ch.StartOffset], "offsets must be unique even for identical text")
		seen[ch.StartOffset] = true
		assert.Equal(t, body[ch.StartOffset:ch.EndOffset], ch.Content)
	}
}
