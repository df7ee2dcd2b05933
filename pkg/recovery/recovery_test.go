package recovery_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/reanchor/internal/models"
	"github.com/xhad/reanchor/pkg/recovery"
)

func buildChunks(body string, width int) []models.Chunk {
	var chunks []models.Chunk
	for start := 0; start < len(body); start += width {
		end := start + width
		if end > len(body) {
			end = len(body)
		}
		chunks = append(chunks, models.Chunk{
			ID:          uuid.New(),
			Index:       len(chunks),
			StartOffset: start,
			EndOffset:   end,
			Content:     body[start:end],
		})
	}
	return chunks
}

func annotation(body, text string) *models.Annotation {
	start := strings.Index(body, text)
	if start < 0 {
		panic("annotation text not in body")
	}
	return &models.Annotation{
		ID:                 uuid.New(),
		Text:               text,
		StartOffset:        start,
		EndOffset:          start + len(text),
		OriginalChunkIndex: -1,
	}
}

func TestRecover_IdenticalBodyIsExact(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "sentence number %02d talks about a subject of its own accord. ", i)
	}
	body := b.String()

	anns := []*models.Annotation{
		annotation(body, "sentence number 03 talks about"),
		annotation(body, "subject of its own accord. sentence number 11"),
	}
	wantOffsets := [][2]int{
		{anns[0].StartOffset, anns[0].EndOffset},
		{anns[1].StartOffset, anns[1].EndOffset},
	}

	o := recovery.NewWithConfig(recovery.Config{}, nil, nil)
	results, err := o.Recover(context.Background(), uuid.New(), anns, body, buildChunks(body, 120))

	require.NoError(t, err)
	require.Len(t, results.Success, 2)
	assert.Empty(t, results.NeedsReview)
	assert.Empty(t, results.Lost)
	for i, ann := range anns {
		assert.Equal(t, models.MethodExact, ann.RecoveryMethod)
		assert.Equal(t, 1.0, ann.RecoveryConfidence)
		assert.Equal(t, wantOffsets[i][0], ann.StartOffset)
		assert.Equal(t, wantOffsets[i][1], ann.EndOffset)
		assert.False(t, ann.NeedsReview)
	}
	assert.Equal(t, 1.0, results.Rate())
}

func TestRecover_ClassificationBands(t *testing.T) {
	body := strings.Repeat("completely unrelated filler prose without any anchors at all. ", 30)

	gone := &models.Annotation{
		ID:                 uuid.New(),
		Text:               "the quick brown fox jumps over the lazy dog",
		StartOffset:        10,
		EndOffset:          53,
		OriginalChunkIndex: -1,
	}

	o := recovery.NewWithConfig(recovery.Config{}, nil, nil)
	results, err := o.Recover(context.Background(), uuid.New(), []*models.Annotation{gone}, body, buildChunks(body, 100))

	require.NoError(t, err)
	require.Len(t, results.Lost, 1)
	assert.Less(t, gone.RecoveryConfidence, 0.5)
	assert.False(t, gone.NeedsReview)
	// Offsets were left untouched for manual re-anchoring.
	assert.Equal(t, 10, gone.StartOffset)
	assert.Equal(t, 53, gone.EndOffset)
	assert.Empty(t, gone.ChunkIDs)

	// Monotonic thresholds: nothing in success below 0.85, nothing in review
	// outside [0.5, 0.85).
	for _, a := range results.Success {
		assert.GreaterOrEqual(t, a.RecoveryConfidence, 0.85)
	}
	for _, a := range results.NeedsReview {
		assert.GreaterOrEqual(t, a.RecoveryConfidence, 0.5)
		assert.Less(t, a.RecoveryConfidence, 0.85)
		assert.True(t, a.NeedsReview)
	}
}

func TestRecover_ReviewBandSetsNeedsReview(t *testing.T) {
	before := "Earlier in the chapter the author explains that "
	needle := "the quick brown fox jumps over the lazy dog near the river bank"
	after := " and the narrative continues with a description of the valley."
	reworded := "the small brown fox leaps over the lazy dog near the river edge"

	body := strings.Repeat("x", 200) + before + reworded + after + strings.Repeat("y", 200)

	ann := &models.Annotation{
		ID:                 uuid.New(),
		Text:               needle,
		StartOffset:        0,
		EndOffset:          len(needle),
		Context:            &models.AnnotationContext{Before: before, After: after},
		OriginalChunkIndex: -1,
	}

	o := recovery.NewWithConfig(recovery.Config{}, nil, nil)
	results, err := o.Recover(context.Background(), uuid.New(), []*models.Annotation{ann}, body, buildChunks(body, 120))

	require.NoError(t, err)
	require.NotEqual(t, models.MethodLost, ann.RecoveryMethod)
	assert.GreaterOrEqual(t, ann.RecoveryConfidence, 0.5)
	assert.Less(t, ann.RecoveryConfidence, 1.0)
	assert.Equal(t, ann.RecoveryConfidence < 0.85, ann.NeedsReview)
	if ann.NeedsReview {
		assert.Len(t, results.NeedsReview, 1)
	} else {
		assert.Len(t, results.Success, 1)
	}
	// Tentative offsets point at the reworded sentence either way.
	assert.InDelta(t, 200+len(before), ann.StartOffset, 2)
}

func TestRecover_SpanningAnnotationGetsAllChunkIDs(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "paragraph %d carries its own self sufficient text right here padded out to width. ", i)
	}
	body := b.String()
	chunks := buildChunks(body, 100)

	// A selection straddling the boundary between chunk 1 and chunk 2.
	text := body[80:130]
	ann := annotation(body, text)

	o := recovery.NewWithConfig(recovery.Config{}, nil, nil)
	results, err := o.Recover(context.Background(), uuid.New(), []*models.Annotation{ann}, body, chunks)

	require.NoError(t, err)
	require.Len(t, results.Success, 1)
	require.Len(t, ann.ChunkIDs, 2)
	assert.Equal(t, chunks[0].ID, ann.ChunkIDs[0])
	assert.Equal(t, chunks[1].ID, ann.ChunkIDs[1])
}

func TestRecover_ProgressCallback(t *testing.T) {
	body := strings.Repeat("plain steady text for the progress callback check. ", 10)
	anns := []*models.Annotation{
		annotation(body, "plain steady text"),
		annotation(body, "progress callback check"),
	}

	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	o := recovery.NewWithConfig(recovery.Config{
		OnProgress: func(id uuid.UUID) {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		},
	}, nil, nil)

	_, err := o.Recover(context.Background(), uuid.New(), anns, body, buildChunks(body, 80))
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestMapChunks_ExactAndEdited(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "original chunk %d body with plenty of recognizable words inside it to anchor on. ", i)
	}
	oldBody := b.String()
	oldChunks := buildChunks(oldBody, 83)

	// New body: 60 characters inserted up front, chunk text otherwise intact.
	newBody := strings.Repeat("# ", 30) + oldBody
	newChunks := buildChunks(newBody, 83)

	o := recovery.NewWithConfig(recovery.Config{}, nil, nil)
	chunkMap, err := o.MapChunks(context.Background(), oldChunks, newBody, newChunks)

	require.NoError(t, err)
	require.NotEmpty(t, chunkMap)
	for _, old := range oldChunks {
		m, ok := chunkMap[old.ID]
		require.Truef(t, ok, "old chunk %d should map", old.Index)
		assert.True(t, m.Exact)
		assert.Equal(t, 1.0, m.Confidence)
	}
}

func TestMapChunks_EmptyInputs(t *testing.T) {
	o := recovery.NewWithConfig(recovery.Config{}, nil, nil)
	chunkMap, err := o.MapChunks(context.Background(), nil, "body", nil)
	require.NoError(t, err)
	assert.Empty(t, chunkMap)
}
