package remap_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/reanchor/internal/models"
	"github.com/xhad/reanchor/pkg/remap"
)

func TestRemap_CrossDocumentPreserved(t *testing.T) {
	docX := uuid.New() // reprocessed
	docY := uuid.New() // untouched

	oldA := uuid.New()
	newA := uuid.New()
	chunkB := uuid.New()

	chunkMap := models.ChunkMap{
		oldA: {OldIndex: 3, NewChunkID: newA, NewIndex: 3, Confidence: 1.0, Exact: true},
	}

	conn := &models.Connection{
		ID:               uuid.New(),
		SourceChunkID:    oldA,
		TargetChunkID:    chunkB,
		SourceDocumentID: docX,
		TargetDocumentID: docY,
		UserValidated:    true,
	}

	result := remap.NewWithConfig(remap.Config{}, nil).Remap([]*models.Connection{conn}, chunkMap, docX)

	require.Len(t, result.Remapped, 1)
	assert.Empty(t, result.Invalidated)
	assert.Equal(t, newA, conn.SourceChunkID)
	assert.Equal(t, chunkB, conn.TargetChunkID, "far endpoint must not move")
	assert.False(t, conn.Invalidated)
}

func TestRemap_LowConfidenceInvalidatesNotDeletes(t *testing.T) {
	docX := uuid.New()
	oldA := uuid.New()

	chunkMap := models.ChunkMap{
		oldA: {NewChunkID: uuid.New(), Confidence: 0.6},
	}

	conn := &models.Connection{
		ID:               uuid.New(),
		SourceChunkID:    oldA,
		TargetChunkID:    uuid.New(),
		SourceDocumentID: docX,
		TargetDocumentID: uuid.New(),
		UserValidated:    true,
	}

	result := remap.NewWithConfig(remap.Config{}, nil).Remap([]*models.Connection{conn}, chunkMap, docX)

	assert.Empty(t, result.Remapped)
	require.Len(t, result.Invalidated, 1)
	assert.True(t, conn.Invalidated)
	// The stale endpoint is left as-is so a later reprocess can retry it.
	assert.Equal(t, oldA, conn.SourceChunkID)
}

func TestRemap_MissingMappingInvalidates(t *testing.T) {
	docX := uuid.New()
	conn := &models.Connection{
		ID:               uuid.New(),
		SourceChunkID:    uuid.New(),
		TargetChunkID:    uuid.New(),
		SourceDocumentID: docX,
		TargetDocumentID: docX,
	}

	result := remap.NewWithConfig(remap.Config{}, nil).Remap([]*models.Connection{conn}, models.ChunkMap{}, docX)

	require.Len(t, result.Invalidated, 1)
	assert.True(t, conn.Invalidated)
}

func TestRemap_BothEndpointsSameDocument(t *testing.T) {
	docX := uuid.New()
	oldA, oldB := uuid.New(), uuid.New()
	newA, newB := uuid.New(), uuid.New()

	chunkMap := models.ChunkMap{
		oldA: {NewChunkID: newA, Confidence: 0.9},
		oldB: {NewChunkID: newB, Confidence: 0.8},
	}

	conn := &models.Connection{
		ID:               uuid.New(),
		SourceChunkID:    oldA,
		TargetChunkID:    oldB,
		SourceDocumentID: docX,
		TargetDocumentID: docX,
	}

	result := remap.NewWithConfig(remap.Config{}, nil).Remap([]*models.Connection{conn}, chunkMap, docX)

	require.Len(t, result.Remapped, 1)
	assert.Equal(t, newA, conn.SourceChunkID)
	assert.Equal(t, newB, conn.TargetChunkID)
}

func TestRemap_UnrelatedConnectionPassesThrough(t *testing.T) {
	docX := uuid.New()
	conn := &models.Connection{
		ID:               uuid.New(),
		SourceChunkID:    uuid.New(),
		TargetChunkID:    uuid.New(),
		SourceDocumentID: uuid.New(),
		TargetDocumentID: uuid.New(),
	}

	result := remap.NewWithConfig(remap.Config{}, nil).Remap([]*models.Connection{conn}, models.ChunkMap{}, docX)

	require.Len(t, result.Remapped, 1)
	assert.False(t, conn.Invalidated)
}
