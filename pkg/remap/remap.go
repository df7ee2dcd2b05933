package remap

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/reanchor/internal/models"
)

// Config holds the remapping gate. An endpoint whose chunk mapping scored
// below MinConfidence is not trusted; the connection is invalidated instead.
type Config struct {
	MinConfidence float64 // default 0.75, the chunk-bounded acceptance gate
}

// Remapper rewrites connection endpoints after a document was reprocessed.
// Only endpoints belonging to the reprocessed document move; the far side of
// a cross-document connection is left alone, which is what lets those links
// survive a one-sided edit.
type Remapper struct {
	config Config
	logger *zap.Logger
}

// Result splits the connections into the ones that now resolve to current
// chunks and the ones marked invalid. Nothing is ever deleted here.
type Result struct {
	Remapped    []*models.Connection
	Invalidated []*models.Connection
}

func NewWithConfig(config Config, logger *zap.Logger) *Remapper {
	if config.MinConfidence == 0 {
		config.MinConfidence = 0.75
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remapper{config: config, logger: logger}
}

// Remap rewrites every endpoint that belongs to documentID through chunkMap.
// Connections not touching the document pass through as remapped no-ops.
func (r *Remapper) Remap(connections []*models.Connection, chunkMap models.ChunkMap, documentID uuid.UUID) Result {
	var out Result
	for _, conn := range connections {
		ok := true
		if conn.SourceDocumentID == documentID {
			ok = r.rewrite(&conn.SourceChunkID, chunkMap)
		}
		if ok && conn.TargetDocumentID == documentID {
			ok = r.rewrite(&conn.TargetChunkID, chunkMap)
		}
		if ok {
			out.Remapped = append(out.Remapped, conn)
			continue
		}
		conn.Invalidated = true
		out.Invalidated = append(out.Invalidated, conn)
		r.logger.Debug("connection invalidated",
			zap.String("connectionID", conn.ID.String()),
			zap.String("documentID", documentID.String()),
		)
	}
	return out
}

func (r *Remapper) rewrite(chunkID *uuid.UUID, chunkMap models.ChunkMap) bool {
	m, found := chunkMap[*chunkID]
	if !found || m.Confidence < r.config.MinConfidence {
		return false
	}
	*chunkID = m.NewChunkID
	return true
}
