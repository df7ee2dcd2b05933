package recovery

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/reanchor/internal/models"
	"github.com/xhad/reanchor/pkg/match"
)

// MapChunks re-anchors each old chunk's text in the new body and records
// which new chunk it landed in. The map is the by-product connection
// remapping and embedding carry-over both run on.
func (o *Orchestrator) MapChunks(ctx context.Context, oldChunks []models.Chunk, newBody string, newChunks []models.Chunk) (models.ChunkMap, error) {
	chunkMap := make(models.ChunkMap, len(oldChunks))
	if len(oldChunks) == 0 || len(newChunks) == 0 {
		return chunkMap, nil
	}

	newChunks = sortByIndex(newChunks)
	mapped := make([]*models.ChunkMapping, len(oldChunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, old := range oldChunks {
		i, old := i, old
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hints := match.Hints{ChunkIndex: old.Index, Offset: -1, Chunks: newChunks}
			r := o.engine.Match(old.Content, hints, newBody)
			if r.Method == models.MethodLost {
				return nil
			}
			target := dominantChunk(r.Start, r.End, newChunks)
			if target == nil {
				return nil
			}
			mapped[i] = &models.ChunkMapping{
				OldIndex:   old.Index,
				NewChunkID: target.ID,
				NewIndex:   target.Index,
				Confidence: r.Confidence,
				Exact:      r.Method == models.MethodExact,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, old := range oldChunks {
		if mapped[i] != nil {
			chunkMap[old.ID] = *mapped[i]
		}
	}

	o.logger.Debug("chunk map derived",
		zap.Int("oldChunks", len(oldChunks)),
		zap.Int("mapped", len(chunkMap)),
	)
	return chunkMap, nil
}

// dominantChunk picks the new chunk with the largest overlap with [start,end).
func dominantChunk(start, end int, chunks []models.Chunk) *models.Chunk {
	var best *models.Chunk
	bestOverlap := 0
	for i := range chunks {
		c := &chunks[i]
		lo := max(start, c.StartOffset)
		hi := min(end, c.EndOffset)
		if hi-lo > bestOverlap {
			bestOverlap = hi - lo
			best = c
		}
	}
	return best
}
