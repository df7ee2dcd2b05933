package recovery

import (
	"context"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/reanchor/internal/models"
	"github.com/xhad/reanchor/pkg/match"
)

// Config holds the classification bands and worker settings. The bands apply
// to the returned confidence uniformly, whichever tier produced the match.
type Config struct {
	SuccessThreshold float64 // >= auto-applied, default 0.85
	ReviewThreshold  float64 // >= queued for review, below is lost, default 0.5
	Workers          int     // concurrent matchers, default NumCPU
	OnProgress       func(annotationID uuid.UUID)
}

// Orchestrator re-anchors every annotation of a document against a staged
// body and chunk set. Annotations are mutated in place; the caller decides
// whether the mutations ever reach the store.
type Orchestrator struct {
	config Config
	engine *match.Engine
	logger *zap.Logger
}

func NewWithConfig(config Config, engine *match.Engine, logger *zap.Logger) *Orchestrator {
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 0.85
	}
	if config.ReviewThreshold == 0 {
		config.ReviewThreshold = 0.5
	}
	if config.Workers == 0 {
		config.Workers = runtime.NumCPU()
	}
	if engine == nil {
		engine = match.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{config: config, engine: engine, logger: logger}
}

// Recover matches every annotation concurrently against the immutable staged
// snapshot, then classifies and applies the outcomes. Matching failures are
// absorbed into classification; the only error out of here is a dead context.
func (o *Orchestrator) Recover(ctx context.Context, documentID uuid.UUID, annotations []*models.Annotation, newBody string, newChunks []models.Chunk) (*models.RecoveryResults, error) {
	results := &models.RecoveryResults{}
	if len(annotations) == 0 {
		return results, nil
	}

	newChunks = sortByIndex(newChunks)
	matched := make([]match.Result, len(annotations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, ann := range annotations {
		i, ann := i, ann
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hints := match.Hints{
				Context:    ann.Context,
				ChunkIndex: ann.OriginalChunkIndex,
				Offset:     ann.StartOffset,
				Chunks:     newChunks,
			}
			matched[i] = o.engine.Match(ann.Text, hints, newBody)
			if o.config.OnProgress != nil {
				o.config.OnProgress(ann.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, ann := range annotations {
		o.classify(ann, matched[i], newChunks)
		switch {
		case ann.RecoveryMethod == models.MethodLost || ann.RecoveryConfidence < o.config.ReviewThreshold:
			results.Lost = append(results.Lost, ann)
		case ann.NeedsReview:
			results.NeedsReview = append(results.NeedsReview, ann)
		default:
			results.Success = append(results.Success, ann)
		}
	}

	o.logger.Info("annotation recovery finished",
		zap.String("documentID", documentID.String()),
		zap.Int("success", len(results.Success)),
		zap.Int("needsReview", len(results.NeedsReview)),
		zap.Int("lost", len(results.Lost)),
	)
	return results, nil
}

func (o *Orchestrator) classify(ann *models.Annotation, r match.Result, newChunks []models.Chunk) {
	ann.RecoveryConfidence = r.Confidence
	ann.RecoveryMethod = r.Method

	if r.Method == models.MethodLost || r.Confidence < o.config.ReviewThreshold {
		// Offsets stay where they were; the annotation is surfaced for manual
		// re-anchoring instead of being pointed at a bad guess.
		ann.NeedsReview = false
		ann.ChunkIDs = nil
		return
	}

	ann.StartOffset = r.Start
	ann.EndOffset = r.End
	ann.ChunkIDs = overlappingChunkIDs(r.Start, r.End, newChunks)
	ann.NeedsReview = r.Confidence < o.config.SuccessThreshold
}

// overlappingChunkIDs returns every chunk whose range intersects [start,end),
// in chunk order. Selections spanning a boundary get all touched chunks.
func overlappingChunkIDs(start, end int, chunks []models.Chunk) []uuid.UUID {
	var ids []uuid.UUID
	for _, c := range chunks {
		if c.StartOffset < end && c.EndOffset > start {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// sortByIndex returns chunks ordered by their ordinal, without touching the
// caller's slice.
func sortByIndex(chunks []models.Chunk) []models.Chunk {
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
