package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/reanchor/internal/models"
	"github.com/xhad/reanchor/internal/types"
	"github.com/xhad/reanchor/pkg/recovery"
	"github.com/xhad/reanchor/pkg/remap"
)

type Config struct {
	MinRecoveryRate     float64       // below this the run rolls back, default 0.5
	BudgetPerAnnotation time.Duration // recovery wall-clock budget per annotation, default 100ms
	BudgetFloor         time.Duration // minimum recovery budget, default 2s
	RateLimit           float64       // reprocessing runs per second across documents, default 1
}

// Pipeline drives one reprocessing run through the state machine:
//
//	Idle → StagingNewVersion → Recovering → Deciding → Committing|RollingBack → Idle
//
// Runs for the same document are serialized through a per-document lock; the
// generation flip itself is additionally CAS-guarded in the store.
type Pipeline struct {
	config    Config
	store     types.Store
	bodies    types.BodyFetcher
	chunker   types.Chunker
	recoverer *recovery.Orchestrator
	remapper  *remap.Remapper
	logger    *zap.Logger
	limiter   *rate.Limiter

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewWithConfig(config Config, store types.Store, bodies types.BodyFetcher, chunker types.Chunker, recoverer *recovery.Orchestrator, remapper *remap.Remapper, logger *zap.Logger) *Pipeline {
	if config.MinRecoveryRate == 0 {
		config.MinRecoveryRate = 0.5
	}
	if config.BudgetPerAnnotation == 0 {
		config.BudgetPerAnnotation = 100 * time.Millisecond
	}
	if config.BudgetFloor == 0 {
		config.BudgetFloor = 2 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}
	if recoverer == nil {
		recoverer = recovery.NewWithConfig(recovery.Config{}, nil, logger)
	}
	if remapper == nil {
		remapper = remap.NewWithConfig(remap.Config{}, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		config:    config,
		store:     store,
		bodies:    bodies,
		chunker:   chunker,
		recoverer: recoverer,
		remapper:  remapper,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// Reprocess runs the full pipeline for one document and blocks until the run
// is back at Idle. A failed run leaves the document exactly as it was.
func (p *Pipeline) Reprocess(ctx context.Context, documentID uuid.UUID) (*models.RecoveryResults, error) {
	lock := p.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &StageError{Stage: Idle, Err: err}
	}

	// Reads happen before any state is touched; a failure here aborts with
	// nothing mutated.
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, &StageError{Stage: Idle, Err: fmt.Errorf("%w: document: %v", ErrStorageRead, err)}
	}
	newBody, err := p.bodies.FetchBody(ctx, documentID, doc.Version+1)
	if err != nil {
		return nil, &StageError{Stage: Idle, Err: fmt.Errorf("%w: body v%d: %v", ErrStorageRead, doc.Version+1, err)}
	}
	annotations, err := p.store.GetAnnotations(ctx, documentID)
	if err != nil {
		return nil, &StageError{Stage: Idle, Err: fmt.Errorf("%w: annotations: %v", ErrStorageRead, err)}
	}
	oldChunks, err := p.store.GetCurrentChunks(ctx, documentID)
	if err != nil {
		return nil, &StageError{Stage: Idle, Err: fmt.Errorf("%w: chunks: %v", ErrStorageRead, err)}
	}
	connections, err := p.store.GetValidatedConnections(ctx, documentID)
	if err != nil {
		return nil, &StageError{Stage: Idle, Err: fmt.Errorf("%w: connections: %v", ErrStorageRead, err)}
	}

	state := StagingNewVersion
	p.transition(documentID, state)

	generation := uuid.New()
	newChunks, err := p.chunker.Chunk(documentID, generation, newBody)
	if err != nil {
		return nil, &StageError{Stage: state, Err: err}
	}
	if err := p.store.StageChunks(ctx, newChunks); err != nil {
		// The batch may have partially applied before failing; drop whatever
		// landed so no orphaned generation is left behind.
		p.discard(documentID, generation)
		return nil, &StageError{Stage: state, Err: err}
	}

	state = Recovering
	p.transition(documentID, state)

	budget := p.config.BudgetFloor + time.Duration(len(annotations))*p.config.BudgetPerAnnotation
	rctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	results, err := p.recoverer.Recover(rctx, documentID, annotations, newBody, newChunks)
	if err != nil {
		p.discard(documentID, generation)
		if rctx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", ErrRecoveryBudgetExceeded, budget, err)
		}
		return nil, &StageError{Stage: state, Err: err}
	}

	chunkMap, err := p.recoverer.MapChunks(rctx, oldChunks, newBody, newChunks)
	if err != nil {
		p.discard(documentID, generation)
		if rctx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", ErrRecoveryBudgetExceeded, budget, err)
		}
		return nil, &StageError{Stage: state, Err: err}
	}

	remapped := p.remapper.Remap(connections, chunkMap, documentID)
	results.ConnectionsRemapped = len(remapped.Remapped)
	results.ConnectionsInvalidated = len(remapped.Invalidated)

	state = Deciding
	p.transition(documentID, state)

	if recoveryRate := results.Rate(); recoveryRate < p.config.MinRecoveryRate {
		state = RollingBack
		p.transition(documentID, state)
		p.discard(documentID, generation)
		p.logger.Warn("reprocessing rolled back",
			zap.String("documentID", documentID.String()),
			zap.Float64("recoveryRate", recoveryRate),
		)
		return results, &StageError{
			Stage: Deciding,
			Err:   fmt.Errorf("%w: %.2f of %d annotations", ErrRecoveryRateTooLow, recoveryRate, results.Total()),
		}
	}

	// An abort requested before the commit starts behaves like a rollback.
	if err := ctx.Err(); err != nil {
		p.discard(documentID, generation)
		return results, &StageError{Stage: Deciding, Err: err}
	}

	state = Committing
	p.transition(documentID, state)

	carryEmbeddings(chunkMap, oldChunks, newChunks)

	commit := models.CommitSet{
		DocumentID:    documentID,
		OldGeneration: doc.CurrentGeneration,
		NewGeneration: generation,
		Chunks:        newChunks,
		Annotations:   annotations,
		Connections:   connections,
	}
	if err := p.store.CommitReprocess(ctx, commit); err != nil {
		p.discard(documentID, generation)
		return results, &StageError{Stage: Committing, Err: fmt.Errorf("%w: %v", ErrTransactionAborted, err)}
	}

	p.transition(documentID, Idle)
	p.logger.Info("reprocessing committed",
		zap.String("documentID", documentID.String()),
		zap.String("generation", generation.String()),
		zap.Float64("recoveryRate", results.Rate()),
		zap.Int("connectionsRemapped", results.ConnectionsRemapped),
		zap.Int("connectionsInvalidated", results.ConnectionsInvalidated),
	)
	return results, nil
}

// BatchAccept clears the review flag on queued annotations in one write.
func (p *Pipeline) BatchAccept(ctx context.Context, annotationIDs []uuid.UUID) error {
	if len(annotationIDs) == 0 {
		return nil
	}
	return p.store.AcceptAnnotations(ctx, annotationIDs)
}

// BatchDiscard rejects queued re-anchorings in one write; the annotations are
// marked lost for manual re-anchoring.
func (p *Pipeline) BatchDiscard(ctx context.Context, annotationIDs []uuid.UUID) error {
	if len(annotationIDs) == 0 {
		return nil
	}
	return p.store.DiscardAnnotations(ctx, annotationIDs)
}

func (p *Pipeline) docLock(documentID uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[documentID] = lock
	}
	return lock
}

// discard drops a staged generation. Runs on a fresh context so cleanup still
// happens when the caller's context is already dead.
func (p *Pipeline) discard(documentID, generation uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.DiscardStaged(ctx, documentID, generation); err != nil {
		p.logger.Error("failed to discard staged generation",
			zap.String("documentID", documentID.String()),
			zap.String("generation", generation.String()),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) transition(documentID uuid.UUID, to State) {
	p.logger.Debug("pipeline transition",
		zap.String("documentID", documentID.String()),
		zap.Stringer("state", to),
	)
}

// carryEmbeddings copies embeddings from old chunks onto new chunks whose
// text re-anchored exactly, so the external embedding process only has to
// recompute what actually changed.
func carryEmbeddings(chunkMap models.ChunkMap, oldChunks, newChunks []models.Chunk) {
	byID := make(map[uuid.UUID]*models.Chunk, len(newChunks))
	for i := range newChunks {
		byID[newChunks[i].ID] = &newChunks[i]
	}
	for _, old := range oldChunks {
		m, ok := chunkMap[old.ID]
		if !ok || !m.Exact || len(old.Embedding) == 0 {
			continue
		}
		if target, ok := byID[m.NewChunkID]; ok && len(target.Embedding) == 0 && target.Content == old.Content {
			target.Embedding = old.Embedding
		}
	}
}
