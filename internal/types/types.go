package types

import (
	"context"

	"github.com/google/uuid"
	"github.com/xhad/reanchor/internal/models"
)

// Store is the database surface the reprocessing pipeline depends on. The
// Postgres implementation lives in pkg/store; tests substitute in-memory
// fakes.
type Store interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetAnnotations(ctx context.Context, documentID uuid.UUID) ([]*models.Annotation, error)
	GetCurrentChunks(ctx context.Context, documentID uuid.UUID) ([]models.Chunk, error)
	GetValidatedConnections(ctx context.Context, documentID uuid.UUID) ([]*models.Connection, error)

	// StageChunks persists a not-yet-current chunk generation. The current
	// generation is untouched until CommitReprocess flips the pointer.
	StageChunks(ctx context.Context, chunks []models.Chunk) error
	DiscardStaged(ctx context.Context, documentID, generation uuid.UUID) error

	// CommitReprocess applies the whole commit set in one transaction. The
	// generation flip is guarded by a compare-and-swap on the document's
	// current generation; a lost race aborts the transaction.
	CommitReprocess(ctx context.Context, commit models.CommitSet) error

	// AcceptAnnotations and DiscardAnnotations are single batched writes.
	AcceptAnnotations(ctx context.Context, ids []uuid.UUID) error
	DiscardAnnotations(ctx context.Context, ids []uuid.UUID) error
}

// BodyFetcher reads document body text from storage by id and version.
// Upload and bucket management belong to an external collaborator.
type BodyFetcher interface {
	FetchBody(ctx context.Context, documentID uuid.UUID, version int) (string, error)
}

// Chunker turns a document body into an ordered, offset-bearing chunk set
// belonging to one generation.
type Chunker interface {
	Chunk(documentID, generation uuid.UUID, body string) ([]models.Chunk, error)
}
