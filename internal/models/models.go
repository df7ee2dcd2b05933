package models

import (
	"time"

	"github.com/google/uuid"
)

// RecoveryMethod identifies which matching tier re-anchored an annotation.
type RecoveryMethod string

const (
	MethodExact        RecoveryMethod = "exact"
	MethodContext      RecoveryMethod = "context"
	MethodChunkBounded RecoveryMethod = "chunk_bounded"
	MethodTrigram      RecoveryMethod = "trigram"
	MethodLost         RecoveryMethod = "lost"
)

// Document is the owner of a chunk generation and of its annotations. The body
// text itself is opaque here; it is fetched from storage by id and version.
type Document struct {
	ID                uuid.UUID
	Title             string
	Version           int
	CurrentGeneration uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Chunk is a contiguous span of a document body. A generation is the set of
// chunks produced by one processing pass; chunks of a generation are ordered
// by Index and their offset ranges do not overlap.
type Chunk struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Generation  uuid.UUID
	Index       int
	StartOffset int
	EndOffset   int
	Content     string
	TokenCount  int
	Embedding   []float32
}

// AnnotationContext holds the fixed-size text windows captured around a
// selection when the annotation was created. Used as a recovery hint.
type AnnotationContext struct {
	Before string
	After  string
}

// Annotation is a user highlight/note anchored to character offsets in a
// document body. Offsets refer to the body the annotation was last anchored
// against; reprocessing rewrites them in place.
type Annotation struct {
	ID                 uuid.UUID
	DocumentID         uuid.UUID
	Text               string
	StartOffset        int
	EndOffset          int
	Context            *AnnotationContext
	OriginalChunkIndex int // -1 when unknown
	ChunkIDs           []uuid.UUID
	RecoveryConfidence float64
	RecoveryMethod     RecoveryMethod
	NeedsReview        bool
}

// Connection links two chunks, possibly across documents. Connections are
// created by an external detection process; reprocessing only remaps or
// invalidates them, never deletes.
type Connection struct {
	ID               uuid.UUID
	SourceChunkID    uuid.UUID
	TargetChunkID    uuid.UUID
	SourceDocumentID uuid.UUID
	TargetDocumentID uuid.UUID
	Kind             string
	Strength         float64
	UserValidated    bool
	Invalidated      bool
}

// ChunkMapping records where one old chunk landed in the new generation.
type ChunkMapping struct {
	OldIndex   int
	NewChunkID uuid.UUID
	NewIndex   int
	Confidence float64
	Exact      bool
}

// ChunkMap maps old chunk ids to their new-generation counterparts.
type ChunkMap map[uuid.UUID]ChunkMapping

// RecoveryResults is the aggregate outcome of one recovery pass.
type RecoveryResults struct {
	Success                []*Annotation
	NeedsReview            []*Annotation
	Lost                   []*Annotation
	ConnectionsRemapped    int
	ConnectionsInvalidated int
}

// Total returns the number of annotations that went through recovery.
func (r *RecoveryResults) Total() int {
	return len(r.Success) + len(r.NeedsReview) + len(r.Lost)
}

// Rate is |success| / total. A document with no annotations recovers at 1.0.
func (r *RecoveryResults) Rate() float64 {
	total := r.Total()
	if total == 0 {
		return 1.0
	}
	return float64(len(r.Success)) / float64(total)
}

// CommitSet is everything the store must persist atomically when a
// reprocessing run commits: the generation pointer flip plus all annotation
// and connection mutations computed during recovery.
type CommitSet struct {
	DocumentID    uuid.UUID
	OldGeneration uuid.UUID
	NewGeneration uuid.UUID
	Chunks        []Chunk
	Annotations   []*Annotation
	Connections   []*Connection
}
