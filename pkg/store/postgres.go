package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/xhad/reanchor/internal/models"
)

// ErrGenerationMoved means the compare-and-swap on the document's current
// generation found a different value than expected: another run committed in
// between and this transaction must not apply.
var ErrGenerationMoved = errors.New("current generation moved underfoot")

type Config struct {
	ConnString string
	VectorDim  int // embedding column width, default 768
}

// PostgresStore persists documents, chunk generations, annotations and
// connections. The generation pointer lives on the documents row, so flipping
// a document to a new chunk set is a single CAS-guarded update instead of
// toggling flags across two row sets.
type PostgresStore struct {
	config Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewWithConfig(ctx context.Context, config Config, logger *zap.Logger) (*PostgresStore, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{config: config, pool: pool, logger: logger}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initialize(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		current_generation UUID NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL,
		generation UUID NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		embedding vector(%d)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_gen ON chunks(document_id, generation, chunk_index);

	CREATE TABLE IF NOT EXISTS annotations (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL,
		text TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		context_before TEXT NOT NULL DEFAULT '',
		context_after TEXT NOT NULL DEFAULT '',
		original_chunk_index INTEGER NOT NULL DEFAULT -1,
		recovery_confidence DOUBLE PRECISION NOT NULL DEFAULT 1,
		recovery_method TEXT NOT NULL DEFAULT 'exact',
		needs_review BOOLEAN NOT NULL DEFAULT false
	);
	CREATE INDEX IF NOT EXISTS idx_annotations_doc ON annotations(document_id);

	CREATE TABLE IF NOT EXISTS annotation_chunks (
		annotation_id UUID NOT NULL,
		chunk_id UUID NOT NULL,
		PRIMARY KEY (annotation_id, chunk_id)
	);

	CREATE TABLE IF NOT EXISTS connections (
		id UUID PRIMARY KEY,
		source_chunk_id UUID NOT NULL,
		target_chunk_id UUID NOT NULL,
		source_document_id UUID NOT NULL,
		target_document_id UUID NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		strength DOUBLE PRECISION NOT NULL DEFAULT 0,
		user_validated BOOLEAN NOT NULL DEFAULT false,
		invalidated BOOLEAN NOT NULL DEFAULT false
	);
	CREATE INDEX IF NOT EXISTS idx_connections_source_doc ON connections(source_document_id);
	CREATE INDEX IF NOT EXISTS idx_connections_target_doc ON connections(target_document_id);
	`, s.config.VectorDim)

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, version, current_generation, created_at, updated_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Title, &doc.Version, &doc.CurrentGeneration, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return doc, nil
}

// SaveDocument registers a document with an empty current generation. Used by
// the initial processing path, not by reprocessing.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc models.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, version, current_generation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Title, doc.Version, doc.CurrentGeneration, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetCurrentChunks(ctx context.Context, documentID uuid.UUID) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.generation, c.chunk_index, c.start_offset, c.end_offset, c.content, c.token_count, c.embedding
		FROM chunks c
		JOIN documents d ON d.id = c.document_id AND d.current_generation = c.generation
		WHERE c.document_id = $1
		ORDER BY c.chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var emb *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Generation, &c.Index, &c.StartOffset, &c.EndOffset, &c.Content, &c.TokenCount, &emb); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if emb != nil {
			c.Embedding = emb.Slice()
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) GetAnnotations(ctx context.Context, documentID uuid.UUID) ([]*models.Annotation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, text, start_offset, end_offset, context_before, context_after,
		       original_chunk_index, recovery_confidence, recovery_method, needs_review
		FROM annotations WHERE document_id = $1`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	var anns []*models.Annotation
	byID := map[uuid.UUID]*models.Annotation{}
	for rows.Next() {
		a := &models.Annotation{}
		var before, after string
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Text, &a.StartOffset, &a.EndOffset, &before, &after,
			&a.OriginalChunkIndex, &a.RecoveryConfidence, &a.RecoveryMethod, &a.NeedsReview); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		if before != "" || after != "" {
			a.Context = &models.AnnotationContext{Before: before, After: after}
		}
		anns = append(anns, a)
		byID[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	linkRows, err := s.pool.Query(ctx, `
		SELECT ac.annotation_id, ac.chunk_id
		FROM annotation_chunks ac
		JOIN annotations a ON a.id = ac.annotation_id
		WHERE a.document_id = $1`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotation chunks: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var annID, chunkID uuid.UUID
		if err := linkRows.Scan(&annID, &chunkID); err != nil {
			return nil, fmt.Errorf("failed to scan annotation chunk: %w", err)
		}
		if a, ok := byID[annID]; ok {
			a.ChunkIDs = append(a.ChunkIDs, chunkID)
		}
	}
	return anns, linkRows.Err()
}

func (s *PostgresStore) GetValidatedConnections(ctx context.Context, documentID uuid.UUID) ([]*models.Connection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_chunk_id, target_chunk_id, source_document_id, target_document_id,
		       kind, strength, user_validated, invalidated
		FROM connections
		WHERE (source_document_id = $1 OR target_document_id = $1)
		  AND user_validated AND NOT invalidated`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		c := &models.Connection{}
		if err := rows.Scan(&c.ID, &c.SourceChunkID, &c.TargetChunkID, &c.SourceDocumentID, &c.TargetDocumentID,
			&c.Kind, &c.Strength, &c.UserValidated, &c.Invalidated); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// StageChunks inserts a generation that no document points at yet. Readers
// join through documents.current_generation, so staged rows are invisible
// until the commit flips the pointer.
func (s *PostgresStore) StageChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, generation, chunk_index, start_offset, end_offset, content, token_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, c.DocumentID, c.Generation, c.Index, c.StartOffset, c.EndOffset, c.Content, c.TokenCount, embeddingParam(c.Embedding),
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to stage chunks: %w", err)
	}
	return nil
}

func (s *PostgresStore) DiscardStaged(ctx context.Context, documentID, generation uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1 AND generation = $2`,
		documentID, generation,
	)
	if err != nil {
		return fmt.Errorf("failed to discard staged generation: %w", err)
	}
	return nil
}

// CommitReprocess applies a whole reprocessing outcome in one transaction:
// CAS the generation pointer, drop the old generation, persist annotation and
// connection mutations. Any failure aborts the lot and the prior generation
// stays current, so retrying the whole reprocess is always safe.
func (s *PostgresStore) CommitReprocess(ctx context.Context, commit models.CommitSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET current_generation = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND current_generation = $3`,
		commit.NewGeneration, commit.DocumentID, commit.OldGeneration,
	)
	if err != nil {
		return fmt.Errorf("failed to flip generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGenerationMoved
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM annotation_chunks ac
		USING chunks c
		WHERE ac.chunk_id = c.id AND c.document_id = $1 AND c.generation = $2`,
		commit.DocumentID, commit.OldGeneration,
	); err != nil {
		return fmt.Errorf("failed to unlink old generation: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1 AND generation = $2`,
		commit.DocumentID, commit.OldGeneration,
	); err != nil {
		return fmt.Errorf("failed to delete old generation: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range commit.Chunks {
		if len(c.Embedding) > 0 {
			batch.Queue(`UPDATE chunks SET embedding = $1 WHERE id = $2`, pgvector.NewVector(c.Embedding), c.ID)
		}
	}
	for _, a := range commit.Annotations {
		batch.Queue(`
			UPDATE annotations
			SET start_offset = $1, end_offset = $2, recovery_confidence = $3, recovery_method = $4, needs_review = $5
			WHERE id = $6`,
			a.StartOffset, a.EndOffset, a.RecoveryConfidence, string(a.RecoveryMethod), a.NeedsReview, a.ID,
		)
		batch.Queue(`DELETE FROM annotation_chunks WHERE annotation_id = $1`, a.ID)
		for _, chunkID := range a.ChunkIDs {
			batch.Queue(`INSERT INTO annotation_chunks (annotation_id, chunk_id) VALUES ($1, $2)`, a.ID, chunkID)
		}
	}
	for _, c := range commit.Connections {
		batch.Queue(`
			UPDATE connections
			SET source_chunk_id = $1, target_chunk_id = $2, invalidated = $3
			WHERE id = $4`,
			c.SourceChunkID, c.TargetChunkID, c.Invalidated, c.ID,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to apply recovery mutations: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reprocess: %w", err)
	}

	s.logger.Info("reprocess committed",
		zap.String("documentID", commit.DocumentID.String()),
		zap.String("generation", commit.NewGeneration.String()),
		zap.Int("chunks", len(commit.Chunks)),
	)
	return nil
}

// AcceptAnnotations clears the review flag for a whole batch in one write.
func (s *PostgresStore) AcceptAnnotations(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE annotations SET needs_review = false WHERE id = ANY($1::uuid[])`,
		uuidStrings(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to accept annotations: %w", err)
	}
	return nil
}

// DiscardAnnotations rejects the proposed re-anchorings in one write; the
// rows go back to lost so the review queue can hand them to manual re-anchoring.
func (s *PostgresStore) DiscardAnnotations(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE annotations
		SET needs_review = false, recovery_method = 'lost', recovery_confidence = 0
		WHERE id = ANY($1::uuid[])`,
		uuidStrings(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to discard annotations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
