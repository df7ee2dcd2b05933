package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xhad/reanchor/internal/models"
)

type Config struct {
	ChunkSize  int      // target chunk size in characters, default 1000
	Separators []string // splitter separators, default paragraph/sentence/word
	Encoding   string   // tiktoken encoding for token counts, empty disables
}

// Chunker stages a new chunk generation from a document body. Chunks come out
// ordered, non-overlapping and offset-addressed into the body, which is what
// the matching tiers and the connection remap rely on.
type Chunker struct {
	config   Config
	splitter textsplitter.RecursiveCharacter
	encoder  *tiktoken.Tiktoken
}

func NewWithConfig(config Config) (*Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", ". ", " "}
	}

	// Zero overlap: overlapping chunk ranges would break the non-overlap
	// invariant the offset model is built on.
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(config.Separators),
	)

	c := &Chunker{config: config, splitter: splitter}

	if config.Encoding != "" {
		encoder, err := tiktoken.GetEncoding(config.Encoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load %q encoding: %w", config.Encoding, err)
		}
		c.encoder = encoder
	}

	return c, nil
}

func New() *Chunker {
	c, _ := NewWithConfig(Config{})
	return c
}

// Chunk splits body into a staged generation. Offsets are recovered by
// locating each split verbatim in the body with a forward-moving cursor, so
// ranges are strictly increasing and never overlap.
func (c *Chunker) Chunk(documentID, generation uuid.UUID, body string) ([]models.Chunk, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	pieces, err := c.splitter.SplitText(body)
	if err != nil {
		return nil, fmt.Errorf("failed to split body: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	cursor := 0
	for i, piece := range pieces {
		if piece == "" {
			continue
		}
		rel := strings.Index(body[cursor:], piece)
		if rel < 0 {
			return nil, fmt.Errorf("chunk %d not found in body after offset %d", i, cursor)
		}
		start := cursor + rel
		end := start + len(piece)
		cursor = end

		chunks = append(chunks, models.Chunk{
			ID:          uuid.New(),
			DocumentID:  documentID,
			Generation:  generation,
			Index:       len(chunks),
			StartOffset: start,
			EndOffset:   end,
			Content:     piece,
			TokenCount:  c.countTokens(piece),
		})
	}

	return chunks, nil
}

func (c *Chunker) countTokens(piece string) int {
	if c.encoder == nil {
		// Rough heuristic when no encoding is configured; close enough for
		// the size bookkeeping this feeds.
		return (len(piece) + 3) / 4
	}
	return len(c.encoder.Encode(piece, nil, nil))
}
