package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BodyDir serves document bodies from a directory of plain-text files named
// {documentID}_v{version}.txt. Extraction pipelines drop the raw markdown
// there; reprocessing only ever reads it.
type BodyDir struct {
	dir string
}

func NewBodyDir(dir string) *BodyDir {
	return &BodyDir{dir: dir}
}

func (b *BodyDir) FetchBody(ctx context.Context, documentID uuid.UUID, version int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(b.dir, fmt.Sprintf("%s_v%d.txt", documentID, version))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read body for %s version %d: %w", documentID, version, err)
	}
	return string(data), nil
}
