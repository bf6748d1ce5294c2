package backup

import (
	"context"
	"os"
	"path/filepath"

	appErrors "backitup/internal/errors"

	"github.com/klauspost/compress/gzip"
)

// CombineStage bundles the stage archives into the final artifact
type CombineStage struct {
	backupDir string
}

// NewCombineStage creates a combine stage writing into backupDir
func NewCombineStage(backupDir string) *CombineStage {
	return &CombineStage{backupDir: backupDir}
}

// Combine writes backupDir/name holding each part as a member under its
// base name. The outer gzip layer uses stored blocks, so the members are
// byte-identical to the parts and are not compressed twice.
func (s *CombineStage) Combine(ctx context.Context, parts []*Artifact, name string) (*Artifact, error) {
	if len(parts) == 0 {
		return nil, appErrors.NewArchiveError("nothing to combine", nil)
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return nil, appErrors.ClassifyFileSystemError("failed to create backup directory", err)
	}

	dst := filepath.Join(s.backupDir, name)
	w, err := newArchiveWriter(dst, gzip.NoCompression)
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		if err := w.addFile(ctx, part.Path, filepath.Base(part.Path)); err != nil {
			w.abort()
			return nil, err
		}
	}
	size, err := w.Close()
	if err != nil {
		return nil, err
	}

	return &Artifact{Kind: KindCombined, Name: name, Path: dst, Size: size}, nil
}
