package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/klauspost/compress/gzip"
)

// FilesStage archives the configured directory tree
type FilesStage struct {
	dir    string
	logger *logging.Logger
}

// NewFilesStage creates a files stage for dir
func NewFilesStage(dir string, logger *logging.Logger) *FilesStage {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &FilesStage{dir: dir, logger: logger}
}

// Archive packs the directory recursively into workDir/name. Members are
// rooted at the directory's base name. A missing directory is fatal.
// A symlinked files_dir_path is followed so its contents are archived,
// not the link; links inside the tree are stored as links.
func (s *FilesStage) Archive(ctx context.Context, workDir, name string) (*Artifact, error) {
	configured := filepath.Clean(s.dir)
	root, err := filepath.EvalSymlinks(configured)
	if err != nil {
		return nil, appErrors.ClassifyFileSystemError("files directory unavailable", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, appErrors.ClassifyFileSystemError("files directory unavailable", err)
	}
	if !info.IsDir() {
		return nil, appErrors.NewArchiveError(fmt.Sprintf("files_dir_path %s is not a directory", configured), nil)
	}

	prefix := filepath.Base(configured)
	if prefix == string(filepath.Separator) || prefix == "." {
		prefix = "root"
	}

	dst := filepath.Join(workDir, name)
	w, err := newArchiveWriter(dst, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if err := w.addTree(ctx, root, prefix); err != nil {
		w.abort()
		return nil, err
	}
	size, err := w.Close()
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"source": root,
		"size":   size,
	}).Debug("Files archive written")

	return &Artifact{Kind: KindFiles, Name: name, Path: dst, Size: size}, nil
}
