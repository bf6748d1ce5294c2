package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	appErrors "backitup/internal/errors"

	"github.com/klauspost/compress/gzip"
)

// archiveWriter streams tar entries into a gzip file. The file is written
// under a temporary name and renamed into place on Close, so a partially
// written archive never carries a final artifact name.
type archiveWriter struct {
	path    string
	partial string
	file    *os.File
	gz      *gzip.Writer
	tw      *tar.Writer
}

func newArchiveWriter(dst string, level int) (*archiveWriter, error) {
	partial := dst + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, appErrors.ClassifyFileSystemError("failed to create archive", err)
	}

	gz, err := gzip.NewWriterLevel(f, level)
	if err != nil {
		f.Close()
		os.Remove(partial)
		return nil, appErrors.NewArchiveError("invalid compression level", err)
	}

	return &archiveWriter{
		path:    dst,
		partial: partial,
		file:    f,
		gz:      gz,
		tw:      tar.NewWriter(gz),
	}, nil
}

// addFile adds a single regular file under the given member name
func (w *archiveWriter) addFile(ctx context.Context, src, name string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return appErrors.ClassifyFileSystemError("failed to stat archive member", err)
	}
	return w.addEntry(ctx, src, name, info)
}

// addTree adds root and everything beneath it, with member names rooted at prefix
func (w *archiveWriter) addTree(ctx context.Context, root, prefix string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return appErrors.ClassifyFileSystemError("failed to walk files directory", walkErr)
		}
		if err := ctx.Err(); err != nil {
			return appErrors.NewAppError(appErrors.ErrorTypeInterruption, "archive cancelled", err)
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return appErrors.NewArchiveError("failed to compute member name", err)
		}
		name := prefix
		if rel != "." {
			name = path.Join(prefix, filepath.ToSlash(rel))
		}

		info, err := d.Info()
		if err != nil {
			return appErrors.ClassifyFileSystemError("failed to stat archive member", err)
		}
		return w.addEntry(ctx, p, name, info)
	})
}

func (w *archiveWriter) addEntry(ctx context.Context, src, name string, info fs.FileInfo) error {
	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return appErrors.ClassifyFileSystemError("failed to read symlink", err)
		}
		link = target
	case info.IsDir(), info.Mode().IsRegular():
	default:
		// sockets, devices and pipes have no archivable content
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return appErrors.NewArchiveError(fmt.Sprintf("failed to build tar header for %s", src), err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return appErrors.NewArchiveError(fmt.Sprintf("failed to write tar header for %s", name), err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return appErrors.ClassifyFileSystemError("failed to open archive member", err)
	}
	defer f.Close()

	if _, err := io.Copy(w.tw, &contextReader{ctx: ctx, r: f}); err != nil {
		return appErrors.ClassifyFileSystemError(fmt.Sprintf("failed to copy %s into archive", name), err)
	}
	return nil
}

// Close finalizes the archive and moves it to its final name
func (w *archiveWriter) Close() (int64, error) {
	if err := w.tw.Close(); err != nil {
		w.abort()
		return 0, appErrors.NewArchiveError("failed to finalize tar stream", err)
	}
	if err := w.gz.Close(); err != nil {
		w.abort()
		return 0, appErrors.NewArchiveError("failed to finalize gzip stream", err)
	}
	if err := w.file.Sync(); err != nil {
		w.abort()
		return 0, appErrors.ClassifyFileSystemError("failed to sync archive", err)
	}
	info, err := w.file.Stat()
	if err != nil {
		w.abort()
		return 0, appErrors.ClassifyFileSystemError("failed to stat archive", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.partial)
		return 0, appErrors.ClassifyFileSystemError("failed to close archive", err)
	}
	if err := os.Rename(w.partial, w.path); err != nil {
		os.Remove(w.partial)
		return 0, appErrors.ClassifyFileSystemError("failed to move archive into place", err)
	}
	return info.Size(), nil
}

// abort discards a partially written archive
func (w *archiveWriter) abort() {
	w.file.Close()
	os.Remove(w.partial)
}

// contextReader stops a long copy when the run is cancelled
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
