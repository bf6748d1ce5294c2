package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"backitup/internal/config"
	"backitup/internal/logging"
)

// Local keeps archives in a directory on this host. Upload of a file that
// already lives in the directory only records it.
type Local struct {
	dir    string
	logger *logging.Logger
}

// NewLocal creates a local destination rooted at dir
func NewLocal(dir string, logger *logging.Logger) *Local {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Local{dir: dir, logger: logger}
}

// Name implements Destination
func (l *Local) Name() string {
	return string(config.DestinationLocal)
}

// Upload implements Destination
func (l *Local) Upload(ctx context.Context, localPath string) (RemoteRef, error) {
	name := filepath.Base(localPath)
	dst := filepath.Join(l.dir, name)

	info, err := os.Stat(localPath)
	if err != nil {
		return RemoteRef{}, transferError("local artifact unavailable", err)
	}

	if same, err := samePath(localPath, dst); err != nil {
		return RemoteRef{}, transferError("failed to resolve destination path", err)
	} else if same {
		return RemoteRef{Name: name, Path: dst, Size: info.Size(), ModTime: info.ModTime()}, nil
	}

	if err := l.ensureDirectory(); err != nil {
		return RemoteRef{}, err
	}
	if err := copyFile(ctx, localPath, dst); err != nil {
		return RemoteRef{}, transferError(fmt.Sprintf("failed to copy %s into %s", name, l.dir), err)
	}

	l.logger.WithFields(map[string]interface{}{
		"source":      localPath,
		"destination": dst,
	}).Debug("Archive copied to local destination")

	return RemoteRef{Name: name, Path: dst, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List implements Destination. A directory that does not exist yet is empty.
func (l *Local) List(ctx context.Context) ([]RemoteRef, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, transferError(fmt.Sprintf("failed to list %s", l.dir), err)
	}

	refs := make([]RemoteRef, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		refs = append(refs, RemoteRef{
			Name:    entry.Name(),
			Path:    filepath.Join(l.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return refs, nil
}

// Delete implements Destination
func (l *Local) Delete(ctx context.Context, ref RemoteRef) error {
	if err := validateName(ref.Name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, ref.Name)); err != nil {
		return transferError(fmt.Sprintf("failed to delete %s", ref.Name), err)
	}
	return nil
}

// Close implements Destination
func (l *Local) Close() error {
	return nil
}

func (l *Local) ensureDirectory() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return transferError(fmt.Sprintf("failed to create directory %s", l.dir), err)
	}
	return nil
}

// validateName rejects names that would escape the destination directory
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return transferError(fmt.Sprintf("invalid file name %q", name), nil)
	}
	return nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	partial := dst + partialSuffix
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, &contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		os.Remove(partial)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return err
	}
	return os.Rename(partial, dst)
}
