package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"
)

const (
	defaultDialTimeout = 30 * time.Second
	partialSuffix      = ".partial"
)

// RemoteRef identifies a file stored at a destination
type RemoteRef struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Destination ships archives to one storage target and manages what is
// stored there. Remote implementations connect lazily on first use and
// reuse the connection until Close.
type Destination interface {
	// Name returns the destination type, e.g. "sftp"
	Name() string
	// Upload copies the local file into the destination directory
	Upload(ctx context.Context, localPath string) (RemoteRef, error)
	// List returns the regular files in the destination directory
	List(ctx context.Context) ([]RemoteRef, error)
	// Delete removes a file previously returned by List or Upload
	Delete(ctx context.Context, ref RemoteRef) error
	// Close releases any open connection
	Close() error
}

// New selects the destination for the configured type. The set of types
// is closed; anything else is a configuration error.
func New(cfg *config.Config, logger *logging.Logger) (Destination, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	switch cfg.Backup.DestinationType {
	case config.DestinationLocal:
		return NewLocal(cfg.Backup.Dir, logger), nil

	case config.DestinationFTP:
		if cfg.FTP == nil {
			return nil, appErrors.NewConfigError("ftp destination selected without FTP settings", nil)
		}
		return NewFTP(*cfg.FTP, logger), nil

	case config.DestinationSFTP:
		if cfg.SFTP == nil {
			return nil, appErrors.NewConfigError("sftp destination selected without SFTP settings", nil)
		}
		return NewSFTP(*cfg.SFTP, logger), nil

	default:
		supported := make([]string, 0, len(SupportedTypes()))
		for _, typ := range SupportedTypes() {
			supported = append(supported, string(typ))
		}
		return nil, appErrors.NewConfigError(fmt.Sprintf("unsupported destination type: %s (supported: %s)",
			cfg.Backup.DestinationType, strings.Join(supported, ", ")), nil)
	}
}

// SupportedTypes returns every destination type New accepts
func SupportedTypes() []config.DestinationType {
	return []config.DestinationType{
		config.DestinationLocal,
		config.DestinationFTP,
		config.DestinationSFTP,
	}
}

// contextReader stops an upload when the run is cancelled
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

func transferError(message string, err error) error {
	if appErrors.IsType(err, appErrors.ErrorTypeInterruption) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return appErrors.NewAppError(appErrors.ErrorTypeInterruption, message+": cancelled", err)
	}
	return appErrors.NewTransferError(message, err)
}
