package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"backitup/internal/config"
	"backitup/internal/logging"

	"github.com/jlaffaye/ftp"
)

// ftpConn is the subset of *ftp.ServerConn the FTP destination uses
type ftpConn interface {
	Login(user, password string) error
	CurrentDir() (string, error)
	ChangeDir(path string) error
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	List(path string) ([]*ftp.Entry, error)
	Delete(path string) error
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string) (ftpConn, error)

func dialFTP(ctx context.Context, addr string) (ftpConn, error) {
	return ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(defaultDialTimeout),
	)
}

// FTP ships archives to an FTP server in passive mode
type FTP struct {
	cfg    config.FTPConfig
	dial   ftpDialer
	conn   ftpConn
	logger *logging.Logger
	// remoteDir is cfg.RemoteDir made absolute against the login directory
	remoteDir string
}

// NewFTP creates an FTP destination. No connection is made until first use.
func NewFTP(cfg config.FTPConfig, logger *logging.Logger) *FTP {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if !cfg.PassiveMode {
		logger.WithField("host", cfg.Host).Warn("FTP active mode is not supported, using passive mode")
	}
	return &FTP{cfg: cfg, dial: dialFTP, logger: logger}
}

// Name implements Destination
func (f *FTP) Name() string {
	return string(config.DestinationFTP)
}

func (f *FTP) connect(ctx context.Context) (ftpConn, error) {
	if f.conn != nil {
		return f.conn, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, transferError("ftp connect", err)
	}

	conn, err := f.dial(ctx, f.cfg.Address())
	if err != nil {
		return nil, transferError(fmt.Sprintf("failed to connect to FTP server %s", f.cfg.Address()), err)
	}
	if err := conn.Login(f.cfg.Username, f.cfg.Password); err != nil {
		conn.Quit()
		return nil, transferError(fmt.Sprintf("FTP login failed for user %s", f.cfg.Username), err)
	}

	remoteDir, err := resolveRemoteDir(conn, f.cfg.RemoteDir)
	if err != nil {
		conn.Quit()
		return nil, err
	}

	f.logger.WithFields(map[string]interface{}{
		"host": f.cfg.Host,
		"port": f.cfg.Port,
		"dir":  remoteDir,
	}).Info("Connected to FTP server")

	f.conn = conn
	f.remoteDir = remoteDir
	return conn, nil
}

// resolveRemoteDir anchors a relative dir at the login directory, so
// later directory changes on the session never shift where files go.
func resolveRemoteDir(conn ftpConn, dir string) (string, error) {
	if path.IsAbs(dir) {
		return path.Clean(dir), nil
	}
	home, err := conn.CurrentDir()
	if err != nil {
		return "", transferError("failed to read FTP login directory", err)
	}
	if !path.IsAbs(home) {
		home = "/" + home
	}
	return path.Join(home, dir), nil
}

// ensureRemoteDir creates the remote dir one component at a time
func (f *FTP) ensureRemoteDir(conn ftpConn) error {
	current := "/"
	for _, part := range strings.Split(strings.Trim(f.remoteDir, "/"), "/") {
		if part == "" || part == "." {
			continue
		}
		current = path.Join(current, part)
		if err := conn.ChangeDir(current); err == nil {
			continue
		}
		if err := conn.MakeDir(current); err != nil {
			return transferError(fmt.Sprintf("failed to create remote directory %s", current), err)
		}
	}
	return nil
}

// Upload implements Destination. The file is stored under a temporary
// name and renamed once complete.
func (f *FTP) Upload(ctx context.Context, localPath string) (RemoteRef, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return RemoteRef{}, err
	}
	if err := f.ensureRemoteDir(conn); err != nil {
		return RemoteRef{}, err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return RemoteRef{}, transferError("local artifact unavailable", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return RemoteRef{}, transferError("local artifact unavailable", err)
	}

	name := path.Base(localPath)
	remotePath := path.Join(f.remoteDir, name)
	partial := remotePath + partialSuffix

	if err := conn.Stor(partial, &contextReader{ctx: ctx, r: in}); err != nil {
		conn.Delete(partial)
		return RemoteRef{}, transferError(fmt.Sprintf("failed to upload %s", name), err)
	}
	if err := conn.Rename(partial, remotePath); err != nil {
		return RemoteRef{}, transferError(fmt.Sprintf("failed to finalize upload of %s", name), err)
	}

	return RemoteRef{Name: name, Path: remotePath, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List implements Destination
func (f *FTP) List(ctx context.Context) ([]RemoteRef, error) {
	conn, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := conn.List(f.remoteDir)
	if err != nil {
		return nil, transferError(fmt.Sprintf("failed to list %s", f.remoteDir), err)
	}

	refs := make([]RemoteRef, 0, len(entries))
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		name := path.Base(e.Name)
		refs = append(refs, RemoteRef{
			Name:    name,
			Path:    path.Join(f.remoteDir, name),
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}
	return refs, nil
}

// Delete implements Destination
func (f *FTP) Delete(ctx context.Context, ref RemoteRef) error {
	if err := validateName(ref.Name); err != nil {
		return err
	}
	conn, err := f.connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.Delete(path.Join(f.remoteDir, ref.Name)); err != nil {
		return transferError(fmt.Sprintf("failed to delete %s", ref.Name), err)
	}
	return nil
}

// Close implements Destination
func (f *FTP) Close() error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	return err
}
