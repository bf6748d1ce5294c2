package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// remoteFS is the file API the SFTP destination needs from a session
type remoteFS interface {
	MkdirAll(dir string) error
	Create(name string) (io.WriteCloser, error)
	ReadDir(dir string) ([]os.FileInfo, error)
	Rename(from, to string) error
	Remove(name string) error
	Close() error
}

type sftpDialer func(ctx context.Context, cfg config.SFTPConfig, logger *logging.Logger) (remoteFS, error)

// sftpSession binds an SFTP client to the SSH connection it runs over
type sftpSession struct {
	client *sftp.Client
	conn   *ssh.Client
}

func (s *sftpSession) MkdirAll(dir string) error { return s.client.MkdirAll(dir) }

func (s *sftpSession) Create(name string) (io.WriteCloser, error) { return s.client.Create(name) }

func (s *sftpSession) ReadDir(dir string) ([]os.FileInfo, error) { return s.client.ReadDir(dir) }

func (s *sftpSession) Rename(from, to string) error { return s.client.Rename(from, to) }

func (s *sftpSession) Remove(name string) error { return s.client.Remove(name) }

func (s *sftpSession) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// SFTP ships archives to an SSH server
type SFTP struct {
	cfg     config.SFTPConfig
	dial    sftpDialer
	session remoteFS
	logger  *logging.Logger
}

// NewSFTP creates an SFTP destination. No connection is made until first use.
func NewSFTP(cfg config.SFTPConfig, logger *logging.Logger) *SFTP {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SFTP{cfg: cfg, dial: dialSFTP, logger: logger}
}

// Name implements Destination
func (s *SFTP) Name() string {
	return string(config.DestinationSFTP)
}

func dialSFTP(ctx context.Context, cfg config.SFTPConfig, logger *logging.Logger) (remoteFS, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(cfg, logger)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         defaultDialTimeout,
	}

	addr := cfg.Address()
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transferError(fmt.Sprintf("failed to connect to SFTP server %s", addr), err)
	}

	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	if err != nil {
		netConn.Close()
		return nil, transferError(fmt.Sprintf("SSH handshake with %s failed", addr), err)
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, transferError("failed to start SFTP subsystem", err)
	}
	return &sftpSession{client: client, conn: conn}, nil
}

// authMethods offers the private key first, then the password
func authMethods(cfg config.SFTPConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, appErrors.NewTransferError(fmt.Sprintf("cannot read private key %s", cfg.PrivateKeyPath), err)
		}

		var signer ssh.Signer
		if cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, appErrors.NewTransferError(fmt.Sprintf("private key %s is encrypted, set private_key_passphrase", cfg.PrivateKeyPath), err)
			}
			return nil, appErrors.NewTransferError(fmt.Sprintf("cannot parse private key %s", cfg.PrivateKeyPath), err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, appErrors.NewConfigError("sftp requires a password or private_key_path", nil)
	}
	return methods, nil
}

// hostKeyCallback verifies against known_hosts_path when configured.
// Without it any host key is accepted and a warning is logged.
func hostKeyCallback(cfg config.SFTPConfig, logger *logging.Logger) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsPath == "" {
		logger.WithField("host", cfg.Host).Warn("No known_hosts_path configured, SFTP host key is not verified")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, appErrors.NewTransferError(fmt.Sprintf("cannot load known hosts from %s", cfg.KnownHostsPath), err)
	}
	return callback, nil
}

func (s *SFTP) connect(ctx context.Context) (remoteFS, error) {
	if s.session != nil {
		return s.session, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, transferError("sftp connect", err)
	}

	session, err := s.dial(ctx, s.cfg, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"host": s.cfg.Host,
		"port": s.cfg.Port,
		"user": s.cfg.Username,
	}).Info("Connected to SFTP server")

	s.session = session
	return session, nil
}

// Upload implements Destination. remote_dir is created if missing and the
// file is renamed into place once fully written.
func (s *SFTP) Upload(ctx context.Context, localPath string) (RemoteRef, error) {
	session, err := s.connect(ctx)
	if err != nil {
		return RemoteRef{}, err
	}
	if err := session.MkdirAll(s.cfg.RemoteDir); err != nil {
		return RemoteRef{}, transferError(fmt.Sprintf("failed to create remote directory %s", s.cfg.RemoteDir), err)
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
	remotePath := path.Join(s.cfg.RemoteDir, name)
	partial := remotePath + partialSuffix

	out, err := session.Create(partial)
	if err != nil {
		return RemoteRef{}, transferError(fmt.Sprintf("failed to create %s", partial), err)
	}
	if _, err := io.Copy(out, &contextReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		session.Remove(partial)
		return RemoteRef{}, transferError(fmt.Sprintf("failed to upload %s", name), err)
	}
	if err := out.Close(); err != nil {
		session.Remove(partial)
		return RemoteRef{}, transferError(fmt.Sprintf("failed to upload %s", name), err)
	}
	if err := session.Rename(partial, remotePath); err != nil {
		session.Remove(partial)
		return RemoteRef{}, transferError(fmt.Sprintf("failed to finalize upload of %s", name), err)
	}

	return RemoteRef{Name: name, Path: remotePath, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List implements Destination
func (s *SFTP) List(ctx context.Context) ([]RemoteRef, error) {
	session, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	infos, err := session.ReadDir(s.cfg.RemoteDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, transferError(fmt.Sprintf("failed to list %s", s.cfg.RemoteDir), err)
	}

	refs := make([]RemoteRef, 0, len(infos))
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		refs = append(refs, RemoteRef{
			Name:    info.Name(),
			Path:    path.Join(s.cfg.RemoteDir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return refs, nil
}

// Delete implements Destination
func (s *SFTP) Delete(ctx context.Context, ref RemoteRef) error {
	if err := validateName(ref.Name); err != nil {
		return err
	}
	session, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if err := session.Remove(path.Join(s.cfg.RemoteDir, ref.Name)); err != nil {
		return transferError(fmt.Sprintf("failed to delete %s", ref.Name), err)
	}
	return nil
}

// Close implements Destination
func (s *SFTP) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}
