package transfer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// pipeSession serves SFTP in-process against the local filesystem
func pipeSession(t *testing.T) *sftpSession {
	t.Helper()
	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{serverRead, serverWrite})
	require.NoError(t, err)
	go server.Serve()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	require.NoError(t, err)

	t.Cleanup(func() {
		// the client's reader only returns once the server side hangs up
		serverWrite.Close()
		client.Close()
		server.Close()
	})
	return &sftpSession{client: client}
}

func newTestSFTP(t *testing.T, remoteDir string) (*SFTP, *int) {
	t.Helper()
	session := pipeSession(t)
	dials := 0
	dest := NewSFTP(config.SFTPConfig{
		Host:      "sftp.example.com",
		Port:      22,
		Username:  "backup",
		Password:  "s3cret",
		RemoteDir: remoteDir,
	}, logging.NewNopLogger())
	dest.dial = func(ctx context.Context, cfg config.SFTPConfig, logger *logging.Logger) (remoteFS, error) {
		dials++
		return session, nil
	}
	return dest, &dials
}

func TestSFTP_UploadListDelete(t *testing.T) {
	remoteDir := filepath.Join(t.TempDir(), "remote", "web")
	dest, dials := newTestSFTP(t, remoteDir)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "20240102_030405_web_root_files_and_db.tar.gz")
	writeFile(t, src, "combined archive")

	ref, err := dest.Upload(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(src), ref.Name)

	data, err := os.ReadFile(filepath.Join(remoteDir, ref.Name))
	require.NoError(t, err)
	assert.Equal(t, "combined archive", string(data))
	_, err = os.Stat(filepath.Join(remoteDir, ref.Name+partialSuffix))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.Mkdir(filepath.Join(remoteDir, "subdir"), 0755))
	refs, err := dest.List(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, ref.Name, refs[0].Name)
	assert.Equal(t, int64(len("combined archive")), refs[0].Size)

	require.NoError(t, dest.Delete(ctx, refs[0]))
	_, err = os.Stat(filepath.Join(remoteDir, ref.Name))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 1, *dials)
}

func TestSFTP_DeleteRejectsPathNames(t *testing.T) {
	dest, dials := newTestSFTP(t, t.TempDir())
	err := dest.Delete(context.Background(), RemoteRef{Name: "../escape"})
	require.Error(t, err)
	assert.Zero(t, *dials)
}

func TestSFTP_DialFailure(t *testing.T) {
	dest := NewSFTP(config.SFTPConfig{Host: "sftp.example.com", Port: 22, Password: "x"}, logging.NewNopLogger())
	dest.dial = func(ctx context.Context, cfg config.SFTPConfig, logger *logging.Logger) (remoteFS, error) {
		return nil, appErrors.NewTransferError("failed to connect", errors.New("connection refused"))
	}

	_, err := dest.List(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))
	assert.NoError(t, dest.Close())
}

func writeKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "backup")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "backup", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestAuthMethods(t *testing.T) {
	plainKey := writeKey(t, "")
	encryptedKey := writeKey(t, "hunter2")

	tests := []struct {
		name      string
		cfg       config.SFTPConfig
		wantCount int
		wantErr   string
	}{
		{name: "password", cfg: config.SFTPConfig{Password: "pw"}, wantCount: 1},
		{name: "key", cfg: config.SFTPConfig{PrivateKeyPath: plainKey}, wantCount: 1},
		{name: "key and password", cfg: config.SFTPConfig{PrivateKeyPath: plainKey, Password: "pw"}, wantCount: 2},
		{name: "encrypted key", cfg: config.SFTPConfig{PrivateKeyPath: encryptedKey, PrivateKeyPassphrase: "hunter2"}, wantCount: 1},
		{name: "encrypted key without passphrase", cfg: config.SFTPConfig{PrivateKeyPath: encryptedKey}, wantErr: "private_key_passphrase"},
		{name: "wrong passphrase", cfg: config.SFTPConfig{PrivateKeyPath: encryptedKey, PrivateKeyPassphrase: "nope"}, wantErr: "cannot parse private key"},
		{name: "missing key file", cfg: config.SFTPConfig{PrivateKeyPath: filepath.Join(t.TempDir(), "absent")}, wantErr: "cannot read private key"},
		{name: "nothing configured", cfg: config.SFTPConfig{}, wantErr: "password or private_key_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			methods, err := authMethods(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, methods, tt.wantCount)
		})
	}
}

func TestHostKeyCallback(t *testing.T) {
	logger := logging.NewNopLogger()

	cb, err := hostKeyCallback(config.SFTPConfig{Host: "h"}, logger)
	require.NoError(t, err)
	assert.NotNil(t, cb)

	_, err = hostKeyCallback(config.SFTPConfig{Host: "h", KnownHostsPath: filepath.Join(t.TempDir(), "known_hosts")}, logger)
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := "sftp.example.com,192.0.2.10 " + string(ssh.MarshalAuthorizedKey(sshPub))
	require.NoError(t, os.WriteFile(knownHosts, []byte(line), 0644))

	cb, err = hostKeyCallback(config.SFTPConfig{Host: "sftp.example.com", KnownHostsPath: knownHosts}, logger)
	require.NoError(t, err)
	assert.NoError(t, cb("sftp.example.com:22", &fakeAddr{}, sshPub))
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "192.0.2.10:22" }
