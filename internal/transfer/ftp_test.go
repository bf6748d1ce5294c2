package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFTP is an in-memory FTP server. Relative paths resolve against
// the session's working directory, which starts at home on login.
type fakeFTP struct {
	user, password string
	home, cwd      string
	dirs           map[string]bool
	files          map[string][]byte
	loginErr       error
	storErr        error
	calls          []string
	quit           bool
}

func newFakeFTP() *fakeFTP {
	return &fakeFTP{home: "/", cwd: "/", dirs: map[string]bool{"/": true}, files: map[string][]byte{}}
}

func (f *fakeFTP) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(f.cwd, p)
}

func (f *fakeFTP) Login(user, password string) error {
	f.calls = append(f.calls, "Login")
	f.user, f.password = user, password
	f.cwd = f.home
	return f.loginErr
}

func (f *fakeFTP) CurrentDir() (string, error) {
	return f.cwd, nil
}

func (f *fakeFTP) ChangeDir(p string) error {
	p = f.resolve(p)
	if !f.dirs[p] {
		return errors.New("550 no such directory")
	}
	f.cwd = p
	return nil
}

func (f *fakeFTP) MakeDir(p string) error {
	p = f.resolve(p)
	f.calls = append(f.calls, "MakeDir "+p)
	if !f.dirs[path.Dir(p)] {
		return errors.New("550 could not create directory " + p)
	}
	f.dirs[p] = true
	return nil
}

func (f *fakeFTP) Stor(p string, r io.Reader) error {
	p = f.resolve(p)
	f.calls = append(f.calls, "Stor "+p)
	if f.storErr != nil {
		return f.storErr
	}
	if !f.dirs[path.Dir(p)] {
		return errors.New("553 could not create file " + p)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[p] = data
	return nil
}

func (f *fakeFTP) Rename(from, to string) error {
	from, to = f.resolve(from), f.resolve(to)
	f.calls = append(f.calls, "Rename "+from+" "+to)
	data, ok := f.files[from]
	if !ok {
		return errors.New("550 not found")
	}
	delete(f.files, from)
	f.files[to] = data
	return nil
}

func (f *fakeFTP) List(dir string) ([]*ftp.Entry, error) {
	dir = f.resolve(dir)
	var entries []*ftp.Entry
	for d := range f.dirs {
		if path.Dir(d) == dir && d != dir {
			entries = append(entries, &ftp.Entry{Name: path.Base(d), Type: ftp.EntryTypeFolder})
		}
	}
	for p, data := range f.files {
		if path.Dir(p) == dir {
			entries = append(entries, &ftp.Entry{
				Name: path.Base(p),
				Type: ftp.EntryTypeFile,
				Size: uint64(len(data)),
				Time: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			})
		}
	}
	return entries, nil
}

func (f *fakeFTP) Delete(p string) error {
	p = f.resolve(p)
	f.calls = append(f.calls, "Delete "+p)
	if _, ok := f.files[p]; !ok {
		return errors.New("550 not found")
	}
	delete(f.files, p)
	return nil
}

func (f *fakeFTP) Quit() error {
	f.quit = true
	return nil
}

func newTestFTP(conn *fakeFTP, dials *int) *FTP {
	return newTestFTPDir(conn, dials, "/srv/backups/web")
}

func newTestFTPDir(conn *fakeFTP, dials *int, remoteDir string) *FTP {
	dest := NewFTP(config.FTPConfig{
		Host:        "ftp.example.com",
		Port:        21,
		Username:    "backup",
		Password:    "s3cret",
		RemoteDir:   remoteDir,
		PassiveMode: true,
	}, logging.NewNopLogger())
	dest.dial = func(ctx context.Context, addr string) (ftpConn, error) {
		*dials++
		return conn, nil
	}
	return dest
}

func TestFTP_UploadCreatesDirAndRenames(t *testing.T) {
	src := filepath.Join(t.TempDir(), "20240102_030405_web_root_files_and_db.tar.gz")
	writeFile(t, src, "combined")

	conn := newFakeFTP()
	dials := 0
	dest := newTestFTP(conn, &dials)

	ref, err := dest.Upload(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, "/srv/backups/web/20240102_030405_web_root_files_and_db.tar.gz", ref.Path)
	assert.Equal(t, []byte("combined"), conn.files[ref.Path])
	assert.NotContains(t, conn.files, ref.Path+partialSuffix)
	assert.Equal(t, "backup", conn.user)
	assert.Equal(t, "s3cret", conn.password)
	assert.True(t, conn.dirs["/srv/backups/web"])
	assert.Contains(t, conn.calls, "Rename /srv/backups/web/20240102_030405_web_root_files_and_db.tar.gz.partial /srv/backups/web/20240102_030405_web_root_files_and_db.tar.gz")
}

func TestFTP_RelativeRemoteDirAcrossRuns(t *testing.T) {
	tests := []struct {
		name      string
		remoteDir string
		wantDir   string
	}{
		{name: "single component", remoteDir: "backups", wantDir: "/home/backup/backups"},
		{name: "nested", remoteDir: "backups/web", wantDir: "/home/backup/backups/web"},
		{name: "dot prefix", remoteDir: "./backups", wantDir: "/home/backup/backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeFTP()
			conn.home = "/home/backup"
			conn.dirs["/home"] = true
			conn.dirs["/home/backup"] = true

			srcDir := t.TempDir()
			days := []string{"20240101_020000", "20240102_020000", "20240103_020000"}
			for _, ts := range days {
				src := filepath.Join(srcDir, ts+"_web_root_files_and_db.tar.gz")
				writeFile(t, src, ts)

				// each cron run opens a fresh session on the same server
				dials := 0
				dest := newTestFTPDir(conn, &dials, tt.remoteDir)
				ref, err := dest.Upload(context.Background(), src)
				require.NoError(t, err, ts)
				assert.Equal(t, path.Join(tt.wantDir, filepath.Base(src)), ref.Path)
				require.NoError(t, dest.Close())
			}

			dials := 0
			refs, err := newTestFTPDir(conn, &dials, tt.remoteDir).List(context.Background())
			require.NoError(t, err)
			assert.Len(t, refs, len(days))
			for _, ts := range days {
				assert.Equal(t, []byte(ts), conn.files[path.Join(tt.wantDir, ts+"_web_root_files_and_db.tar.gz")])
			}
		})
	}
}

func TestFTP_ReusesConnection(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.tar.gz")
	writeFile(t, src, "a")

	conn := newFakeFTP()
	dials := 0
	dest := newTestFTP(conn, &dials)
	ctx := context.Background()

	_, err := dest.Upload(ctx, src)
	require.NoError(t, err)
	_, err = dest.List(ctx)
	require.NoError(t, err)
	require.NoError(t, dest.Delete(ctx, RemoteRef{Name: "a.tar.gz"}))

	assert.Equal(t, 1, dials)
	require.NoError(t, dest.Close())
	assert.True(t, conn.quit)
	assert.NoError(t, dest.Close())
}

func TestFTP_ListOnlyFiles(t *testing.T) {
	conn := newFakeFTP()
	conn.dirs["/srv/backups/web"] = true
	conn.dirs["/srv/backups/web/old"] = true
	conn.files["/srv/backups/web/one.tar.gz"] = []byte("1")
	conn.files["/srv/backups/web/two.tar.gz"] = []byte("22")
	dials := 0

	refs, err := newTestFTP(conn, &dials).List(context.Background())
	require.NoError(t, err)

	var names []string
	for _, r := range refs {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"one.tar.gz", "two.tar.gz"}, names)
}

func TestFTP_LoginFailure(t *testing.T) {
	conn := newFakeFTP()
	conn.loginErr = errors.New("530 Login incorrect")
	dials := 0

	_, err := newTestFTP(conn, &dials).List(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))
	assert.Contains(t, err.Error(), "login failed")
	assert.True(t, conn.quit)
}

func TestFTP_StorFailureCleansUp(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.tar.gz")
	writeFile(t, src, "a")

	conn := newFakeFTP()
	conn.storErr = errors.New("452 insufficient storage")
	dials := 0

	_, err := newTestFTP(conn, &dials).Upload(context.Background(), src)
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))
	assert.Contains(t, conn.calls, "Delete /srv/backups/web/a.tar.gz.partial")
}

func TestFTP_DialFailure(t *testing.T) {
	dest := NewFTP(config.FTPConfig{Host: "ftp.example.com", Port: 21, RemoteDir: "/"}, logging.NewNopLogger())
	dest.dial = func(ctx context.Context, addr string) (ftpConn, error) {
		assert.Equal(t, "ftp.example.com:21", addr)
		return nil, errors.New("connection refused")
	}

	_, err := dest.List(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))
}

func TestFTP_CancelledBeforeConnect(t *testing.T) {
	conn := newFakeFTP()
	dials := 0
	dest := newTestFTP(conn, &dials)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dest.List(ctx)
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeInterruption))
	assert.Zero(t, dials)
}

func TestNewFTP_ActiveModeWarns(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Config{Level: logging.LogLevelInfo, Output: &buf, Format: "text"})
	require.NoError(t, err)

	NewFTP(config.FTPConfig{Host: "ftp.example.com", PassiveMode: false}, logger)
	assert.True(t, strings.Contains(buf.String(), "passive mode"))
}
