package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLocal_UploadCopiesIntoDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "20240102_030405_web-1_root_files_and_db.tar.gz")
	writeFile(t, src, "archive")
	dir := filepath.Join(t.TempDir(), "nested", "backups")

	local := NewLocal(dir, logging.NewNopLogger())
	ref, err := local.Upload(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(src), ref.Name)
	assert.Equal(t, int64(len("archive")), ref.Size)

	data, err := os.ReadFile(filepath.Join(dir, ref.Name))
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))

	_, err = os.Stat(filepath.Join(dir, ref.Name+partialSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestLocal_UploadInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tar.gz")
	writeFile(t, src, "x")

	local := NewLocal(dir, logging.NewNopLogger())
	ref, err := local.Upload(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, src, ref.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocal_UploadMissingSource(t *testing.T) {
	local := NewLocal(t.TempDir(), logging.NewNopLogger())
	_, err := local.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.tar.gz"))
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))
}

func TestLocal_UploadCancelled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.tar.gz")
	writeFile(t, src, "payload")
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal(dir, logging.NewNopLogger()).Upload(ctx, src)
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeInterruption))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_ListSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.tar.gz"), "1")
	writeFile(t, filepath.Join(dir, "two.tar.gz"), "22")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	refs, err := NewLocal(dir, logging.NewNopLogger()).List(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"one.tar.gz", "two.tar.gz"}, names)
}

func TestLocal_ListMissingDirectory(t *testing.T) {
	refs, err := NewLocal(filepath.Join(t.TempDir(), "absent"), logging.NewNopLogger()).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLocal_Delete(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.tar.gz"), "x")
	local := NewLocal(dir, logging.NewNopLogger())

	require.NoError(t, local.Delete(context.Background(), RemoteRef{Name: "old.tar.gz"}))
	_, err := os.Stat(filepath.Join(dir, "old.tar.gz"))
	assert.True(t, os.IsNotExist(err))

	err = local.Delete(context.Background(), RemoteRef{Name: "old.tar.gz"})
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeTransfer))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain", input: "20240102_030405_web_db.tar.gz"},
		{name: "empty", input: "", wantErr: true},
		{name: "dot", input: ".", wantErr: true},
		{name: "parent", input: "..", wantErr: true},
		{name: "slash", input: "../etc/passwd", wantErr: true},
		{name: "backslash", input: `a\b`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
