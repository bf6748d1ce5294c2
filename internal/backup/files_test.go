package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appErrors "backitup/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "www")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "site", "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>hi</h1>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "site", "assets", "app.js"), []byte("console.log(1)"), 0644))
	require.NoError(t, os.Symlink("index.html", filepath.Join(root, "home.html")))
	return root
}

func TestFilesStage_Archive(t *testing.T) {
	root := buildTree(t)
	workDir := t.TempDir()

	stage := NewFilesStage(root, testLogger())
	artifact, err := stage.Archive(context.Background(), workDir, "20250314_021500_web01_root_files.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, KindFiles, artifact.Kind)

	members := readArchive(t, artifact.Path)

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{
		"www/",
		"www/home.html",
		"www/index.html",
		"www/site/",
		"www/site/assets/",
		"www/site/assets/app.js",
	}, names)

	assert.Equal(t, "<h1>hi</h1>", string(members["www/index.html"].body))
	assert.Equal(t, "console.log(1)", string(members["www/site/assets/app.js"].body))
	assert.Equal(t, "index.html", members["www/home.html"].header.Linkname)
}

func TestFilesStage_SymlinkedRootIsFollowed(t *testing.T) {
	target := buildTree(t)
	link := filepath.Join(t.TempDir(), "current")
	require.NoError(t, os.Symlink(target, link))

	artifact, err := NewFilesStage(link, testLogger()).Archive(context.Background(), t.TempDir(), "x_root_files.tar.gz")
	require.NoError(t, err)

	members := readArchive(t, artifact.Path)
	require.Contains(t, members, "current/")
	assert.Equal(t, "<h1>hi</h1>", string(members["current/index.html"].body))
	assert.Equal(t, "console.log(1)", string(members["current/site/assets/app.js"].body))
	assert.Equal(t, "index.html", members["current/home.html"].header.Linkname)
}

func TestFilesStage_MissingDirectory(t *testing.T) {
	stage := NewFilesStage(filepath.Join(t.TempDir(), "does-not-exist"), testLogger())

	artifact, err := stage.Archive(context.Background(), t.TempDir(), "x_root_files.tar.gz")
	require.Error(t, err)
	assert.Nil(t, artifact)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeArchive))
	assert.Contains(t, err.Error(), "not found")
}

func TestFilesStage_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := NewFilesStage(file, testLogger()).Archive(context.Background(), t.TempDir(), "x_root_files.tar.gz")
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeArchive))
}

func TestFilesStage_Cancelled(t *testing.T) {
	root := buildTree(t)
	workDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFilesStage(root, testLogger()).Archive(ctx, workDir, "x_root_files.tar.gz")
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeInterruption))

	entries, _ := os.ReadDir(workDir)
	assert.Empty(t, entries, "partial archive must be removed")
}
