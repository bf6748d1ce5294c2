package backup

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"testing"

	"backitup/internal/logging"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, name string, args []string, env []string, stdout io.Writer) ([]byte, error) {
	ret := m.Called(ctx, name, args, env, stdout)
	var stderr []byte
	if b := ret.Get(0); b != nil {
		stderr = b.([]byte)
	}
	return stderr, ret.Error(1)
}

// writeStdout makes a mocked Run emit content on the stdout writer
func writeStdout(content string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(4).(io.Writer).Write([]byte(content))
	}
}

type tarMember struct {
	header *tar.Header
	body   []byte
}

// readArchive returns the members of a .tar.gz keyed by name
func readArchive(t *testing.T, path string) map[string]tarMember {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	members := make(map[string]tarMember)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		members[hdr.Name] = tarMember{header: hdr, body: body}
	}
	return members
}

func testLogger() *logging.Logger {
	return logging.NewNopLogger()
}
