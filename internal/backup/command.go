package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// CommandRunner executes an external program. Stdout is streamed to the
// given writer; stderr is captured and returned for diagnostics.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, env []string, stdout io.Writer) (stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run implements CommandRunner. A nil env inherits the current environment.
func (ExecRunner) Run(ctx context.Context, name string, args []string, env []string, stdout io.Writer) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		// a killed child reports only its signal
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return stderr.Bytes(), err
}
