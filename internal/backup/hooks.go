package backup

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	appErrors "backitup/internal/errors"
	"backitup/internal/logging"
)

// Hook names used in logs and warnings
const (
	HookPreBackup    = "pre_backup"
	HookPostBackup   = "post_backup"
	HookPostTransfer = "post_transfer"
)

// HookRunner runs user shell commands at fixed points of the pipeline.
// A failing hook is reported as a warning and never aborts the run.
type HookRunner struct {
	runner CommandRunner
	shell  string
	logger *logging.Logger
}

// NewHookRunner creates a hook runner that uses sh -c
func NewHookRunner(runner CommandRunner, logger *logging.Logger) *HookRunner {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &HookRunner{runner: runner, shell: "sh", logger: logger}
}

// Run executes command through the shell. An empty command is skipped.
// The returned error, if any, is a hook warning.
func (h *HookRunner) Run(ctx context.Context, hook, command string) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}

	entry := h.logger.WithFields(map[string]interface{}{
		"hook":    hook,
		"command": command,
	})
	entry.Info("Running hook")

	var stdout bytes.Buffer
	stderr, err := h.runner.Run(ctx, h.shell, []string{"-c", command}, nil, &stdout)

	if out := strings.TrimSpace(stdout.String()); out != "" {
		entry.WithField("stdout", truncate(out, maxStderrBytes)).Info("Hook output")
	}
	if errOut := strings.TrimSpace(string(stderr)); errOut != "" {
		entry.WithField("stderr", truncate(errOut, maxStderrBytes)).Warn("Hook error output")
	}

	if err != nil {
		return appErrors.NewHookWarning(fmt.Sprintf("%s hook failed", hook), err).
			WithContext("command", command)
	}
	return nil
}
