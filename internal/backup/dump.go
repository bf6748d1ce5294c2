package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/klauspost/compress/gzip"
)

// DumpFileName is the single member of the database archive
const DumpFileName = "database_dump.sql"

// maxStderrBytes bounds the tool output carried in an error
const maxStderrBytes = 4096

// DumpStage runs the dump tool and packs its output into the db archive
type DumpStage struct {
	cfg     config.DBConfig
	runner  CommandRunner
	prober  Prober
	logger  *logging.Logger
	environ func() []string
}

// NewDumpStage creates a dump stage. The prober is only used when
// preflight_check is enabled; pass nil to build one from the config.
func NewDumpStage(cfg config.DBConfig, runner CommandRunner, prober Prober, logger *logging.Logger) *DumpStage {
	if runner == nil {
		runner = ExecRunner{}
	}
	if prober == nil && cfg.PreflightCheck {
		prober = NewMySQLProber(cfg)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &DumpStage{
		cfg:     cfg,
		runner:  runner,
		prober:  prober,
		logger:  logger,
		environ: os.Environ,
	}
}

// Args returns the dump tool arguments. The password is never among them;
// it reaches the tool through MYSQL_PWD.
func (s *DumpStage) Args() []string {
	args := []string{
		"-h", s.cfg.Host,
		"-P", strconv.Itoa(s.cfg.Port),
		"-u", s.cfg.User,
	}
	if s.cfg.AllDatabases() {
		return append(args, config.AllDatabases)
	}
	return append(args, s.cfg.Name)
}

// Dump writes the dump into workDir and archives it as name
func (s *DumpStage) Dump(ctx context.Context, workDir, name string) (*Artifact, error) {
	if s.cfg.PreflightCheck && s.prober != nil {
		if err := s.prober.Ping(ctx); err != nil {
			return nil, err
		}
		s.logger.WithField("host", s.cfg.Host).Info("Database preflight check passed")
	}

	sqlPath := filepath.Join(workDir, DumpFileName)
	if err := s.runDump(ctx, sqlPath); err != nil {
		os.Remove(sqlPath)
		return nil, err
	}
	defer os.Remove(sqlPath)

	dst := filepath.Join(workDir, name)
	w, err := newArchiveWriter(dst, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if err := w.addFile(ctx, sqlPath, DumpFileName); err != nil {
		w.abort()
		return nil, err
	}
	size, err := w.Close()
	if err != nil {
		return nil, err
	}

	return &Artifact{Kind: KindDB, Name: name, Path: dst, Size: size}, nil
}

func (s *DumpStage) runDump(ctx context.Context, sqlPath string) error {
	out, err := os.OpenFile(sqlPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return appErrors.ClassifyFileSystemError("failed to create dump file", err)
	}

	args := s.Args()
	s.logger.WithFields(map[string]interface{}{
		"command":  logging.RedactArgs(s.cfg.DumpCommand, args, s.cfg.Password),
		"database": s.cfg.Name,
	}).Info("Running database dump")

	stderr, runErr := s.runner.Run(ctx, s.cfg.DumpCommand, args, s.env(), out)
	closeErr := out.Close()

	if runErr != nil {
		return s.toolError(runErr, stderr)
	}
	if closeErr != nil {
		return appErrors.ClassifyFileSystemError("failed to write dump file", closeErr)
	}
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		s.logger.WithField("stderr", truncate(msg, maxStderrBytes)).Warn("Dump tool wrote to stderr")
	}
	return nil
}

func (s *DumpStage) env() []string {
	env := s.environ()
	if s.cfg.Password != "" {
		env = append(env, "MYSQL_PWD="+s.cfg.Password)
	}
	return env
}

func (s *DumpStage) toolError(err error, stderr []byte) error {
	if errors.Is(err, context.Canceled) {
		return appErrors.NewAppError(appErrors.ErrorTypeInterruption, "dump cancelled", err)
	}

	msg := strings.TrimSpace(string(stderr))
	var appErr *appErrors.AppError
	switch {
	case errors.Is(err, exec.ErrNotFound):
		appErr = appErrors.NewExternalToolError(fmt.Sprintf("dump command %q not found", s.cfg.DumpCommand), err)
	case msg != "":
		appErr = appErrors.NewExternalToolError(fmt.Sprintf("%s failed: %s", s.cfg.DumpCommand, truncate(msg, maxStderrBytes)), err)
	default:
		appErr = appErrors.NewExternalToolError(fmt.Sprintf("%s failed", s.cfg.DumpCommand), err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		appErr.WithContext("exit_code", exitErr.ExitCode())
	}
	return appErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... [truncated]"
}
