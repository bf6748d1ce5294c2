package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"backitup/internal/backup"
	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"
	"backitup/internal/pipeline"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yaml"

// Exit codes
const (
	ExitOK          = 0
	ExitStageFailed = 1
	ExitConfigError = 2
)

var logLevel string

// lookupEnv and runPipeline are replaced in tests
var (
	lookupEnv = os.LookupEnv
	now       = time.Now

	runPipeline = func(ctx context.Context, cfg *config.Config, run pipeline.RunInfo, logger *logging.Logger) (*pipeline.Result, error) {
		deps, err := pipeline.NewDeps(cfg, logger)
		if err != nil {
			return nil, err
		}
		return pipeline.NewOrchestrator(cfg, deps, run, logger).Run(ctx), nil
	}
)

// rootCmd runs one backup cycle
var rootCmd = &cobra.Command{
	Use:   "backitup [config-path]",
	Short: "Back up a MySQL database and a directory tree",
	Long: `backitup dumps a MySQL or MariaDB database, archives a directory tree,
combines both into one timestamped archive and optionally ships it to an
FTP or SFTP server. Old backups and run logs are rotated after every
successful run.

Settings come from a YAML file (default config.yaml) and BACKITUP_*
environment variables. Environment values take precedence.

Examples:
  # Run with ./config.yaml
  backitup

  # Run with an explicit file
  backitup /etc/backitup/web01.yaml

  # Run from the environment only
  BACKITUP_SERVER_NAME=web01 BACKITUP_DB_TYPE=mysql BACKITUP_DB_HOST=localhost \
  BACKITUP_FILES_DIR_PATH=/var/www backitup /nonexistent.yaml`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackup,
}

// ExitError carries the process exit status of a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if appErrors.IsType(err, appErrors.ErrorTypeConfig) {
		return ExitConfigError
	}
	return ExitStageFailed
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(ExitCode(err))
	}
}

func init() {
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override LOGS.log_level (debug, info, warn, error)")
}

func configPath(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return defaultConfigPath
}

// loadConfig resolves the configuration and applies flag overrides
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(configPath(args), lookupEnv)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return nil, appErrors.NewConfigError("invalid --log-level", err)
		}
		cfg.Logs.Level = string(level)
	}
	return cfg, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	run := pipeline.RunInfo{ID: uuid.NewString(), StartedAt: now()}
	logger, err := newRunLogger(cfg, run, cmd.OutOrStdout())
	if err != nil {
		return &ExitError{Code: ExitStageFailed, Err: err}
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runPipeline(ctx, cfg, run, logger)
	if err != nil {
		logger.WithError(err).Error("Backup run could not start")
		return err
	}

	printSummary(cmd.OutOrStdout(), result)
	if !result.Succeeded() {
		return &ExitError{Code: result.ExitCode(), Err: result.Err}
	}
	return nil
}

// newRunLogger logs to out and to {log_dir}/{timestamp}_backup.log
func newRunLogger(cfg *config.Config, run pipeline.RunInfo, out io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logs.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logging.Config{
		Level:     level,
		Output:    out,
		Format:    cfg.Logs.Format,
		LogFile:   filepath.Join(cfg.Logs.Dir, backup.LogFileName(run.Timestamp())),
		MaxSizeMB: cfg.Logs.MaxSizeMB,
		Fields: map[string]interface{}{
			"run_id": run.ID,
			"server": cfg.System.ServerName,
		},
		Secrets: cfg.Secrets(),
	})
}

func printSummary(w io.Writer, r *pipeline.Result) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	duration := r.Duration.Round(time.Millisecond)
	if r.Succeeded() {
		line := fmt.Sprintf("%s backup %s completed in %s", green("OK"), r.Timestamp, duration)
		if n := len(r.Warnings); n > 0 {
			line += " " + yellow(fmt.Sprintf("(%d warnings)", n))
		}
		fmt.Fprintln(w, line)
		return
	}
	fmt.Fprintf(w, "%s backup %s failed at %s after %s: %v\n", red("FAILED"), r.Timestamp, r.FailedStage, duration, r.Err)
}
