// Package pipeline sequences one backup run: hooks, dump, files archive,
// combine, transfer and retention, with the failure policy of each stage.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"backitup/internal/backup"
	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"
	"backitup/internal/retention"
	"backitup/internal/transfer"
)

// HookRunner runs a named user hook
type HookRunner interface {
	Run(ctx context.Context, hook, command string) error
}

// Dumper produces the database archive
type Dumper interface {
	Dump(ctx context.Context, workDir, name string) (*backup.Artifact, error)
}

// FilesArchiver produces the files archive
type FilesArchiver interface {
	Archive(ctx context.Context, workDir, name string) (*backup.Artifact, error)
}

// Combiner bundles the stage archives into the final artifact
type Combiner interface {
	Combine(ctx context.Context, parts []*backup.Artifact, name string) (*backup.Artifact, error)
}

// Rotator applies a keep-N policy to a collection
type Rotator interface {
	Rotate(ctx context.Context, kind retention.Kind, coll retention.Collection, suffix string, keepN int) *retention.Result
}

// Deps are the collaborators of one run
type Deps struct {
	Hooks       HookRunner
	Dumper      Dumper
	Files       FilesArchiver
	Combiner    Combiner
	Destination transfer.Destination
	// LocalBackups lists backup_dir for local retention.
	LocalBackups retention.Collection
	// Logs lists log_dir for log retention.
	Logs      retention.Collection
	Retention Rotator
}

// RunInfo identifies one invocation
type RunInfo struct {
	ID        string
	StartedAt time.Time
}

// Timestamp is the run timestamp shared by every artifact name
func (r RunInfo) Timestamp() string {
	return backup.FormatTimestamp(r.StartedAt)
}

// Result describes how a run ended
type Result struct {
	RunID     string
	Timestamp string
	// State is StageDone or StageFailed.
	State Stage
	// FailedStage is the stage that failed when State is StageFailed.
	FailedStage Stage
	Err         error
	Warnings    []error
	Visited     []Stage
	Artifacts   []*backup.Artifact
	Uploaded    *transfer.RemoteRef
	Rotations   []*retention.Result
	Duration    time.Duration
}

// Succeeded reports whether the run reached StageDone
func (r *Result) Succeeded() bool {
	return r.State == StageDone
}

// ExitCode maps the outcome to the process exit status
func (r *Result) ExitCode() int {
	if r.Succeeded() {
		return 0
	}
	if appErrors.IsType(r.Err, appErrors.ErrorTypeConfig) {
		return 2
	}
	return 1
}

// Ran reports whether stage s was entered
func (r *Result) Ran(s Stage) bool {
	for _, v := range r.Visited {
		if v == s {
			return true
		}
	}
	return false
}

// Orchestrator drives the stages of one run
type Orchestrator struct {
	cfg     *config.Config
	deps    Deps
	run     RunInfo
	logger  *logging.Logger
	workDir string
	tempDir string

	// set while running
	dbArchive    *backup.Artifact
	filesArchive *backup.Artifact
	combined     *backup.Artifact
}

// NewOrchestrator creates an orchestrator for one run
func NewOrchestrator(cfg *config.Config, deps Deps, run RunInfo, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return &Orchestrator{cfg: cfg, deps: deps, run: run, logger: logger}
}

// SetTempDir sets the parent of the per-run work directory. The default
// is the system temporary directory.
func (o *Orchestrator) SetTempDir(dir string) {
	o.tempDir = dir
}

type step struct {
	stage Stage
	run   func(ctx context.Context, result *Result) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{StagePreHook, o.hook(backup.HookPreBackup, o.cfg.Commands.PreBackup)},
		{StageDump, o.dump},
		{StageFilesArchive, o.archiveFiles},
		{StageCombine, o.combine},
		{StagePostHook, o.hook(backup.HookPostBackup, o.cfg.Commands.PostBackup)},
		{StageTransfer, o.transfer},
		{StagePostTransferHook, o.hook(backup.HookPostTransfer, o.cfg.Commands.PostTransfer)},
		{StageRetention, o.rotate},
	}
}

// Run executes the state machine. A fatal failure stops the run at the
// failing stage, so retention never runs after one. Hook failures and
// retention deletion failures are collected as warnings.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	startTime := time.Now()
	result := &Result{
		RunID:     o.run.ID,
		Timestamp: o.run.Timestamp(),
		Visited:   []Stage{StageInit},
	}

	o.logger.WithFields(map[string]interface{}{
		"server":      o.cfg.System.ServerName,
		"destination": o.cfg.Backup.DestinationType,
		"timestamp":   result.Timestamp,
	}).Info("Backup run starting")

	if err := o.init(); err != nil {
		return o.fail(result, StageInit, err, startTime)
	}
	defer o.cleanup()
	defer o.closeDestination()

	for _, s := range o.steps() {
		if err := ctx.Err(); err != nil {
			return o.fail(result, s.stage, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "run interrupted", err), startTime)
		}

		result.Visited = append(result.Visited, s.stage)
		done := o.logger.LogOperationStart(s.stage.String(), nil)
		err := s.run(ctx, result)

		if err != nil && !appErrors.IsFatal(err) {
			done(nil)
			o.logger.WithError(err).WithField("stage", s.stage.String()).Warn("Stage failed, continuing")
			result.Warnings = append(result.Warnings, err)
			continue
		}
		done(err)
		if err != nil {
			return o.fail(result, s.stage, err, startTime)
		}
	}

	result.State = StageDone
	result.Visited = append(result.Visited, StageDone)
	result.Duration = time.Since(startTime)

	o.logger.WithFields(map[string]interface{}{
		"duration": result.Duration.String(),
		"warnings": len(result.Warnings),
	}).Info("Backup run completed")
	return result
}

func (o *Orchestrator) fail(result *Result, stage Stage, err error, startTime time.Time) *Result {
	result.State = StageFailed
	result.FailedStage = stage
	result.Err = err
	result.Visited = append(result.Visited, StageFailed)
	result.Duration = time.Since(startTime)

	o.logger.WithFields(map[string]interface{}{
		"stage":    stage.String(),
		"duration": result.Duration.String(),
	}).WithError(err).Error("Backup run failed, retention skipped")
	return result
}

func (o *Orchestrator) init() error {
	dir, err := os.MkdirTemp(o.tempDir, "backitup-"+o.run.Timestamp()+"-")
	if err != nil {
		return appErrors.ClassifyFileSystemError("failed to create work directory", err)
	}
	o.workDir = dir
	return nil
}

// cleanup removes the work directory. The combined archive lives in
// backup_dir and is not affected.
func (o *Orchestrator) cleanup() {
	if o.workDir == "" {
		return
	}
	if err := os.RemoveAll(o.workDir); err != nil {
		o.logger.WithError(err).WithField("dir", o.workDir).Warn("Failed to remove work directory")
	}
}

func (o *Orchestrator) closeDestination() {
	if o.deps.Destination == nil {
		return
	}
	if err := o.deps.Destination.Close(); err != nil {
		o.logger.WithError(err).Warn("Failed to close destination")
	}
}

func (o *Orchestrator) archiveName(kind backup.Kind) string {
	return backup.ArchiveName(o.run.Timestamp(), o.cfg.System.ServerName, kind)
}

// hook runs a user command. Whatever it returns is downgraded to a hook
// warning so a broken hook never aborts the run.
func (o *Orchestrator) hook(name, command string) func(context.Context, *Result) error {
	return func(ctx context.Context, _ *Result) error {
		err := o.deps.Hooks.Run(ctx, name, command)
		if err == nil || appErrors.IsType(err, appErrors.ErrorTypeHook) {
			return err
		}
		return appErrors.NewHookWarning(fmt.Sprintf("%s hook failed", name), err)
	}
}

func (o *Orchestrator) dump(ctx context.Context, result *Result) error {
	artifact, err := o.deps.Dumper.Dump(ctx, o.workDir, o.archiveName(backup.KindDB))
	if err != nil {
		return err
	}
	o.dbArchive = artifact
	result.Artifacts = append(result.Artifacts, artifact)
	return nil
}

func (o *Orchestrator) archiveFiles(ctx context.Context, result *Result) error {
	artifact, err := o.deps.Files.Archive(ctx, o.workDir, o.archiveName(backup.KindFiles))
	if err != nil {
		return err
	}
	o.filesArchive = artifact
	result.Artifacts = append(result.Artifacts, artifact)
	return nil
}

func (o *Orchestrator) combine(ctx context.Context, result *Result) error {
	parts := []*backup.Artifact{o.dbArchive, o.filesArchive}
	artifact, err := o.deps.Combiner.Combine(ctx, parts, o.archiveName(backup.KindCombined))
	if err != nil {
		return err
	}
	o.combined = artifact
	result.Artifacts = append(result.Artifacts, artifact)

	o.logger.WithFields(map[string]interface{}{
		"archive": artifact.Name,
		"size":    artifact.Size,
	}).Info("Backup archive created")
	return nil
}

func (o *Orchestrator) isRemote() bool {
	return o.deps.Destination.Name() != string(config.DestinationLocal)
}

// transfer uploads the combined archive. The local copy is removed only
// after a successful upload to a remote destination.
func (o *Orchestrator) transfer(ctx context.Context, result *Result) error {
	ref, err := o.deps.Destination.Upload(ctx, o.combined.Path)
	if err != nil {
		return err
	}
	result.Uploaded = &ref

	o.logger.WithFields(map[string]interface{}{
		"destination": o.deps.Destination.Name(),
		"path":        ref.Path,
	}).Info("Backup archive transferred")

	if o.isRemote() && !o.cfg.Backup.KeepLocalCopy {
		if err := os.Remove(o.combined.Path); err != nil {
			result.Warnings = append(result.Warnings,
				appErrors.NewRetentionWarning(fmt.Sprintf("failed to remove local copy %s", o.combined.Name), err))
		} else {
			o.logger.WithField("path", o.combined.Path).Info("Local copy removed")
		}
	}
	return nil
}

type rotationPass struct {
	kind   retention.Kind
	coll   retention.Collection
	suffix string
	keep   int
}

// rotate applies retention to local backups, remote backups and logs.
// Deletion failures are warnings and never fail the run.
func (o *Orchestrator) rotate(ctx context.Context, result *Result) error {
	suffix := backup.ArchiveSuffix(o.cfg.System.ServerName, backup.KindCombined)

	passes := []rotationPass{
		{retention.KindLocalBackups, o.deps.LocalBackups, suffix, o.cfg.Backup.KeepBackups},
	}
	if o.isRemote() {
		passes = append(passes, rotationPass{retention.KindRemoteBackups, o.deps.Destination, suffix, o.cfg.Backup.KeepBackups})
	}
	passes = append(passes, rotationPass{retention.KindLogs, o.deps.Logs, backup.LogSuffix, o.cfg.Logs.KeepLogs})

	for _, p := range passes {
		if p.coll == nil {
			continue
		}
		r := o.deps.Retention.Rotate(ctx, p.kind, p.coll, p.suffix, p.keep)
		result.Rotations = append(result.Rotations, r)
		result.Warnings = append(result.Warnings, r.Warnings...)
	}
	return nil
}
