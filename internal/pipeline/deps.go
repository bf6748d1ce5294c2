package pipeline

import (
	"backitup/internal/backup"
	"backitup/internal/config"
	"backitup/internal/logging"
	"backitup/internal/retention"
	"backitup/internal/transfer"
)

// NewDeps wires the production collaborators for cfg. Nothing connects
// or touches the filesystem until the run uses it.
func NewDeps(cfg *config.Config, logger *logging.Logger) (Deps, error) {
	dest, err := transfer.New(cfg, logger)
	if err != nil {
		return Deps{}, err
	}

	runner := backup.ExecRunner{}

	return Deps{
		Hooks:        backup.NewHookRunner(runner, logger),
		Dumper:       backup.NewDumpStage(cfg.DB, runner, nil, logger),
		Files:        backup.NewFilesStage(cfg.Files.DirPath, logger),
		Combiner:     backup.NewCombineStage(cfg.Backup.Dir),
		Destination:  dest,
		LocalBackups: transfer.NewLocal(cfg.Backup.Dir, logger),
		Logs:         transfer.NewLocal(cfg.Logs.Dir, logger),
		Retention:    retention.NewManager(logger),
	}, nil
}
