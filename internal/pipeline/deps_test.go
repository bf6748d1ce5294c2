package pipeline

import (
	"testing"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeps(t *testing.T) {
	cfg := &config.Config{
		System: config.SystemConfig{ServerName: "web-1"},
		DB:     config.DBConfig{Type: "mysql", Host: "localhost", Port: 3306, User: "root", Name: config.AllDatabases, DumpCommand: "mysqldump"},
		Files:  config.FilesConfig{DirPath: t.TempDir()},
		Backup: config.BackupConfig{DestinationType: config.DestinationSFTP, KeepBackups: 7, Dir: t.TempDir()},
		Logs:   config.LogsConfig{KeepLogs: 30, Dir: t.TempDir()},
		SFTP:   &config.SFTPConfig{Host: "sftp.example.com", Port: 22, Password: "x", RemoteDir: "/backups"},
	}

	deps, err := NewDeps(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "sftp", deps.Destination.Name())
	assert.NotNil(t, deps.Hooks)
	assert.NotNil(t, deps.Dumper)
	assert.NotNil(t, deps.Files)
	assert.NotNil(t, deps.Combiner)
	assert.NotNil(t, deps.LocalBackups)
	assert.NotNil(t, deps.Logs)
	assert.NotNil(t, deps.Retention)

	cfg.Backup.DestinationType = "s3"
	_, err = NewDeps(cfg, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfig))
}
