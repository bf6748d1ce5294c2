package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DestinationType selects where the combined archive is shipped
type DestinationType string

const (
	DestinationLocal DestinationType = "local"
	DestinationFTP   DestinationType = "ftp"
	DestinationSFTP  DestinationType = "sftp"
)

// AllDatabases is the db_name sentinel that dumps every database on the server
const AllDatabases = "--all-databases"

const redactedValue = "********"

// Config is the fully resolved configuration of one backup run.
// It is built once by Resolve and treated as read-only afterwards.
type Config struct {
	System   SystemConfig   `yaml:"SYSTEM"`
	DB       DBConfig       `yaml:"DB"`
	Files    FilesConfig    `yaml:"FILES"`
	Commands CommandsConfig `yaml:"COMMANDS"`
	Backup   BackupConfig   `yaml:"BACKUP"`
	Logs     LogsConfig     `yaml:"LOGS"`
	FTP      *FTPConfig     `yaml:"FTP,omitempty"`
	SFTP     *SFTPConfig    `yaml:"SFTP,omitempty"`
}

// SystemConfig identifies the host in artifact names
type SystemConfig struct {
	ServerName string `yaml:"server_name"`
}

// DBConfig describes the database to dump
type DBConfig struct {
	Type           string `yaml:"db_type"`
	Host           string `yaml:"db_host"`
	Port           int    `yaml:"db_port"`
	User           string `yaml:"db_user"`
	Password       string `yaml:"db_password"`
	Name           string `yaml:"db_name"`
	DumpCommand    string `yaml:"dump_command"`
	PreflightCheck bool   `yaml:"preflight_check"`
}

// AllDatabases reports whether the dump covers every database
func (c DBConfig) AllDatabases() bool {
	return c.Name == AllDatabases
}

// FilesConfig points at the directory tree to archive
type FilesConfig struct {
	DirPath string `yaml:"files_dir_path"`
}

// CommandsConfig holds the optional shell hooks
type CommandsConfig struct {
	PreBackup    string `yaml:"pre_backup"`
	PostBackup   string `yaml:"post_backup"`
	PostTransfer string `yaml:"post_transfer"`
}

// BackupConfig controls where archives land and how many are kept
type BackupConfig struct {
	DestinationType DestinationType `yaml:"destination_type"`
	KeepLocalCopy   bool            `yaml:"keep_local_copy"`
	KeepBackups     int             `yaml:"keep_backups"`
	Dir             string          `yaml:"backup_dir"`
}

// LogsConfig controls the per-run log file and its rotation
type LogsConfig struct {
	KeepLogs  int    `yaml:"keep_logs"`
	Dir       string `yaml:"log_dir"`
	Level     string `yaml:"log_level"`
	Format    string `yaml:"log_format"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// FTPConfig holds FTP destination settings
type FTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	RemoteDir   string `yaml:"remote_dir"`
	PassiveMode bool   `yaml:"passive_mode"`
}

// Address returns host:port
func (c FTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SFTPConfig holds SFTP destination settings
type SFTPConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	PrivateKeyPassphrase string `yaml:"private_key_passphrase"`
	KnownHostsPath       string `yaml:"known_hosts_path"`
	RemoteDir            string `yaml:"remote_dir"`
}

// Address returns host:port
func (c SFTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the resolved values and returns every problem found.
// Numeric and boolean parsing errors are reported by Resolve itself.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.System.ServerName == "" {
		errs.Add(KeyServerName, "is required", nil)
	}
	c.DB.validate(&errs)
	if c.Files.DirPath == "" {
		errs.Add(KeyFilesDirPath, "is required", nil)
	}
	c.Backup.validate(&errs)
	c.Logs.validate(&errs)

	switch c.Backup.DestinationType {
	case DestinationFTP:
		if c.FTP == nil {
			errs.Add(KeyFTPHost, "is required", nil)
		} else {
			c.FTP.validate(&errs)
		}
	case DestinationSFTP:
		if c.SFTP == nil {
			errs.Add(KeySFTPHost, "is required", nil)
		} else {
			c.SFTP.validate(&errs)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (c *DBConfig) validate(errs *ValidationErrors) {
	switch c.Type {
	case "":
		errs.Add(KeyDBType, "is required", nil)
	case "mysql", "mariadb":
	default:
		errs.Add(KeyDBType, "must be one of: mysql, mariadb", c.Type)
	}
	if c.Host == "" {
		errs.Add(KeyDBHost, "is required", nil)
	}
	validatePort(errs, KeyDBPort, c.Port)
	if c.User == "" {
		errs.Add(KeyDBUser, "is required", nil)
	}
	if c.Name == "" {
		errs.Add(KeyDBName, "is required", nil)
	}
	if c.DumpCommand == "" {
		errs.Add(KeyDBDumpCommand, "is required", nil)
	}
}

func (c *BackupConfig) validate(errs *ValidationErrors) {
	switch c.DestinationType {
	case DestinationLocal, DestinationFTP, DestinationSFTP:
	default:
		errs.Add(KeyDestinationType, "must be one of: local, ftp, sftp", string(c.DestinationType))
	}
	if c.KeepBackups < 1 {
		errs.Add(KeyKeepBackups, "must be at least 1", c.KeepBackups)
	}
	if c.Dir == "" {
		errs.Add(KeyBackupDir, "is required", nil)
	}
}

func (c *LogsConfig) validate(errs *ValidationErrors) {
	if c.KeepLogs < 1 {
		errs.Add(KeyKeepLogs, "must be at least 1", c.KeepLogs)
	}
	if c.Dir == "" {
		errs.Add(KeyLogDir, "is required", nil)
	}
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		errs.Add(KeyLogLevel, "must be one of: debug, info, warn, error", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		errs.Add(KeyLogFormat, "must be one of: text, json", c.Format)
	}
	if c.MaxSizeMB < 1 {
		errs.Add(KeyLogMaxSizeMB, "must be at least 1", c.MaxSizeMB)
	}
}

func (c *FTPConfig) validate(errs *ValidationErrors) {
	if c.Host == "" {
		errs.Add(KeyFTPHost, "is required", nil)
	}
	validatePort(errs, KeyFTPPort, c.Port)
	if c.Username == "" {
		errs.Add(KeyFTPUsername, "is required", nil)
	}
	if c.Password == "" {
		errs.Add(KeyFTPPassword, "is required", nil)
	}
	if c.RemoteDir == "" {
		errs.Add(KeyFTPRemoteDir, "is required", nil)
	}
}

func (c *SFTPConfig) validate(errs *ValidationErrors) {
	if c.Host == "" {
		errs.Add(KeySFTPHost, "is required", nil)
	}
	validatePort(errs, KeySFTPPort, c.Port)
	if c.Username == "" {
		errs.Add(KeySFTPUsername, "is required", nil)
	}
	if c.Password == "" && c.PrivateKeyPath == "" {
		errs.Add(KeySFTPPassword, "either password or private_key_path is required", nil)
	}
	if c.RemoteDir == "" {
		errs.Add(KeySFTPRemoteDir, "is required", nil)
	}
}

func validatePort(errs *ValidationErrors, key string, port int) {
	if port < 1 || port > 65535 {
		errs.Add(key, "must be between 1 and 65535", port)
	}
}

// Redacted returns a copy with every secret replaced by a fixed mask
func (c *Config) Redacted() *Config {
	out := *c
	out.DB.Password = redact(c.DB.Password)
	if c.FTP != nil {
		ftp := *c.FTP
		ftp.Password = redact(ftp.Password)
		out.FTP = &ftp
	}
	if c.SFTP != nil {
		sftp := *c.SFTP
		sftp.Password = redact(sftp.Password)
		sftp.PrivateKeyPassphrase = redact(sftp.PrivateKeyPassphrase)
		out.SFTP = &sftp
	}
	return &out
}

// RedactedYAML renders the redacted configuration in the config file layout
func (c *Config) RedactedYAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// Secrets returns every non-empty secret value for log scrubbing
func (c *Config) Secrets() []string {
	var secrets []string
	candidates := []string{c.DB.Password, ftpPassword(c.FTP)}
	candidates = append(candidates, sftpSecrets(c.SFTP)...)
	for _, s := range candidates {
		if strings.TrimSpace(s) != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

func ftpPassword(c *FTPConfig) string {
	if c == nil {
		return ""
	}
	return c.Password
}

func sftpSecrets(c *SFTPConfig) []string {
	if c == nil {
		return nil
	}
	return []string{c.Password, c.PrivateKeyPassphrase}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}
