package config

import "sort"

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "BACKITUP_"

// Configuration keys, named after their position in the config file
const (
	KeyServerName = "system.server_name"

	KeyDBType           = "db.db_type"
	KeyDBHost           = "db.db_host"
	KeyDBPort           = "db.db_port"
	KeyDBUser           = "db.db_user"
	KeyDBPassword       = "db.db_password"
	KeyDBName           = "db.db_name"
	KeyDBDumpCommand    = "db.dump_command"
	KeyDBPreflightCheck = "db.preflight_check"

	KeyFilesDirPath = "files.files_dir_path"

	KeyPreBackupCommand    = "commands.pre_backup"
	KeyPostBackupCommand   = "commands.post_backup"
	KeyPostTransferCommand = "commands.post_transfer"

	KeyDestinationType = "backup.destination_type"
	KeyKeepLocalCopy   = "backup.keep_local_copy"
	KeyKeepBackups     = "backup.keep_backups"
	KeyBackupDir       = "backup.backup_dir"

	KeyKeepLogs     = "logs.keep_logs"
	KeyLogDir       = "logs.log_dir"
	KeyLogLevel     = "logs.log_level"
	KeyLogFormat    = "logs.log_format"
	KeyLogMaxSizeMB = "logs.max_size_mb"

	KeyFTPHost        = "ftp.host"
	KeyFTPPort        = "ftp.port"
	KeyFTPUsername    = "ftp.username"
	KeyFTPPassword    = "ftp.password"
	KeyFTPRemoteDir   = "ftp.remote_dir"
	KeyFTPPassiveMode = "ftp.passive_mode"

	KeySFTPHost                 = "sftp.host"
	KeySFTPPort                 = "sftp.port"
	KeySFTPUsername             = "sftp.username"
	KeySFTPPassword             = "sftp.password"
	KeySFTPPrivateKeyPath       = "sftp.private_key_path"
	KeySFTPPrivateKeyPassphrase = "sftp.private_key_passphrase"
	KeySFTPKnownHostsPath       = "sftp.known_hosts_path"
	KeySFTPRemoteDir            = "sftp.remote_dir"
)

// Key describes one configuration value: where it lives in the file,
// which environment variable overrides it and what it defaults to.
type Key struct {
	Name    string
	Env     string
	Default string
	Secret  bool
}

var keys = []Key{
	{Name: KeyServerName, Env: EnvPrefix + "SERVER_NAME"},

	{Name: KeyDBType, Env: EnvPrefix + "DB_TYPE"},
	{Name: KeyDBHost, Env: EnvPrefix + "DB_HOST"},
	{Name: KeyDBPort, Env: EnvPrefix + "DB_PORT", Default: "3306"},
	{Name: KeyDBUser, Env: EnvPrefix + "DB_USER", Default: "root"},
	{Name: KeyDBPassword, Env: EnvPrefix + "DB_PASSWORD", Secret: true},
	{Name: KeyDBName, Env: EnvPrefix + "DB_NAME", Default: AllDatabases},
	{Name: KeyDBDumpCommand, Env: EnvPrefix + "DB_DUMP_COMMAND", Default: "mysqldump"},
	{Name: KeyDBPreflightCheck, Env: EnvPrefix + "DB_PREFLIGHT_CHECK", Default: "false"},

	{Name: KeyFilesDirPath, Env: EnvPrefix + "FILES_DIR_PATH"},

	{Name: KeyPreBackupCommand, Env: EnvPrefix + "PRE_BACKUP_COMMAND"},
	{Name: KeyPostBackupCommand, Env: EnvPrefix + "POST_BACKUP_COMMAND"},
	{Name: KeyPostTransferCommand, Env: EnvPrefix + "POST_TRANSFER_COMMAND"},

	{Name: KeyDestinationType, Env: EnvPrefix + "DESTINATION_TYPE", Default: string(DestinationLocal)},
	{Name: KeyKeepLocalCopy, Env: EnvPrefix + "KEEP_LOCAL_COPY", Default: "true"},
	{Name: KeyKeepBackups, Env: EnvPrefix + "KEEP_BACKUPS", Default: "7"},
	{Name: KeyBackupDir, Env: EnvPrefix + "BACKUP_DIR", Default: "."},

	{Name: KeyKeepLogs, Env: EnvPrefix + "KEEP_LOGS", Default: "30"},
	{Name: KeyLogDir, Env: EnvPrefix + "LOG_DIR", Default: "logs"},
	{Name: KeyLogLevel, Env: EnvPrefix + "LOG_LEVEL", Default: "info"},
	{Name: KeyLogFormat, Env: EnvPrefix + "LOG_FORMAT", Default: "text"},
	{Name: KeyLogMaxSizeMB, Env: EnvPrefix + "LOG_MAX_SIZE_MB", Default: "100"},

	{Name: KeyFTPHost, Env: EnvPrefix + "FTP_HOST"},
	{Name: KeyFTPPort, Env: EnvPrefix + "FTP_PORT", Default: "21"},
	{Name: KeyFTPUsername, Env: EnvPrefix + "FTP_USERNAME"},
	{Name: KeyFTPPassword, Env: EnvPrefix + "FTP_PASSWORD", Secret: true},
	{Name: KeyFTPRemoteDir, Env: EnvPrefix + "FTP_REMOTE_DIR"},
	{Name: KeyFTPPassiveMode, Env: EnvPrefix + "FTP_PASSIVE_MODE", Default: "true"},

	{Name: KeySFTPHost, Env: EnvPrefix + "SFTP_HOST"},
	{Name: KeySFTPPort, Env: EnvPrefix + "SFTP_PORT", Default: "22"},
	{Name: KeySFTPUsername, Env: EnvPrefix + "SFTP_USERNAME"},
	{Name: KeySFTPPassword, Env: EnvPrefix + "SFTP_PASSWORD", Secret: true},
	{Name: KeySFTPPrivateKeyPath, Env: EnvPrefix + "SFTP_PRIVATE_KEY_PATH"},
	{Name: KeySFTPPrivateKeyPassphrase, Env: EnvPrefix + "SFTP_PRIVATE_KEY_PASSPHRASE", Secret: true},
	{Name: KeySFTPKnownHostsPath, Env: EnvPrefix + "SFTP_KNOWN_HOSTS_PATH"},
	{Name: KeySFTPRemoteDir, Env: EnvPrefix + "SFTP_REMOTE_DIR"},
}

var keyIndex = func() map[string]Key {
	index := make(map[string]Key, len(keys))
	for _, k := range keys {
		index[k.Name] = k
	}
	return index
}()

// Keys returns every known configuration key sorted by name
func Keys() []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupKey returns the definition of a configuration key
func LookupKey(name string) (Key, bool) {
	k, ok := keyIndex[name]
	return k, ok
}
