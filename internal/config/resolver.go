package config

import (
	"strconv"
	"strings"

	appErrors "backitup/internal/errors"
)

// Origin records which provider a resolved value came from
type Origin string

const (
	OriginEnv     Origin = "env"
	OriginFile    Origin = "file"
	OriginDefault Origin = "default"
	OriginUnset   Origin = "unset"
)

// Load builds both sources and resolves them. A missing config file is
// not an error; every value may then come from the environment.
func Load(path string, lookup LookupFunc) (*Config, error) {
	file, err := NewFileSource(path)
	if err != nil {
		return nil, err
	}
	return Resolve(NewEnvSource(lookup), file)
}

// Resolve merges env over file over defaults and validates the result.
// On failure it returns a config AppError wrapping ValidationErrors that
// names every failing key, not only the first.
func Resolve(env, file Source) (*Config, error) {
	r := &resolver{env: env, file: file, failed: make(map[string]bool)}
	cfg := r.build()

	errs := r.errs
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err.(ValidationErrors).without(r.failed)...)
	}
	if errs.HasErrors() {
		return nil, appErrors.NewConfigError("invalid configuration", errs)
	}
	return cfg, nil
}

// Explain reports the origin of every key for the given sources
func Explain(env, file Source) map[string]Origin {
	r := &resolver{env: env, file: file, failed: make(map[string]bool)}
	origins := make(map[string]Origin, len(keys))
	for _, k := range keys {
		_, origins[k.Name] = r.value(k.Name)
	}
	return origins
}

type resolver struct {
	env    Source
	file   Source
	errs   ValidationErrors
	failed map[string]bool
}

func (r *resolver) build() *Config {
	cfg := &Config{
		System: SystemConfig{
			ServerName: r.stringValue(KeyServerName),
		},
		DB: DBConfig{
			Type:           strings.ToLower(r.stringValue(KeyDBType)),
			Host:           r.stringValue(KeyDBHost),
			Port:           r.intValue(KeyDBPort),
			User:           r.stringValue(KeyDBUser),
			Password:       r.stringValue(KeyDBPassword),
			Name:           r.stringValue(KeyDBName),
			DumpCommand:    r.stringValue(KeyDBDumpCommand),
			PreflightCheck: r.boolValue(KeyDBPreflightCheck),
		},
		Files: FilesConfig{
			DirPath: r.stringValue(KeyFilesDirPath),
		},
		Commands: CommandsConfig{
			PreBackup:    r.stringValue(KeyPreBackupCommand),
			PostBackup:   r.stringValue(KeyPostBackupCommand),
			PostTransfer: r.stringValue(KeyPostTransferCommand),
		},
		Backup: BackupConfig{
			DestinationType: DestinationType(strings.ToLower(r.stringValue(KeyDestinationType))),
			KeepLocalCopy:   r.boolValue(KeyKeepLocalCopy),
			KeepBackups:     r.intValue(KeyKeepBackups),
			Dir:             r.stringValue(KeyBackupDir),
		},
		Logs: LogsConfig{
			KeepLogs:  r.intValue(KeyKeepLogs),
			Dir:       r.stringValue(KeyLogDir),
			Level:     strings.ToLower(r.stringValue(KeyLogLevel)),
			Format:    strings.ToLower(r.stringValue(KeyLogFormat)),
			MaxSizeMB: r.intValue(KeyLogMaxSizeMB),
		},
	}

	// Destination blocks are only read for the selected type.
	switch cfg.Backup.DestinationType {
	case DestinationFTP:
		cfg.FTP = &FTPConfig{
			Host:        r.stringValue(KeyFTPHost),
			Port:        r.intValue(KeyFTPPort),
			Username:    r.stringValue(KeyFTPUsername),
			Password:    r.stringValue(KeyFTPPassword),
			RemoteDir:   r.stringValue(KeyFTPRemoteDir),
			PassiveMode: r.boolValue(KeyFTPPassiveMode),
		}
	case DestinationSFTP:
		cfg.SFTP = &SFTPConfig{
			Host:                 r.stringValue(KeySFTPHost),
			Port:                 r.intValue(KeySFTPPort),
			Username:             r.stringValue(KeySFTPUsername),
			Password:             r.stringValue(KeySFTPPassword),
			PrivateKeyPath:       r.stringValue(KeySFTPPrivateKeyPath),
			PrivateKeyPassphrase: r.stringValue(KeySFTPPrivateKeyPassphrase),
			KnownHostsPath:       r.stringValue(KeySFTPKnownHostsPath),
			RemoteDir:            r.stringValue(KeySFTPRemoteDir),
		}
	}

	return cfg
}

// value applies the precedence chain for one key
func (r *resolver) value(key string) (string, Origin) {
	if r.env != nil {
		if v, ok := r.env.Lookup(key); ok && strings.TrimSpace(v) != "" {
			return v, OriginEnv
		}
	}
	if r.file != nil {
		if v, ok := r.file.Lookup(key); ok && strings.TrimSpace(v) != "" {
			return v, OriginFile
		}
	}
	if k, ok := keyIndex[key]; ok && k.Default != "" {
		return k.Default, OriginDefault
	}
	return "", OriginUnset
}

func (r *resolver) stringValue(key string) string {
	v, _ := r.value(key)
	if keyIndex[key].Secret {
		return v
	}
	return strings.TrimSpace(v)
}

func (r *resolver) intValue(key string) int {
	raw := r.stringValue(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, "must be an integer", raw)
		return 0
	}
	return n
}

func (r *resolver) boolValue(key string) bool {
	raw := r.stringValue(key)
	b, ok := ParseBool(raw)
	if !ok {
		r.fail(key, "must be a boolean (true/false, yes/no, 1/0, on/off)", raw)
	}
	return b
}

func (r *resolver) fail(key, message string, value interface{}) {
	r.errs.Add(key, message, value)
	r.failed[key] = true
}

// ParseBool accepts true/false, yes/no, y/n, 1/0 and on/off, case-insensitively
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, true
	case "false", "no", "n", "0", "off":
		return false, true
	default:
		return false, false
	}
}
