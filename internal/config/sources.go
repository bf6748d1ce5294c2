package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	appErrors "backitup/internal/errors"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Source yields raw string values by configuration key.
// A value that is absent or empty counts as unset.
type Source interface {
	Lookup(key string) (string, bool)
}

// LookupFunc matches the signature of os.LookupEnv
type LookupFunc func(string) (string, bool)

// EnvSource reads BACKITUP_* environment variables
type EnvSource struct {
	lookup LookupFunc
}

// NewEnvSource creates an environment source. A nil lookup uses os.LookupEnv.
func NewEnvSource(lookup LookupFunc) *EnvSource {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvSource{lookup: lookup}
}

// Lookup implements Source
func (s *EnvSource) Lookup(key string) (string, bool) {
	k, ok := keyIndex[key]
	if !ok {
		return "", false
	}
	return s.lookup(k.Env)
}

// FileSource reads values from a YAML config file. Section names are
// matched case-insensitively, so DB and db address the same keys.
type FileSource struct {
	v     *viper.Viper
	path  string
	found bool
}

// NewFileSource parses the file at path once. A missing file yields an
// empty source; a file that exists but cannot be parsed is a config error.
func NewFileSource(path string) (*FileSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return &FileSource{v: viper.New(), path: path}, nil
		}
		return nil, appErrors.NewConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	return &FileSource{v: v, path: path, found: true}, nil
}

// Path returns the file path this source was built from
func (s *FileSource) Path() string {
	return s.path
}

// Found reports whether the file existed
func (s *FileSource) Found() bool {
	return s.found
}

// Lookup implements Source
func (s *FileSource) Lookup(key string) (string, bool) {
	if !s.v.IsSet(key) {
		return "", false
	}
	raw := s.v.Get(key)
	if raw == nil {
		return "", false
	}
	value, err := cast.ToStringE(raw)
	if err != nil {
		// Lists and maps where a scalar belongs surface as a parse error later.
		return fmt.Sprintf("%v", raw), true
	}
	return value, true
}

// MapSource is a Source over a fixed map of key to value
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}
