package backup

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// TimestampLayout is the run timestamp embedded at the start of every
// artifact and log file name. It sorts lexically in chronological order.
const TimestampLayout = "20060102_150405"

// ArchiveExt is the extension of every produced archive
const ArchiveExt = ".tar.gz"

// LogSuffix terminates every run log file name
const LogSuffix = "_backup.log"

// Kind identifies what an archive contains
type Kind string

const (
	KindDB       Kind = "db"
	KindFiles    Kind = "root_files"
	KindCombined Kind = "root_files_and_db"
)

// Artifact is a file produced by a pipeline stage
type Artifact struct {
	Kind Kind
	Name string
	Path string
	Size int64
}

func (a *Artifact) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", a.Name, a.Kind, a.Size)
}

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp extracts the leading run timestamp from a file name.
// Names without one report false and are never considered by retention.
func ParseTimestamp(name string) (time.Time, bool) {
	if len(name) < len(TimestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, name[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SanitizeServerName makes a server name safe for use in file names on
// every supported destination: path separators, ':', '[', ']' and
// whitespace become '-'.
func SanitizeServerName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ':' || r == '[' || r == ']' || r == '/' || r == '\\':
			return '-'
		case unicode.IsSpace(r):
			return '-'
		default:
			return r
		}
	}, strings.TrimSpace(name))
}

// ArchiveSuffix is everything after the timestamp in an archive name.
// Retention uses it to select only this server's archives of one kind.
func ArchiveSuffix(server string, kind Kind) string {
	return fmt.Sprintf("_%s_%s%s", SanitizeServerName(server), kind, ArchiveExt)
}

// ArchiveName builds {timestamp}_{server}_{kind}.tar.gz
func ArchiveName(timestamp, server string, kind Kind) string {
	return timestamp + ArchiveSuffix(server, kind)
}

// LogFileName builds {timestamp}_backup.log
func LogFileName(timestamp string) string {
	return timestamp + LogSuffix
}
