// Package retention implements count-based rotation of backup archives
// and run logs. One algorithm serves every collection: entries are
// ordered by the timestamp embedded in their names and everything past
// the newest keepN is deleted.
package retention

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"backitup/internal/backup"
	appErrors "backitup/internal/errors"
	"backitup/internal/logging"
	"backitup/internal/transfer"

	"github.com/sirupsen/logrus"
)

// Kind names the collection being rotated
type Kind string

const (
	KindLocalBackups  Kind = "local_backups"
	KindRemoteBackups Kind = "remote_backups"
	KindLogs          Kind = "logs"
)

// Collection is a set of stored files that can be listed and pruned.
// Every transfer.Destination is a Collection.
type Collection interface {
	List(ctx context.Context) ([]transfer.RemoteRef, error)
	Delete(ctx context.Context, ref transfer.RemoteRef) error
}

// Entry is one run's stored file with the timestamp parsed from its
// name. Segments are older parts of the same file that a size-capped
// writer rotated aside; they are deleted together with Ref.
type Entry struct {
	Ref       transfer.RemoteRef
	Timestamp time.Time
	Segments  []transfer.RemoteRef
}

// Name returns the file name
func (e Entry) Name() string {
	return e.Ref.Name
}

// Entries keeps the refs named exactly {timestamp}{suffix}. Anything
// else in the collection is not ours to delete. A rotated segment,
// {timestamp}{stem}-{rotation time}{ext} for suffix {stem}{ext}, joins
// the entry of its run.
func Entries(refs []transfer.RemoteRef, suffix string) []Entry {
	ext := path.Ext(suffix)
	segmentPrefix := strings.TrimSuffix(suffix, ext) + "-"

	entries := make([]Entry, 0, len(refs))
	byRun := make(map[string]int, len(refs))
	var segments []transfer.RemoteRef

	for _, ref := range refs {
		ts, ok := backup.ParseTimestamp(ref.Name)
		if !ok {
			continue
		}
		rest := ref.Name[len(backup.TimestampLayout):]
		switch {
		case rest == suffix:
			byRun[ref.Name[:len(backup.TimestampLayout)]] = len(entries)
			entries = append(entries, Entry{Ref: ref, Timestamp: ts})
		case ext != "" && strings.HasPrefix(rest, segmentPrefix) && strings.HasSuffix(rest, ext):
			segments = append(segments, ref)
		}
	}

	for _, ref := range segments {
		run := ref.Name[:len(backup.TimestampLayout)]
		if i, ok := byRun[run]; ok {
			entries[i].Segments = append(entries[i].Segments, ref)
			continue
		}
		// the run's current file is gone, the segment stands in for it
		ts, _ := backup.ParseTimestamp(ref.Name)
		byRun[run] = len(entries)
		entries = append(entries, Entry{Ref: ref, Timestamp: ts})
	}
	return entries
}

// Select orders entries newest first and splits them at keepN.
// keepN below 1 is treated as 1 so the newest entry always survives.
func Select(entries []Entry, keepN int) (keep, expire []Entry) {
	if keepN < 1 {
		keepN = 1
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].Name() > sorted[j].Name()
	})

	if len(sorted) <= keepN {
		return sorted, nil
	}
	return sorted[:keepN], sorted[keepN:]
}

// Result summarizes one rotation
type Result struct {
	Kind           Kind
	Total          int
	Kept           []Entry
	Deleted        []Entry
	Warnings       []error
	ProcessingTime time.Duration
}

// Manager rotates collections
type Manager struct {
	logger *logging.Logger
}

// NewManager creates a retention manager
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Manager{logger: logger}
}

// Rotate deletes every entry of coll matching suffix beyond the newest
// keepN. Each deletion is attempted independently and a failure becomes
// a warning in the result. A failed listing is reported as a single
// warning since nothing could be selected.
func (m *Manager) Rotate(ctx context.Context, kind Kind, coll Collection, suffix string, keepN int) *Result {
	startTime := time.Now()
	result := &Result{Kind: kind}

	log := m.logger.WithFields(map[string]interface{}{
		"kind": kind,
		"keep": keepN,
	})

	refs, err := coll.List(ctx)
	if err != nil {
		result.Warnings = append(result.Warnings, appErrors.NewRetentionWarning(fmt.Sprintf("failed to list %s", kind), err))
		log.WithError(err).Warn("Retention skipped, listing failed")
		result.ProcessingTime = time.Since(startTime)
		return result
	}

	entries := Entries(refs, suffix)
	keep, expire := Select(entries, keepN)
	result.Total = len(entries)
	result.Kept = keep

	for _, entry := range expire {
		if err := ctx.Err(); err != nil {
			result.Warnings = append(result.Warnings, appErrors.NewRetentionWarning(fmt.Sprintf("rotation of %s interrupted", kind), err))
			break
		}
		if !m.delete(ctx, coll, kind, entry, result, log) {
			continue
		}
		result.Deleted = append(result.Deleted, entry)
		log.WithFields(map[string]interface{}{
			"file":     entry.Name(),
			"segments": len(entry.Segments),
			"created":  entry.Timestamp.Format(time.RFC3339),
		}).Info("Deleted expired file")
	}

	result.ProcessingTime = time.Since(startTime)
	log.WithFields(map[string]interface{}{
		"total":    result.Total,
		"kept":     len(result.Kept),
		"deleted":  len(result.Deleted),
		"warnings": len(result.Warnings),
	}).Info("Retention applied")

	return result
}

// delete removes entry and its segments, recording a warning for every
// file that could not be removed. It reports whether all of them went.
func (m *Manager) delete(ctx context.Context, coll Collection, kind Kind, entry Entry, result *Result, log *logrus.Entry) bool {
	ok := true
	for _, ref := range append([]transfer.RemoteRef{entry.Ref}, entry.Segments...) {
		if err := coll.Delete(ctx, ref); err != nil {
			warning := appErrors.NewRetentionWarning(fmt.Sprintf("failed to delete %s", ref.Name), err).
				WithContext("kind", string(kind))
			result.Warnings = append(result.Warnings, warning)
			log.WithError(err).WithField("file", ref.Name).Warn("Failed to delete expired file")
			ok = false
		}
	}
	return ok
}
