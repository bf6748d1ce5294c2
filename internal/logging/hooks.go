package logging

import (
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// redactHook masks secrets before any formatter sees the entry
type redactHook struct {
	secrets []string
}

func newRedactHook(secrets []string) *redactHook {
	sorted := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			sorted = append(sorted, s)
		}
	}
	// longer secrets first so a secret containing another is masked whole
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return &redactHook{secrets: sorted}
}

func (h *redactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *redactHook) Fire(entry *logrus.Entry) error {
	entry.Message = redactString(entry.Message, h.secrets)
	for k, v := range entry.Data {
		switch val := v.(type) {
		case string:
			entry.Data[k] = redactString(val, h.secrets)
		case error:
			entry.Data[k] = redactString(val.Error(), h.secrets)
		}
	}
	return nil
}

// fileHook writes every entry to the run log file with its own formatter
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
