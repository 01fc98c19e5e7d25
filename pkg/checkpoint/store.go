package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Layout is the normalized timestamp form stored in the checkpoint document.
// Checkpoints are second-resolution by design; two records inside the same
// second are not distinguished.
const Layout = "2006-01-02 15:04:05"

// timestampLayouts are the raw timestamp shapes the supported dialects emit.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
}

// ParseTimestamp parses a raw log timestamp into an instant. Fractional
// seconds separated by a comma (Python logging style) are accepted.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// Store persists, per project, the timestamp of the most recently ingested
// record. The whole store is one JSON document; writes go through a temp file
// and an atomic rename so a concurrent reader never observes a partial
// document.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore creates a checkpoint store backed by the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Get returns the checkpoint instant for a project. A missing document,
// unreadable content, or missing key all mean "no checkpoint": the caller
// ingests everything. None of these are raised as errors.
func (s *Store) Get(projectID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	raw, ok := doc[projectID]
	if !ok {
		s.logger.Warn("no checkpoint for project, ingesting everything", "project", projectID)
		return time.Time{}, false
	}
	t, err := time.Parse(Layout, raw)
	if err != nil {
		s.logger.Warn("invalid checkpoint value, ignoring", "project", projectID, "value", raw)
		return time.Time{}, false
	}
	return t, true
}

// Set merges the new checkpoint for a project into the document and persists
// it atomically. On failure the previously durable document stays in place;
// the next cycle simply re-derives the checkpoint.
func (s *Store) Set(projectID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc[projectID] = ts.Format(Layout)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoints: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace checkpoint file: %w", err)
	}
	return nil
}

// load reads the full document. Failures degrade to an empty map with a
// warning; a corrupt checkpoint file must never break ingestion.
func (s *Store) load() map[string]string {
	doc := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read checkpoint file", "path", s.path, "err", err)
		}
		return doc
	}
	if len(data) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("corrupt checkpoint file, starting fresh", "path", s.path, "err", err)
		return make(map[string]string)
	}
	return doc
}
