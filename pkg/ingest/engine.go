package ingest

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devopin/agent/pkg/checkpoint"
	"github.com/devopin/agent/pkg/parser"
	"github.com/devopin/agent/pkg/record"
)

// Engine performs checkpointed incremental parsing of log sources. Each call
// to Ingest reads a file or directory of *.log files, parses line-by-line,
// and returns only records newer than the project's checkpoint.
//
// Checkpoints are timestamps rather than byte offsets so that rotated or
// truncated files re-read from the start are filtered by comparison instead
// of being re-emitted.
type Engine struct {
	checkpoints *checkpoint.Store
	logger      *slog.Logger
}

// New creates an ingestion engine on top of a checkpoint store.
func New(store *checkpoint.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{checkpoints: store, logger: logger}
}

// Ingest parses the source at path with the named dialect and returns the
// records not yet seen for projectID. An empty projectID disables
// checkpointing. Failures are contained: an unknown dialect or missing path
// yields an empty result, a broken file is skipped, a checkpoint write error
// leaves the prior checkpoint in place.
func (e *Engine) Ingest(path, dialect, projectID string) []record.LogRecord {
	p, err := parser.ForDialect(dialect)
	if err != nil {
		e.logger.Error("skipping log source", "path", path, "err", err)
		return nil
	}

	files, err := e.resolveFiles(path)
	if err != nil {
		e.logger.Error("log source not found", "path", path, "err", err)
		return nil
	}

	var cp time.Time
	haveCp := false
	if projectID != "" {
		cp, haveCp = e.checkpoints.Get(projectID)
	}

	var records []record.LogRecord
	var newest time.Time
	haveNewest := false

	for _, file := range files {
		kept, maxTs, ok := e.ingestFile(file, p, cp, haveCp)
		records = append(records, kept...)
		if ok && (!haveNewest || maxTs.After(newest)) {
			newest = maxTs
			haveNewest = true
		}
	}

	// Advance the checkpoint only when something new was kept; an empty
	// result never regresses or resets an existing checkpoint.
	if projectID != "" && len(records) > 0 && haveNewest {
		if err := e.checkpoints.Set(projectID, newest); err != nil {
			e.logger.Error("checkpoint not persisted", "project", projectID, "err", err)
		}
	}

	return records
}

// resolveFiles turns a path into the ordered list of log files to read.
func (e *Engine) resolveFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	// filepath.Glob returns lexically sorted matches, which keeps
	// multi-file ingestion deterministic.
	return filepath.Glob(filepath.Join(path, "*.log"))
}

func (e *Engine) ingestFile(path string, p parser.Parser, cp time.Time, haveCp bool) ([]record.LogRecord, time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Error("cannot read log file", "file", path, "err", err)
		return nil, time.Time{}, false
	}
	defer f.Close()

	var kept []record.LogRecord
	var newest time.Time
	haveNewest := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, ok := p.Parse(line)
		if !ok {
			continue
		}

		ts, err := checkpoint.ParseTimestamp(rec.Timestamp)
		if err != nil {
			// Fail open: a record whose timestamp cannot be compared is
			// delivered rather than silently dropped.
			if haveCp {
				e.logger.Warn("unparseable record timestamp, keeping record",
					"file", path, "timestamp", rec.Timestamp)
			}
			kept = append(kept, rec)
			continue
		}
		if haveCp && !ts.After(cp) {
			continue
		}

		kept = append(kept, rec)
		if !haveNewest || ts.After(newest) {
			newest = ts
			haveNewest = true
		}
	}
	if err := scanner.Err(); err != nil {
		e.logger.Error("error reading log file", "file", path, "err", err)
	}

	return kept, newest, haveNewest
}
