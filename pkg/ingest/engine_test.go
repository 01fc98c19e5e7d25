package ingest

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/devopin/agent/pkg/checkpoint"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoints.json"), testLogger())
	return New(store, testLogger())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const laravelLog = `[2024-03-01 10:00:00] production.INFO: first
[2024-03-01 10:00:05] production.ERROR: second

[2024-03-01 10:00:10] production.WARNING: third
not a parseable line
`

func TestIngest_SecondPassYieldsNothing(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "laravel.log")
	writeFile(t, path, laravelLog)

	first := e.Ingest(path, "laravel", "shop")
	if len(first) != 3 {
		t.Fatalf("first pass: got %d records, want 3", len(first))
	}
	second := e.Ingest(path, "laravel", "shop")
	if len(second) != 0 {
		t.Errorf("second pass over unchanged file: got %d records, want 0", len(second))
	}
}

func TestIngest_OnlyRecordsAfterCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, laravelLog)

	if got := e.Ingest(path, "laravel", "shop"); len(got) != 3 {
		t.Fatalf("seed pass: %d", len(got))
	}

	// Append: one at the checkpoint instant (filtered, strict greater-than),
	// one after it (kept).
	extra := "[2024-03-01 10:00:10] production.INFO: same second\n" +
		"[2024-03-01 10:00:11] production.INFO: newer\n"
	writeFile(t, path, laravelLog+extra)

	got := e.Ingest(path, "laravel", "shop")
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Message != "newer" {
		t.Errorf("kept record = %q", got[0].Message)
	}
}

// Records whose timestamps cannot be parsed are delivered rather than
// dropped. This is deliberate fail-open behavior, not a filtering bug.
func TestIngest_MalformedTimestampFailsOpen(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "app.log")

	// A timestamp can match the dialect pattern structurally yet fail to
	// parse as an instant.
	content := "2024-13-99 10:00:00 ERROR impossible timestamp\n" +
		"2024-03-01 10:00:00 INFO normal\n"
	writeFile(t, path, content)

	first := e.Ingest(path, "django", "api")
	if len(first) != 2 {
		t.Fatalf("first pass: got %d, want 2", len(first))
	}

	second := e.Ingest(path, "django", "api")
	if len(second) != 1 {
		t.Fatalf("second pass: got %d, want 1 (fail-open record redelivered)", len(second))
	}
	if second[0].Message != "impossible timestamp" {
		t.Errorf("redelivered record = %q", second[0].Message)
	}
}

func TestIngest_DirectoryReadsSortedLogFiles(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.log"), "[2024-03-01 10:00:02] production.INFO: from b\n")
	writeFile(t, filepath.Join(dir, "a.log"), "[2024-03-01 10:00:01] production.INFO: from a\n")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "[2024-03-01 10:00:03] production.INFO: not a log\n")

	got := e.Ingest(dir, "laravel", "")
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Message != "from a" || got[1].Message != "from b" {
		t.Errorf("order = %q, %q", got[0].Message, got[1].Message)
	}
}

func TestIngest_UnknownDialect(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, laravelLog)

	if got := e.Ingest(path, "rails", "shop"); got != nil {
		t.Errorf("unknown dialect must yield nothing, got %d", len(got))
	}
}

func TestIngest_MissingPath(t *testing.T) {
	e := newTestEngine(t)
	if got := e.Ingest("/no/such/path", "laravel", "shop"); got != nil {
		t.Errorf("missing path must yield nothing, got %d", len(got))
	}
}

func TestIngest_EmptyResultKeepsCheckpoint(t *testing.T) {
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoints.json"), testLogger())
	e := New(store, testLogger())

	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, laravelLog)

	if got := e.Ingest(path, "laravel", "shop"); len(got) != 3 {
		t.Fatal("seed pass failed")
	}
	before, ok := store.Get("shop")
	if !ok {
		t.Fatal("expected checkpoint after seed pass")
	}

	// Nothing new: the checkpoint must not move or vanish.
	e.Ingest(path, "laravel", "shop")
	after, ok := store.Get("shop")
	if !ok || !after.Equal(before) {
		t.Errorf("checkpoint changed: %v -> %v (ok=%v)", before, after, ok)
	}
}

func TestIngest_NoProjectSkipsCheckpointing(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, laravelLog)

	if got := e.Ingest(path, "laravel", ""); len(got) != 3 {
		t.Fatalf("first pass: %d", len(got))
	}
	if got := e.Ingest(path, "laravel", ""); len(got) != 3 {
		t.Errorf("without a project id every pass returns everything, got %d", len(got))
	}
}
