package checkpoint

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2024-03-01 10:15:30", "2024-03-01 10:15:30"},
		{"2024-03-01 10:15:30,123", "2024-03-01 10:15:30"},
		{"2024-03-01 10:15:30.123456", "2024-03-01 10:15:30"},
		// Odd fraction widths still parse; time.Parse takes any digit run
		// after the seconds field.
		{"2024-03-01 10:15:30,12", "2024-03-01 10:15:30"},
		{"2024-03-01 10:15:30.1", "2024-03-01 10:15:30"},
		{"2024-03-01T10:15:30.123Z", "2024-03-01 10:15:30"},
		{"2024-03-01T10:15:30Z", "2024-03-01 10:15:30"},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.raw)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.raw, err)
			continue
		}
		if got.Format(Layout) != tt.want {
			t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.raw, got.Format(Layout), tt.want)
		}
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "03/01/2024 10:15"} {
		if _, err := ParseTimestamp(raw); err == nil {
			t.Errorf("ParseTimestamp(%q): expected error", raw)
		}
	}
}

func TestStore_GetMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s := NewStore(filepath.Join(t.TempDir(), "checkpoints.json"), logger)
	if _, ok := s.Get("shop"); ok {
		t.Error("expected no checkpoint for missing document")
	}
	// The no-checkpoint resolution is logged, never silent.
	if !strings.Contains(buf.String(), "no checkpoint") {
		t.Errorf("missing-checkpoint warning not logged: %q", buf.String())
	}
}

func TestStore_GetMissingKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s := NewStore(filepath.Join(t.TempDir(), "checkpoints.json"), logger)
	if err := s.Set("api", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	buf.Reset()

	if _, ok := s.Get("shop"); ok {
		t.Error("expected no checkpoint for unknown project")
	}
	if !strings.Contains(buf.String(), "no checkpoint") {
		t.Errorf("missing-key warning not logged: %q", buf.String())
	}
}

func TestStore_SetGet(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "checkpoints.json"), testLogger())

	ts := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)
	if err := s.Set("shop", ts); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := s.Get("shop")
	if !ok {
		t.Fatal("expected checkpoint")
	}
	if !got.Equal(ts) {
		t.Errorf("got %v, want %v", got, ts)
	}
}

func TestStore_MergePreservesOtherProjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	s := NewStore(path, testLogger())

	a := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 2, 11, 0, 0, 0, time.UTC)
	if err := s.Set("shop", a); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("api", b); err != nil {
		t.Fatal(err)
	}

	if got, ok := s.Get("shop"); !ok || !got.Equal(a) {
		t.Errorf("shop checkpoint lost: %v %v", got, ok)
	}
	if got, ok := s.Get("api"); !ok || !got.Equal(b) {
		t.Errorf("api checkpoint wrong: %v %v", got, ok)
	}
}

func TestStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, testLogger())
	if _, ok := s.Get("shop"); ok {
		t.Error("corrupt document must resolve to no checkpoint")
	}

	// A save over a corrupt document produces a valid one.
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Set("shop", ts); err != nil {
		t.Fatalf("set over corrupt document: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document does not parse after save: %v", err)
	}
	if doc["shop"] != "2024-03-01 10:00:00" {
		t.Errorf("stored value = %q", doc["shop"])
	}
}

// A failed replace must leave the previous document intact and clean up the
// temp file.
func TestStore_FailedReplaceKeepsOldDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.json")

	s := NewStore(path, testLogger())
	old := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Set("shop", old); err != nil {
		t.Fatal(err)
	}

	// Turn the target into a non-empty directory so the rename fails.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	original, _ := json.Marshal(map[string]string{"shop": old.Format(Layout)})
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "x"), original, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Set("shop", old.Add(time.Hour)); err == nil {
		t.Fatal("expected error from failed replace")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file not cleaned up after failed replace")
	}
}
