package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/healthstat/internal/model"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "results"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestFilePersistWritesJobFile(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Persist(ctx, makeDoneOutcome(12, time.Now().UTC())); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), "job_12.json")); err != nil {
		t.Fatalf("result file missing: %v", err)
	}

	got, err := s.Get(ctx, 12)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusDone {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusDone)
	}
	if string(got.Result) != `{"California":27.5}` {
		t.Errorf("Result = %s", got.Result)
	}
}

func TestFilePersistOverwritesAndLeavesNoTempFiles(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Persist(ctx, makeDoneOutcome(1, time.Now().UTC())); err != nil {
		t.Fatalf("Persist first: %v", err)
	}
	if err := s.Persist(ctx, makeErrorOutcome(1, time.Now().UTC())); err != nil {
		t.Fatalf("Persist second: %v", err)
	}

	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusError {
		t.Errorf("Status = %q, want overwritten %q", got.Status, model.StatusError)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "job_1.json" || names[1] != markFile {
		t.Errorf("dir entries = %v, want [job_1.json %s]", names, markFile)
	}
}

func TestFileGetNotFound(t *testing.T) {
	s := newTestFileStore(t)

	if _, err := s.Get(context.Background(), 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestFileLastJobIDIgnoresForeignFiles(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	for _, id := range []int64{2, 10, 9} {
		if err := s.Persist(ctx, makeDoneOutcome(id, time.Now().UTC())); err != nil {
			t.Fatalf("Persist(%d): %v", id, err)
		}
	}
	for _, name := range []string{"notes.txt", "job_abc.json", "job_99.tmp"} {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	last, err := s.LastJobID(ctx)
	if err != nil {
		t.Fatalf("LastJobID: %v", err)
	}
	if last != 10 {
		t.Errorf("LastJobID = %d, want 10", last)
	}
}

func TestFilePrune(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []int64{1, 2} {
		if err := s.Persist(ctx, makeDoneOutcome(id, now.UTC())); err != nil {
			t.Fatalf("Persist(%d): %v", id, err)
		}
	}
	old := now.Add(-72 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.Dir(), "job_1.json"), old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	removed, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned outcome still readable: %v", err)
	}
	if _, err := s.Get(ctx, 2); err != nil {
		t.Errorf("recent outcome missing: %v", err)
	}
}

func TestFileLastJobIDSurvivesPruningEverything(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []int64{7, 3} {
		if err := s.Persist(ctx, makeDoneOutcome(id, now.UTC())); err != nil {
			t.Fatalf("Persist(%d): %v", id, err)
		}
	}

	removed, err := s.Prune(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	last, err := s.LastJobID(ctx)
	if err != nil {
		t.Fatalf("LastJobID: %v", err)
	}
	if last != 7 {
		t.Errorf("LastJobID after pruning everything = %d, want 7", last)
	}

	reopened, err := NewFileStore(s.Dir())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if last, _ := reopened.LastJobID(ctx); last != 7 {
		t.Errorf("LastJobID after reopen = %d, want 7", last)
	}
}

func TestParseResultFile(t *testing.T) {
	tests := []struct {
		name   string
		wantID int64
		wantOK bool
	}{
		{"job_1.json", 1, true},
		{"job_12345.json", 12345, true},
		{"job_0.json", 0, false},
		{"job_-3.json", 0, false},
		{"job_x.json", 0, false},
		{"job_1.json.tmp", 0, false},
		{"result_1.json", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseResultFile(tt.name)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("parseResultFile(%q) = (%d, %v), want (%d, %v)", tt.name, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
