package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/healthstat/internal/model"
)

const (
	filePrefix = "job_"
	fileSuffix = ".json"

	// markFile records the highest job id ever persisted. Prune never
	// touches it.
	markFile = "last_job_id"
)

// Compile-time interface satisfaction check.
var _ Store = (*FileStore)(nil)

// FileStore implements Store as one JSON document per job in a directory:
// <dir>/job_<id>.json.
type FileStore struct {
	dir string

	markMu sync.Mutex
}

// NewFileStore creates dir if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("results directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(jobID int64) string {
	return filepath.Join(s.dir, filePrefix+strconv.FormatInt(jobID, 10)+fileSuffix)
}

// Persist writes the outcome to a temporary file and renames it over the
// job's file, so readers never observe a partial record. The id mark is
// raised afterwards.
func (s *FileStore) Persist(_ context.Context, o *model.Outcome) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := s.writeAtomic(s.path(o.JobID), data); err != nil {
		return fmt.Errorf("write result file: %w", err)
	}
	return s.raiseMark(o.JobID)
}

func (s *FileStore) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// raiseMark stores jobID in the mark file unless a higher id is there.
func (s *FileStore) raiseMark(jobID int64) error {
	s.markMu.Lock()
	defer s.markMu.Unlock()

	current, err := s.readMark()
	if err != nil {
		return err
	}
	if jobID <= current {
		return nil
	}
	if err := s.writeAtomic(filepath.Join(s.dir, markFile), []byte(strconv.FormatInt(jobID, 10))); err != nil {
		return fmt.Errorf("write id mark: %w", err)
	}
	return nil
}

func (s *FileStore) readMark() (int64, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, markFile))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read id mark: %w", err)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id mark: %w", err)
	}
	return id, nil
}

// Get reads the outcome file for jobID.
func (s *FileStore) Get(_ context.Context, jobID int64) (*model.Outcome, error) {
	data, err := os.ReadFile(s.path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}

	o := &model.Outcome{}
	if err := json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("decode result file: %w", err)
	}
	return o, nil
}

// LastJobID returns the larger of the id mark and the highest job id found
// in the directory. Files written by older versions carry no mark.
func (s *FileStore) LastJobID(_ context.Context) (int64, error) {
	s.markMu.Lock()
	last, err := s.readMark()
	s.markMu.Unlock()
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read results dir: %w", err)
	}

	for _, e := range entries {
		id, ok := parseResultFile(e.Name())
		if ok && id > last {
			last = id
		}
	}
	return last, nil
}

// Prune removes result files last written before the given time.
func (s *FileStore) Prune(_ context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read results dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if _, ok := parseResultFile(e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		if !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// parseResultFile extracts the job id from a "job_<id>.json" file name.
func parseResultFile(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
