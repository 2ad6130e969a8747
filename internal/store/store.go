package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/healthstat/internal/model"
)

// ErrNotFound is returned when no outcome is stored for a job id.
var ErrNotFound = errors.New("job outcome not found")

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Store defines the persistence operations for terminal job outcomes.
type Store interface {
	// Persist writes o under a key derived from o.JobID, overwriting any
	// previous record for that id.
	Persist(ctx context.Context, o *model.Outcome) error
	Get(ctx context.Context, jobID int64) (*model.Outcome, error)
	// LastJobID returns the highest persisted job id, or 0 if none.
	LastJobID(ctx context.Context) (int64, error)
	// Prune deletes outcomes that finished before the given time and reports
	// how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Options selects and configures a Store backend.
type Options struct {
	Backend    string
	ResultsDir string
	DBPath     string
	RedisURL   string
}

// Open creates the Store selected by opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.ResultsDir)
	case BackendSQLite:
		return NewSQLiteStore(opts.DBPath)
	case BackendRedis:
		return NewRedisStoreFromURL(opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown result store backend %q", opts.Backend)
	}
}
