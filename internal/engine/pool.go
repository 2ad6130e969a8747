package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/healthstat/internal/model"
	"github.com/seantiz/healthstat/internal/queue"
	"github.com/seantiz/healthstat/internal/store"
)

// Pool states.
const (
	StateRunning      = "running"
	StateShuttingDown = "shutting_down"
	StateStopped      = "stopped"
)

var (
	// ErrPoolShuttingDown is returned by Submit once shutdown has begun.
	ErrPoolShuttingDown = errors.New("worker pool is shutting down")

	// ErrJobNotFound is returned for ids the pool never issued.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotReady is returned by Result while the job is not terminal.
	ErrNotReady = errors.New("job result not ready")
)

// Computer runs the analysis for one job. Implementations must be safe for
// concurrent use by all workers.
type Computer interface {
	Compute(ctx context.Context, kind string, params json.RawMessage) (any, error)
}

// Publisher is notified of every terminal outcome.
type Publisher interface {
	PublishOutcome(ctx context.Context, o *model.Outcome) error
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines. Values below 1 are
// ignored.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithIDOffset makes the first issued job id offset+1.
func WithIDOffset(offset int64) Option {
	return func(p *Pool) {
		if offset > 0 {
			p.lastID.Store(offset)
		}
	}
}

// WithPublisher sets the outcome publisher.
func WithPublisher(pub Publisher) Option {
	return func(p *Pool) {
		p.publisher = pub
	}
}

// WithRunID sets the run id stamped on persisted outcomes.
func WithRunID(id string) Option {
	return func(p *Pool) {
		p.runID = id
	}
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// persistTimeout bounds a single result store write.
const persistTimeout = 10 * time.Second

// Pool runs submitted jobs on a fixed set of worker goroutines fed by a FIFO
// queue.
type Pool struct {
	computer  Computer
	store     store.Store
	publisher Publisher
	broker    *StatusBroker
	logger    *slog.Logger
	runID     string
	workers   int

	queue  *queue.Queue
	lastID atomic.Int64

	mu   sync.RWMutex
	jobs map[int64]*jobEntry

	stateMu sync.RWMutex
	state   string

	wg   sync.WaitGroup
	done chan struct{}
}

// jobEntry guards one job record. The lock is held only while a field is
// updated or a snapshot is taken.
type jobEntry struct {
	mu  sync.Mutex
	job model.Job
}

func (e *jobEntry) snapshot() model.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job
}

// NewPool creates a running pool. All workers are started before it
// returns. A nil store disables persistence.
func NewPool(c Computer, s store.Store, opts ...Option) *Pool {
	p := &Pool{
		computer: c,
		store:    s,
		broker:   NewStatusBroker(),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		runID:    model.NewRunID(),
		workers:  runtime.NumCPU(),
		queue:    queue.New(),
		jobs:     make(map[int64]*jobEntry),
		state:    StateRunning,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	for n := range p.workers {
		p.wg.Go(func() {
			p.runWorker(n)
		})
	}
	go func() {
		p.wg.Wait()
		p.setState(StateStopped)
		close(p.done)
		p.logger.Info("worker pool stopped")
	}()

	p.logger.Info("worker pool started", "workers", p.workers, "run_id", p.runID, "first_job_id", p.lastID.Load()+1)
	return p
}

// Submit registers a job and queues it for execution.
func (p *Pool) Submit(kind string, params json.RawMessage) (int64, error) {
	if p.State() != StateRunning {
		return 0, ErrPoolShuttingDown
	}

	id := p.lastID.Add(1)
	entry := &jobEntry{job: model.Job{
		ID:        id,
		Kind:      kind,
		Params:    params,
		Status:    model.StatusRegistered,
		CreatedAt: time.Now().UTC(),
	}}

	p.mu.Lock()
	p.jobs[id] = entry
	p.mu.Unlock()
	p.broker.Publish(StatusEvent{JobID: id, Status: model.StatusRegistered, At: entry.job.CreatedAt})

	jobsQueued.Inc()
	if err := p.queue.Enqueue(id); err != nil {
		// Lost the race with BeginShutdown. The id is not reused, so the
		// sequence keeps a gap where this job would have been.
		jobsQueued.Dec()
		p.mu.Lock()
		delete(p.jobs, id)
		p.mu.Unlock()
		p.broker.Forget(id)
		if errors.Is(err, queue.ErrQueueClosed) {
			return 0, ErrPoolShuttingDown
		}
		return 0, fmt.Errorf("enqueue job %d: %w", id, err)
	}

	jobsSubmittedTotal.WithLabelValues(kind).Inc()
	p.logger.Debug("job submitted", "job_id", id, "kind", kind)
	return id, nil
}

func (p *Pool) entry(id int64) (*jobEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.jobs[id]
	return e, ok
}

// Job returns a snapshot of the job record.
func (p *Pool) Job(id int64) (model.Job, error) {
	e, ok := p.entry(id)
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	return e.snapshot(), nil
}

// Status returns the current status of the job.
func (p *Pool) Status(id int64) (string, error) {
	j, err := p.Job(id)
	if err != nil {
		return "", err
	}
	return j.Status, nil
}

// Result returns the terminal outcome of the job, or ErrNotReady while it is
// still registered or running.
func (p *Pool) Result(id int64) (*model.Outcome, error) {
	j, err := p.Job(id)
	if err != nil {
		return nil, err
	}
	if !model.IsTerminal(j.Status) {
		return nil, ErrNotReady
	}
	return j.Outcome(p.runID), nil
}

// Jobs returns snapshots of every job, ordered by id.
func (p *Pool) Jobs() []model.Job {
	p.mu.RLock()
	entries := make([]*jobEntry, 0, len(p.jobs))
	for _, e := range p.jobs {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	jobs := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, e.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// QueueLen returns the number of jobs waiting for a worker.
func (p *Pool) QueueLen() int {
	return p.queue.Len()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// RunID returns the ULID identifying this pool's process run.
func (p *Pool) RunID() string {
	return p.runID
}

// Broker returns the status broker for event streaming.
func (p *Pool) Broker() *StatusBroker {
	return p.broker
}

// State returns the pool state.
func (p *Pool) State() string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

func (p *Pool) setState(s string) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.state = s
}

// BeginShutdown stops accepting jobs and lets the workers drain the queue.
// It returns without waiting. Calling it more than once has no effect.
func (p *Pool) BeginShutdown() {
	p.stateMu.Lock()
	if p.state != StateRunning {
		p.stateMu.Unlock()
		return
	}
	p.state = StateShuttingDown
	p.stateMu.Unlock()

	p.queue.CloseForNewWork()
	p.logger.Info("worker pool shutting down", "queued", p.queue.Len())
}

// Shutdown stops accepting jobs and blocks until every accepted job is
// terminal and all workers have exited, or ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.BeginShutdown()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the pool has stopped.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}
