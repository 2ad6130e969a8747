package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/seantiz/healthstat/internal/model"
)

// runWorker executes queued jobs until the queue is closed and empty.
func (p *Pool) runWorker(n int) {
	logger := p.logger.With("worker", n)
	for {
		id, ok := p.queue.Dequeue()
		if !ok {
			logger.Debug("worker exiting")
			return
		}
		jobsQueued.Dec()
		p.execute(logger, id)
	}
}

// execute runs the job lifecycle: registered→running→done/error.
func (p *Pool) execute(logger *slog.Logger, id int64) {
	e, ok := p.entry(id)
	if !ok {
		logger.Error("dequeued unknown job", "job_id", id)
		return
	}

	start := time.Now().UTC()
	e.mu.Lock()
	if !model.ValidTransition(e.job.Status, model.StatusRunning) {
		status := e.job.Status
		e.mu.Unlock()
		logger.Error("job not claimable", "job_id", id, "status", status)
		return
	}
	e.job.Status = model.StatusRunning
	e.job.StartedAt = &start
	kind, params := e.job.Kind, e.job.Params
	e.mu.Unlock()

	p.broker.Publish(StatusEvent{JobID: id, Status: model.StatusRunning, At: start})
	workersBusy.Inc()

	result, err := p.compute(kind, params)

	workersBusy.Dec()
	finished := time.Now().UTC()

	e.mu.Lock()
	if err != nil {
		e.job.Status = model.StatusError
		e.job.Error = err.Error()
	} else {
		e.job.Status = model.StatusDone
		e.job.Result = result
	}
	e.job.FinishedAt = &finished
	outcome := e.job.Outcome(p.runID)
	e.mu.Unlock()

	jobsFinishedTotal.WithLabelValues(kind, outcome.Status).Inc()
	jobDuration.WithLabelValues(kind).Observe(finished.Sub(start).Seconds())
	if err != nil {
		logger.Warn("job failed", "job_id", id, "kind", kind, "error", err)
	} else {
		logger.Debug("job done", "job_id", id, "kind", kind, "duration_ms", finished.Sub(start).Milliseconds())
	}

	p.persist(logger, outcome)
	p.broker.Publish(StatusEvent{JobID: id, Status: outcome.Status, At: finished})
}

// compute calls the Computer and encodes its result. A panic inside the
// computation becomes an error for this job only.
func (p *Pool) compute(kind string, params json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in compute",
				"kind", kind,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	v, err := p.computer.Compute(context.Background(), kind, params)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

// persist writes the outcome to the result store and notifies the
// publisher. Failures are logged and never change the job status.
func (p *Pool) persist(logger *slog.Logger, o *model.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if p.store != nil {
		if err := p.store.Persist(ctx, o); err != nil {
			persistFailuresTotal.Inc()
			logger.Error("failed to persist outcome", "job_id", o.JobID, "error", err)
		}
	}
	if p.publisher != nil {
		if err := p.publisher.PublishOutcome(ctx, o); err != nil {
			logger.Warn("failed to publish outcome", "job_id", o.JobID, "error", err)
		}
	}
}
