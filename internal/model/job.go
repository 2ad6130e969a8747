package model

import (
	"encoding/json"
	"time"
)

// Job status constants.
const (
	StatusRegistered = "registered"
	StatusRunning    = "running"
	StatusDone       = "done"
	StatusError      = "error"
)

// Analysis kind constants. Each kind is served by one endpoint under /api.
const (
	KindStatesMean          = "states_mean"
	KindStateMean           = "state_mean"
	KindBest5               = "best5"
	KindWorst5              = "worst5"
	KindGlobalMean          = "global_mean"
	KindDiffFromMean        = "diff_from_mean"
	KindStateDiffFromMean   = "state_diff_from_mean"
	KindMeanByCategory      = "mean_by_category"
	KindStateMeanByCategory = "state_mean_by_category"
)

// Kinds lists every analysis kind in endpoint order.
var Kinds = []string{
	KindStatesMean,
	KindStateMean,
	KindBest5,
	KindWorst5,
	KindGlobalMean,
	KindDiffFromMean,
	KindStateDiffFromMean,
	KindMeanByCategory,
	KindStateMeanByCategory,
}

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusRegistered: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusDone:  true,
		StatusError: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no further transitions can leave status.
func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusError
}

// Job is one submitted unit of analytical work.
type Job struct {
	ID         int64           `json:"job_id"`
	Kind       string          `json:"kind"`
	Params     json.RawMessage `json:"params,omitempty"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Outcome is the terminal record of a job, as answered by result queries and
// written to the result store.
type Outcome struct {
	JobID      int64           `json:"job_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Outcome returns the terminal record of j. It must only be called once j
// has reached a terminal status.
func (j *Job) Outcome(runID string) *Outcome {
	o := &Outcome{
		JobID:  j.ID,
		Kind:   j.Kind,
		Status: j.Status,
		Result: j.Result,
		Error:  j.Error,
		RunID:  runID,
	}
	if j.FinishedAt != nil {
		o.FinishedAt = *j.FinishedAt
	}
	return o
}
