package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/healthstat/internal/engine"
	"github.com/seantiz/healthstat/internal/model"
	"github.com/seantiz/healthstat/internal/store"
)

const maxBodySize = 1 << 20 // 1 MB

const (
	reasonInvalidJSON  = "Invalid JSON format"
	reasonShuttingDown = "shutting down"
	reasonInvalidJobID = "Invalid job_id"
	reasonJobFailed    = "Job processing failed"
)

type submitResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type jobErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Data   any    `json:"data,omitempty"`
}

type resultResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type jobStatusResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

type jobStatusesResponse struct {
	Status string            `json:"status"`
	Data   map[string]string `json:"data"`
}

type listJobsResponse struct {
	Status   string              `json:"status"`
	Data     []jobStatusResponse `json:"data"`
	JobCount int                 `json:"job_count"`
}

type numJobsResponse struct {
	NumJobs int `json:"num_jobs"`
}

// handleSubmit returns the handler queuing a job of the given kind with the
// request body as its parameters.
func (s *Server) handleSubmit(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params json.RawMessage
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			httpRejectedSubmits.WithLabelValues(kind, rejectInvalidJSON).Inc()
			s.writeJobError(w, http.StatusBadRequest, reasonInvalidJSON)
			return
		}

		id, err := s.pool.Submit(kind, params)
		if errors.Is(err, engine.ErrPoolShuttingDown) {
			httpRejectedSubmits.WithLabelValues(kind, rejectShuttingDown).Inc()
			s.logger.Info("rejecting job during shutdown", "kind", kind)
			s.writeJSON(w, http.StatusServiceUnavailable, submitResponse{
				JobID:  -1,
				Status: "error",
				Reason: reasonShuttingDown,
			})
			return
		}
		if err != nil {
			s.logger.Error("submit job", "kind", kind, "error", err)
			s.writeJobError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		s.writeJSON(w, http.StatusOK, submitResponse{JobID: id, Status: "submitted"})
	}
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(r)
	if !ok {
		s.writeJobError(w, http.StatusNotFound, reasonInvalidJobID)
		return
	}

	// Branch on a single snapshot so a terminal status is always answered
	// together with its result or error.
	var o *model.Outcome
	job, err := s.pool.Job(id)
	switch {
	case errors.Is(err, engine.ErrJobNotFound):
		o, err = s.storedOutcome(r, id)
		if err != nil {
			s.writeJobError(w, http.StatusNotFound, reasonInvalidJobID)
			return
		}
	case err != nil:
		s.logger.Error("get job result", "job_id", id, "error", err)
		s.writeJobError(w, http.StatusInternalServerError, "Server error")
		return
	case !model.IsTerminal(job.Status):
		s.writeJSON(w, http.StatusOK, resultResponse{Status: job.Status})
		return
	default:
		o = job.Outcome(s.pool.RunID())
	}

	if o.Status == model.StatusError {
		s.writeJSON(w, http.StatusInternalServerError, jobErrorResponse{
			Status: "error",
			Reason: reasonJobFailed,
			Data:   map[string]string{"error": o.Error},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, resultResponse{Status: o.Status, Data: o.Result})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(r)
	if !ok {
		s.writeJobError(w, http.StatusNotFound, reasonInvalidJobID)
		return
	}

	status, err := s.pool.Status(id)
	if errors.Is(err, engine.ErrJobNotFound) {
		o, serr := s.storedOutcome(r, id)
		if serr != nil {
			s.writeJobError(w, http.StatusNotFound, reasonInvalidJobID)
			return
		}
		status = o.Status
	}

	s.writeJSON(w, http.StatusOK, jobStatusResponse{JobID: id, Status: status})
}

func (s *Server) handleJobStatuses(w http.ResponseWriter, _ *http.Request) {
	jobs := s.pool.Jobs()
	data := make(map[string]string, len(jobs))
	for _, j := range jobs {
		data[strconv.FormatInt(j.ID, 10)] = j.Status
	}
	s.writeJSON(w, http.StatusOK, jobStatusesResponse{Status: "done", Data: data})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.pool.Jobs()
	data := make([]jobStatusResponse, len(jobs))
	for i, j := range jobs {
		data[i] = jobStatusResponse{JobID: j.ID, Status: j.Status}
	}
	s.writeJSON(w, http.StatusOK, listJobsResponse{Status: "done", Data: data, JobCount: len(data)})
}

func (s *Server) handleNumJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, numJobsResponse{NumJobs: s.pool.QueueLen()})
}

// storedOutcome looks id up in the result store, which holds outcomes of
// earlier runs.
func (s *Server) storedOutcome(r *http.Request, id int64) (*model.Outcome, error) {
	if s.store == nil {
		return nil, store.ErrNotFound
	}
	o, err := s.store.Get(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("read stored outcome", "job_id", id, "error", err)
	}
	return o, err
}

// parseJobID reads the {job_id} URL parameter. Ids are positive integers.
func parseJobID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "job_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
