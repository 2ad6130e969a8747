package api

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Pool    string `json:"pool"`
	Workers int    `json:"workers"`
	RunID   string `json:"run_id"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Pool:    s.pool.State(),
		Workers: s.pool.Workers(),
		RunID:   s.pool.RunID(),
	})
}
