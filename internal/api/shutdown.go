package api

import "net/http"

type shutdownResponse struct {
	Status string `json:"status"`
}

// handleGracefulShutdown stops the pool from accepting jobs. Queued and
// running jobs keep draining after the response is written.
func (s *Server) handleGracefulShutdown(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("graceful shutdown requested", "queued", s.pool.QueueLen())
	s.pool.BeginShutdown()
	s.writeJSON(w, http.StatusOK, shutdownResponse{Status: "shutdown initiated"})
}
