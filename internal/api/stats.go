package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByModel       map[string]int `json:"by_model"`
	TotalSamples  int            `json:"total_samples"`
	FailedSamples int            `json:"failed_samples"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSweepStats(r.Context())
	if err != nil {
		s.logger.Error("get sweep stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByModel:       stats.CountByModel,
		TotalSamples:  stats.TotalSamples,
		FailedSamples: stats.FailedSamples,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
