package handler

import (
	"net/http"

	"github.com/lucasmonteiro/triageflow/internal/api/response"
)

// NewQueueStatsHandler returns an http.HandlerFunc for GET /api/v1/queue/stats.
func NewQueueStatsHandler(svc TriageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.QueueStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Queue statistics are unavailable", nil)
			return
		}
		response.JSON(w, stats)
	}
}
