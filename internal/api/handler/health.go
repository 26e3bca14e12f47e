package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/lucasmonteiro/triageflow/internal/api/response"
)

// Pinger reports reachability of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthView struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  string            `json:"checked_at"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. It
// probes the database and the queue; any failing component degrades the
// overall status to 503.
func NewHealthHandler(db, q Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		view := healthView{
			Status:     "healthy",
			Components: map[string]string{"database": "up", "queue": "up"},
			CheckedAt:  time.Now().UTC().Format(time.RFC3339),
		}

		if err := db.Ping(ctx); err != nil {
			view.Status = "unhealthy"
			view.Components["database"] = "down"
		}
		if err := q.Ping(ctx); err != nil {
			view.Status = "unhealthy"
			view.Components["queue"] = "down"
		}

		if view.Status != "healthy" {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY",
				"One or more components are unavailable", view.Components)
			return
		}
		response.JSON(w, view)
	}
}
