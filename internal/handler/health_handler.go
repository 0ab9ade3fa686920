// internal/handler/health_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	DB Pinger
}

func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			status, code = "database unavailable", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
