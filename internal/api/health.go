package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/database"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports whether the server can reach its database.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" && r.Method != "HEAD" {
			respondMethodNotAllowed(w, srv.Logger, r.Method)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := database.Ping(ctx, srv.DB); err != nil {
			srv.Logger.Error("health check failed", "error", err)
			respondJSON(w, srv.Logger, http.StatusServiceUnavailable,
				map[string]string{"status": "unavailable"})
			return
		}
		respondJSON(w, srv.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})
}
