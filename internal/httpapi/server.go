package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volttest/pkg/types"
)

// Service defines the methods required by the control API layer.
type Service interface {
	Stats() types.RegistryStats
	ServerStatus(key string) (types.ServerStatus, bool)
	StopServer(key string) bool
	Events() []types.EventRecord
}

// NewMux builds the control API router: registry stats, per-server status and
// stop, lifecycle events, health, and prometheus metrics.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Stats())
	})

	r.Get("/servers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"servers": svc.Stats().Servers})
	})

	r.Get("/servers/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		st, ok := svc.ServerStatus(key)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "unknown server key")
			return
		}
		writeJSON(w, st)
	})

	r.Post("/servers/{key}/stop", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !svc.StopServer(key) {
			writeJSONError(w, http.StatusNotFound, "unknown server key")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"events": svc.Events()})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
