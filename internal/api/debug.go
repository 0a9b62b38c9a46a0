package api

import (
	"context"
	"net/http"
	"time"

	"cookiebox/internal/buildinfo"
	"cookiebox/internal/metrics"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the database and the Redis broker when they are in use.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	for name, dep := range map[string]any{"store": s.Store, "broker": s.Broker} {
		p, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// DebugJSON reports build metadata and which backends are wired.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  s.clock().UTC().Format(time.RFC3339),
		"backends": map[string]string{
			"store":  backendName(s.Store),
			"broker": backendName(s.Broker),
		},
		"rateLimited": s.Limiter != nil,
	})
}

func backendName(v any) string {
	type named interface{ Backend() string }
	if n, ok := v.(named); ok {
		return n.Backend()
	}
	return "memory"
}

func metricsHandler() http.Handler {
	metrics.RegisterDefault()
	return metrics.Handler()
}
