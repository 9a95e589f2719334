package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/leochui/tifa-api/pkg/observability"
)

// Server hosts the chat endpoint alongside health and metrics.
type Server struct {
	httpServer *http.Server
}

// NewServer builds the route table around the chat handler. The health
// checks typically include a store ping.
func NewServer(addr string, handler *Handler, checks ...observability.HealthCheck) *Server {
	mux := http.NewServeMux()
	mux.Handle("/api/ask", recoverPanics(handler))
	mux.HandleFunc("/health", observability.HealthHandler(checks...))
	mux.Handle("/metrics", observability.MetricsHandler())

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// recoverPanics converts an unexpected panic into a generic 500 instead
// of crashing the process or leaking a stack trace.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[api] panic serving %s: %v", r.URL.Path, rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Internal error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
