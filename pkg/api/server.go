// Package api provides the thin HTTP adapter over the queue backend:
// create/get/delete/retry/stats/health, translating requests into queue
// backend calls.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/metrics"
	"github.com/samet-stack/ironforge/pkg/queue"
)

// Version is the service version reported by /health.
const Version = "0.1.0"

// Config holds server configuration.
type Config struct {
	Addr           string
	Backend        queue.Backend
	Recorder       *metrics.Recorder
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// Server is the IronForge HTTP API server.
type Server struct {
	backend    queue.Backend
	recorder   *metrics.Recorder
	logger     zerolog.Logger
	origins    []string
	httpServer *http.Server
}

// NewServer builds a Server bound to cfg.Addr, wiring every route onto a
// single ServeMux (no external router, matching the rest of this stack).
func NewServer(cfg Config) *Server {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		backend:  cfg.Backend,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		origins:  origins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", s.cors(s.handleCreateJob))
	mux.HandleFunc("GET /jobs/{id}", s.cors(s.handleGetJob))
	mux.HandleFunc("DELETE /jobs/{id}", s.cors(s.handleDeleteJob))
	mux.HandleFunc("POST /jobs/{id}/retry", s.cors(s.handleRetryJob))
	mux.HandleFunc("GET /queues/stats", s.cors(s.handleStats))
	mux.HandleFunc("GET /health", s.cors(s.handleHealth))
	if cfg.Recorder != nil {
		mux.Handle("GET /metrics", cfg.Recorder.Handler())
	}

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Start begins serving and blocks until the listener errors or is closed
// by Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server starting")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// cors adds permissive CORS headers, matching the allow-list from Config.
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, o := range s.origins {
			if o == "*" || o == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if o == "*" {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
		"service": "ironforge",
	})
}

// requestTimeout bounds how long a single API request waits on the
// backend before giving up with a 500.
const requestTimeout = 5 * time.Second

func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
