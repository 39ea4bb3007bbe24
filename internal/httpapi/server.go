// Package httpapi implements the gateway's thin HTTP surface: `/` and
// `/inspect` for the inspect request/response cycle, `/stats` for
// aggregate counters, and `/metrics` for Prometheus scraping. The router
// carries request-id, logging, timeout, and permissive localhost CORS
// middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/riftline/inspectgate/internal/format"
	"github.com/riftline/inspectgate/internal/inspect"
	"github.com/riftline/inspectgate/internal/metrics"
	"github.com/riftline/inspectgate/internal/workermanager"
)

// InspectService is the subset of *inspect.Service the server depends on.
type InspectService interface {
	Inspect(ctx context.Context, req inspect.Request) (*format.Response, error)
}

// StatsProvider is the subset of *workermanager.Manager the /stats handler
// depends on.
type StatsProvider interface {
	Stats() workermanager.Stats
}

// Config wires a Server's collaborators.
type Config struct {
	Inspect InspectService
	Stats   StatsProvider
	Metrics *metrics.Registry
	Timeout time.Duration // per-request deadline, default 6s (admission deadline + headroom)
}

// Server is the gateway's HTTP surface.
type Server struct {
	router  *mux.Router
	inspect InspectService
	stats   StatsProvider
	metrics *metrics.Registry
	timeout time.Duration
	http    *http.Server
}

// NewServer builds a Server bound to addr; call Start to begin serving.
func NewServer(addr string, cfg Config) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}

	s := &Server{
		inspect: cfg.Inspect,
		stats:   cfg.Stats,
		metrics: cfg.Metrics,
		timeout: timeout,
	}

	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(s.timeoutMiddleware)
	router.Use(s.corsMiddleware)

	router.HandleFunc("/", s.handleInspect).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/inspect", s.handleInspect).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	s.router = router
	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("starting http server")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	req, err := inspect.ParseRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	resp, err := s.inspect.Inspect(r.Context(), req)
	if err != nil {
		s.recordOutcome("error", start)
		s.writeInspectError(w, err)
		return
	}

	s.recordOutcome("success", start)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordOutcome(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordInspect(outcome, time.Since(start))
	}
}

func (s *Server) writeInspectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inspect.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, inspect.ErrQueueTimeout):
		writeError(w, http.StatusGatewayTimeout, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err)
	case errors.Is(err, inspect.ErrMalformedInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, s.timeout, `{"error":"request timed out"}`)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
