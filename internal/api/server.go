// Package api serves look angles, sub-satellite points and pass predictions
// over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zojak-ves/satview/internal/auth"
	"github.com/zojak-ves/satview/internal/health"
	"github.com/zojak-ves/satview/internal/httputil"
	"github.com/zojak-ves/satview/internal/metrics"
	"github.com/zojak-ves/satview/internal/propagation"
	"github.com/zojak-ves/satview/internal/stream"
	"github.com/zojak-ves/satview/internal/tle"
)

// Options configures a Server.
type Options struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool // take the client address from X-Forwarded-For / X-Real-IP
	Stream     stream.Config
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(opts Options, logger *slog.Logger, store *tle.Store, sweeper *propagation.Sweeper) *Server {
	mux := http.NewServeMux()
	h := &handlers{store: store, sweeper: sweeper, logger: logger}
	streamCfg := opts.Stream
	streamCfg.TrustProxy = opts.TrustProxy
	streams := stream.NewHandler(sweeper, store, streamCfg, logger)

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() error {
		if store.Get() == nil {
			return tle.ErrNoDataset
		}
		return nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/tle/metadata", h.tleMetadata)
	mux.HandleFunc("GET /api/v1/snapshot", h.snapshot)
	mux.HandleFunc("GET /api/v1/look/{norad_id}", h.look)
	mux.HandleFunc("GET /api/v1/groundtrack/{norad_id}", h.groundTrack)
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", h.passes)
	mux.HandleFunc("GET /api/v1/stream/look", streams.HandleLook)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(opts.Auth)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush passes through so streaming handlers work behind the middleware.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
