// Package server serves the function over plain HTTP for local runs and
// container deployments. Every path is handed to the router; /metrics
// exposes the Prometheus registry.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewatch/visitorfn/internal/logging"
	"github.com/sitewatch/visitorfn/internal/metrics"
	"github.com/sitewatch/visitorfn/internal/router"
	"github.com/sitewatch/visitorfn/pkg/response"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Handler routes one request.
type Handler interface {
	Handle(ctx context.Context, req router.Request) response.Response
}

// Config configures the HTTP server
type Config struct {
	// Address to bind the server to (e.g., ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// EnableMetrics exposes /metrics
	EnableMetrics bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Address:       ":8080",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   60 * time.Second,
		EnableMetrics: true,
	}
}

// Server is the local HTTP front end of the router.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	handler    Handler
	metrics    *metrics.Recorder
	config     Config
	logger     *zap.Logger
}

type requestIDKey struct{}

// New creates a server. recorder may be nil.
func New(config Config, handler Handler, recorder *metrics.Recorder, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{
		handler: handler,
		metrics: recorder,
		config:  config,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	if config.EnableMetrics && recorder != nil {
		r.Method(http.MethodGet, "/metrics", recorder.Handler())
	}

	r.Handle("/", http.HandlerFunc(s.dispatch))
	r.Handle("/*", http.HandlerFunc(s.dispatch))
	r.NotFound(s.dispatch)
	r.MethodNotAllowed(s.dispatch)

	s.router = r
	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           r,
		ReadHeaderTimeout: config.ReadTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler for use with httptest or another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("address", s.config.Address),
		zap.Bool("metrics", s.config.EnableMetrics && s.metrics != nil))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	resp := s.handler.Handle(r.Context(), router.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Headers:   headers,
		RequestID: RequestID(r.Context()),
	})
	writeResponse(w, resp, s.logger)
}

// RequestID returns the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeResponse(w http.ResponseWriter, resp response.Response, logger *zap.Logger) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write([]byte(resp.Body)); err != nil {
		logger.Debug("response write failed", zap.Error(err))
	}
}

// Middleware

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"))
				writeResponse(w, response.InternalServerError(), s.logger)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
