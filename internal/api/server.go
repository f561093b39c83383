package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/app"
	"github.com/JakeFAU/maxscroll/internal/config"
	"github.com/JakeFAU/maxscroll/internal/metrics"
	"github.com/JakeFAU/maxscroll/internal/policy/ratelimit"
)

const maxEventsPerRequest = 500

// Ingester applies browser events to per-client trackers.
type Ingester interface {
	Apply(ctx context.Context, clientID string, events []app.BrowserEvent) error
	Remove(clientID string) bool
}

// ReadinessFunc reports whether downstream dependencies are usable.
type ReadinessFunc func(ctx context.Context) error

// Server wires HTTP handlers to the client registry.
type Server struct {
	router   chi.Router
	handler  http.Handler
	ingester Ingester
	metrics  *metrics.Metrics
	ready    ReadinessFunc
	limiter  *ratelimit.Limiter
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil ready
// function always reports ready.
func NewServer(
	ingester Ingester,
	m *metrics.Metrics,
	ready ReadinessFunc,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ingester: ingester,
		metrics:  m,
		ready:    ready,
		cfg:      cfg,
		logger:   logger,
	}
	s.limiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Server.RateLimitRPS,
		DefaultBurst: cfg.Server.RateLimitBurst,
		IdleTTL:      cfg.Registry.IdleTimeout(),
	})
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.serveMetrics)

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/clients/{client_id}", func(r chi.Router) {
			r.Post("/events", s.ingestEvents)
			r.Delete("/", s.removeClient)
		})
	})

	s.router = r
	s.handler = r
	if cfg.Telemetry.TracingEnabled {
		s.handler = otelhttp.NewHandler(r, "maxscroll-api")
	}
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

type eventsRequest struct {
	Events []app.BrowserEvent `json:"events"`
}

func (s *Server) ingestEvents(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	ctx, span := otel.Tracer("github.com/JakeFAU/maxscroll/internal/api").Start(r.Context(), "ingest events")
	defer span.End()
	span.SetAttributes(attribute.String("maxscroll.client_id", clientID))

	if !s.limiter.Allow(clientID) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if s.cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	}
	var req eventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events required")
		return
	}
	if len(req.Events) > maxEventsPerRequest {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d events per request", maxEventsPerRequest))
		return
	}
	span.SetAttributes(attribute.Int("maxscroll.events", len(req.Events)))

	if err := s.ingester.Apply(ctx, clientID, req.Events); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, app.ErrInvalidEvent):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRegistryClosed):
			writeError(w, http.StatusServiceUnavailable, "shutting down")
		default:
			s.logger.Error("apply events failed", zap.String("client_id", clientID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to apply events")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"client_id": clientID, "accepted": len(req.Events)})
}

func (s *Server) removeClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	s.limiter.Forget(clientID)
	if !s.ingester.Remove(clientID) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
