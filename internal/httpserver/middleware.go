package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onlyfeng/engram-gateway/internal/correlation"
	"github.com/onlyfeng/engram-gateway/internal/redact"
	"github.com/onlyfeng/engram-gateway/internal/telemetry"
)

// Correlation generates the request's single correlation id (or, per the
// front-end contract, this is the only place in production wiring allowed
// to call correlation.New), stores it in the request context, and sets it
// on the response header so every downstream write shares one value.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := correlation.New()
		w.Header().Set("X-Correlation-ID", id)
		ctx := correlation.NewContext(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger logs every request with method, path, status, duration, and the
// request's correlation id. Any secret-shaped substring in the path is
// redacted before it reaches the log line.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("http request",
				"method", r.Method,
				"path", redact.String(r.URL.Path),
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"correlation_id", correlation.FromContext(r.Context()),
			)
		})
	}
}

// Metrics records request duration to Prometheus, labeled by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		routePath := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				routePath = pattern
			}
		}

		telemetry.HTTPRequestDuration.WithLabelValues(
			r.Method,
			routePath,
			strconv.Itoa(sw.status),
		).Observe(time.Since(start).Seconds())
	})
}

// BearerAuth enforces SPEC_FULL.md's optional static bearer-token check: if
// tokens is non-empty, every request must present a matching
// Authorization: Bearer <token> header. No token value is ever logged.
func BearerAuth(tokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			allowed[t] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			h := r.Header.Get("Authorization")
			if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
				Respond(w, http.StatusUnauthorized, map[string]string{"detail": "missing bearer token"})
				return
			}
			if _, ok := allowed[h[len(prefix):]]; !ok {
				Respond(w, http.StatusForbidden, map[string]string{"detail": "invalid bearer token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
