// internal/middleware/observe.go
//
// Request instrumentation.
//
// For every request Observe records:
//
//   • sqlscope_http_requests_total{route,method,status}
//   • sqlscope_http_request_duration_seconds{route}
//   • a DEBUG span with the client IP, path, status, and latency
//
// The route label is chi's matched pattern ("/metrics/wait-stats"), never
// the raw path, so label cardinality stays bounded.  Unmatched requests are
// labelled "unmatched".  Mount chi's RealIP ahead of Observe so RemoteAddr
// already holds the client address.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/sqlscope/internal/metrics"
)

// Observe wraps next with metrics and a debug log span.
func Observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		zap.S().Debugw("http request",
			"ip", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"elapsed_ms", elapsed.Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
