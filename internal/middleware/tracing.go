package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/groupfit/server/internal/errors"
	internalhttputil "github.com/groupfit/server/internal/httputil"
	"github.com/groupfit/server/internal/logging"
)

// TracingMiddleware adds a trace ID to every request and logs it on
// completion.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = logging.NewTraceID()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				m.logger.WithContext(ctx).WithField("panic", rec).WithField("stack", string(debug.Stack())).
					Error("panic while serving request")
				if !rw.written {
					internalhttputil.WriteServiceError(rw, r.WithContext(ctx), errors.Internal("Internal server error", nil))
				}
			}
			m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
