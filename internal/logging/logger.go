// Package logging wraps logrus with request-scoped context fields.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// TraceIDKey holds the per-request trace id.
	TraceIDKey contextKey = "trace_id"
	// MemberIDKey holds the authenticated member id.
	MemberIDKey contextKey = "member_id"
	// RoleKey holds the authenticated member's role.
	RoleKey contextKey = "role"
)

// Logger is a service-scoped logrus logger.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger writing to stdout.
func New(service, level, format string) *Logger {
	return NewWithOutput(service, level, format, os.Stdout)
}

// NewWithOutput creates a logger writing to out.
func NewWithOutput(service, level, format string, out io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// NewDefault returns an info-level JSON logger.
func NewDefault(service string) *Logger {
	return New(service, "info", "json")
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return NewWithOutput("test", "panic", "json", io.Discard)
}

// Service returns the service name attached to every entry.
func (l *Logger) Service() string {
	return l.service
}

// WithContext returns an entry carrying the trace and member fields found
// in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"service": l.service}
	if traceID := GetTraceID(ctx); traceID != "" {
		fields["trace_id"] = traceID
	}
	if memberID, ok := GetMemberID(ctx); ok {
		fields["member_id"] = memberID
	}
	if role := GetRole(ctx); role != "" {
		fields["role"] = role
	}
	return l.Logger.WithContext(ctx).WithFields(fields)
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records an authentication or throttling event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(logrus.Fields(fields)).WithField("event", event).Warn("security event")
}

// NewTraceID generates a trace id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores traceID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id in ctx, if any.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithMemberID stores the authenticated member id in ctx.
func WithMemberID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, MemberIDKey, id)
}

// GetMemberID returns the authenticated member id in ctx.
func GetMemberID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(MemberIDKey).(int64)
	return v, ok && v > 0
}

// WithRole stores the authenticated role in ctx.
func WithRole(ctx context.Context, role string) context.Context {
	if role == "" {
		return ctx
	}
	return context.WithValue(ctx, RoleKey, role)
}

// GetRole returns the authenticated role in ctx.
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}
