package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupfit"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "members",
			Name:      "auth_attempts_total",
			Help:      "Token requests by outcome.",
		},
		[]string{"result"},
	)

	membersRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "members",
			Name:      "registered_total",
			Help:      "Total number of registered members.",
		},
	)

	membershipChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "membership_changes_total",
			Help:      "Membership additions, role changes and removals by outcome.",
		},
		[]string{"action", "result"},
	)

	evidenceUploads = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "groups",
			Name:      "evidence_upload_bytes",
			Help:      "Size of uploaded evidence files.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10), // 16KiB to ~8MiB
		},
	)

	friendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "friends",
			Name:      "events_total",
			Help:      "Friend requests and responses by kind.",
		},
		[]string{"event"},
	)

	housekeepingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "housekeeping",
			Name:      "runs_total",
			Help:      "Housekeeping task runs by task and success.",
		},
		[]string{"task", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		authAttempts,
		membersRegistered,
		membershipChanges,
		evidenceUploads,
		friendRequests,
		housekeepingRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordAuthAttempt counts a token request.
func RecordAuthAttempt(success bool) {
	authAttempts.WithLabelValues(boolLabel(success)).Inc()
}

// RecordRegistration counts a new member.
func RecordRegistration() {
	membersRegistered.Inc()
}

// RecordMembershipChange counts an add, role or remove action. Rejections by
// the last-admin rule are recorded with result "last_admin".
func RecordMembershipChange(action, result string) {
	membershipChanges.WithLabelValues(action, result).Inc()
}

// RecordEvidenceUpload observes the size of an uploaded file.
func RecordEvidenceUpload(size int64) {
	evidenceUploads.Observe(float64(size))
}

// RecordFriendEvent counts requested, accepted, rejected and removed events.
func RecordFriendEvent(event string) {
	friendRequests.WithLabelValues(event).Inc()
}

// RecordHousekeeping counts a scheduled task run.
func RecordHousekeeping(task string, success bool) {
	if task == "" {
		task = "unknown"
	}
	housekeepingRuns.WithLabelValues(task, boolLabel(success)).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses numeric path segments so ids do not explode label
// cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
