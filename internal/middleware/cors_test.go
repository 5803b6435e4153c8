package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/groupfit/server/internal/logging"
)

func TestCORS_AllowedOriginAndPreflight(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example.com/"}).Handler(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/groups", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin = %q", got)
	}

	evil := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	evil.Header.Set("Origin", "https://evil-app.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, evil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTracing_EchoesTraceIDAndRecovers(t *testing.T) {
	handler := NewTracingMiddleware(logging.Discard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("X-Trace-ID") != "trace-123" {
		t.Fatalf("trace id not echoed")
	}
}
