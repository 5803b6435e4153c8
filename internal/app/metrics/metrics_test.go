package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/":                               "/",
		"/api/groups":                     "/api/groups",
		"/api/groups/12":                  "/api/groups/:id",
		"/api/friends/4/deleteFriend":     "/api/friends/:id/deleteFriend",
		"/api/groups/upload-evidence/3/9": "/api/groups/upload-evidence/:id/:id",
		"/api/groups/evidence/7/file":     "/api/groups/evidence/:id/file",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInstrumentHandlerRecordsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/groups/5", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `groupfit_http_requests_total{method="GET",path="/api/groups/:id",status="418"}`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("expected %s in exposition", want)
	}
}

func TestHandlerExposesDomainMetrics(t *testing.T) {
	RecordFriendEvent("requested")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "groupfit_friends_events_total") {
		t.Fatalf("expected friend events metric in exposition")
	}
}
