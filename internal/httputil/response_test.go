package httputil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/logging"
)

func TestWriteServiceErrorUsesStatusAndCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-9"))
	rec := httptest.NewRecorder()

	WriteServiceError(rec, req, fmt.Errorf("wrap: %w", errors.Forbidden("last admin")))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.Bytes()
	if got := gjson.GetBytes(body, "error.code").String(); got != string(errors.CodeForbidden) {
		t.Fatalf("code = %q", got)
	}
	if got := gjson.GetBytes(body, "error.trace_id").String(); got != "trace-9" {
		t.Fatalf("trace_id = %q", got)
	}
}

func TestWriteServiceErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	if !DecodeJSON(rec, req, &dst) || dst.Name != "x" {
		t.Fatalf("decode failed: %+v", dst)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	if DecodeJSON(rec, req, &dst) {
		t.Fatal("expected unknown field rejection")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if DecodeJSON(rec, req, &dst) {
		t.Fatal("expected empty body rejection")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Token abc", "abc", true},
		{"token  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, ok := BearerToken(req)
		if got != tc.want || ok != tc.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}
