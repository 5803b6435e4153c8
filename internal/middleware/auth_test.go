package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/logging"
)

func newTestTokens(t *testing.T) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "groupfit", time.Hour)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware(newTestTokens(t), nil, logging.Discard(), []string{"/healthz", "/api/member/create", "/public/"})
	handler := m.Handler(okHandler())

	for _, path := range []string{"/healthz", "/api/member/create", "/public/anything"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware_MissingAndMalformedHeader(t *testing.T) {
	m := NewAuthMiddleware(newTestTokens(t), nil, logging.Discard(), nil)
	handler := m.Handler(okHandler())

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "UNAUTHORIZED"},
		{"no scheme", "token123", "UNAUTHORIZED"},
		{"wrong scheme", "Basic token123", "UNAUTHORIZED"},
		{"empty token", "Bearer ", "UNAUTHORIZED"},
		{"garbage token", "Bearer not-a-jwt", "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/member/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if got := gjson.Get(rec.Body.String(), "error.code").String(); got != tt.code {
				t.Fatalf("error.code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestAuthMiddleware_ValidTokenBothSchemes(t *testing.T) {
	tokens := newTestTokens(t)
	signed, _, err := tokens.Issue(member.Member{ID: 17, Email: "a@example.com", IsSuperuser: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m := NewAuthMiddleware(tokens, auth.NewMemoryRevocations(), logging.Discard(), nil)

	for _, scheme := range []string{"Bearer", "Token"} {
		var gotID int64
		var superuser bool
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotID, _ = GetMemberID(r.Context())
			superuser = IsSuperuser(r.Context())
			if _, ok := GetClaims(r.Context()); !ok {
				t.Errorf("claims missing from context")
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/member/me", nil)
		req.Header.Set("Authorization", scheme+" "+signed)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", scheme, rec.Code)
		}
		if gotID != 17 || !superuser {
			t.Fatalf("%s: member id = %d superuser = %v", scheme, gotID, superuser)
		}
	}
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	tokens := newTestTokens(t)
	signed, claims, err := tokens.Issue(member.Member{ID: 3})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	revocations := auth.NewMemoryRevocations()
	if err := revocations.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	handler := NewAuthMiddleware(tokens, revocations, logging.Discard(), nil).Handler(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
