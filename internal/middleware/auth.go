// Package middleware provides HTTP middleware for the GroupFit API
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/errors"
	internalhttputil "github.com/groupfit/server/internal/httputil"
	"github.com/groupfit/server/internal/logging"
)

type claimsKey struct{}

// TokenParser validates a bearer token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	tokens       TokenParser
	revocations  auth.Revocations
	logger       *logging.Logger
	skipPaths    map[string]bool
	skipPrefixes []string
}

// NewAuthMiddleware creates a new authentication middleware. Entries of
// skipPaths ending in "/" skip every path below them.
func NewAuthMiddleware(tokens TokenParser, revocations auth.Revocations, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	m := &AuthMiddleware{
		tokens:      tokens,
		revocations: revocations,
		logger:      logger,
		skipPaths:   make(map[string]bool),
	}
	for _, path := range skipPaths {
		if strings.HasSuffix(path, "/") {
			m.skipPrefixes = append(m.skipPrefixes, path)
			continue
		}
		m.skipPaths[path] = true
	}
	return m
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") == "" {
			m.respondError(w, r, errors.Unauthorized("Authentication credentials were not provided"))
			return
		}
		tokenString, ok := internalhttputil.BearerToken(r)
		if !ok {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.tokens.Parse(tokenString)
		if err != nil {
			m.respondError(w, r, errors.InvalidToken(err))
			return
		}
		if m.revocations != nil {
			revoked, err := m.revocations.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				m.respondError(w, r, errors.Internal("Failed to check token", err))
				return
			}
			if revoked {
				m.respondError(w, r, errors.InvalidToken(nil).WithDetails("reason", "token revoked"))
				return
			}
		}

		memberID, _ := claims.MemberID()
		ctx := logging.WithMemberID(r.Context(), memberID)
		if claims.Role != "" {
			ctx = logging.WithRole(ctx, claims.Role)
		}
		ctx = context.WithValue(ctx, claimsKey{}, claims)

		m.logger.WithContext(ctx).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) skip(path string) bool {
	if m.skipPaths[path] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("authentication failed")
}

// GetMemberID extracts the authenticated member id from context
func GetMemberID(ctx context.Context) (int64, bool) {
	return logging.GetMemberID(ctx)
}

// IsSuperuser reports whether the authenticated caller is a superuser
func IsSuperuser(ctx context.Context) bool {
	return logging.GetRole(ctx) == auth.RoleSuperuser
}

// GetClaims returns the validated token claims, if any
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}
