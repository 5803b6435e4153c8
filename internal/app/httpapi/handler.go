// Package httpapi exposes the GroupFit services over REST/JSON.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/groupfit/server/internal/app"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/metrics"
	"github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/httputil"
	"github.com/groupfit/server/internal/logging"
	"github.com/groupfit/server/internal/middleware"
)

// Options configures the HTTP stack around the handlers.
type Options struct {
	Logger         *logging.Logger
	AllowedOrigins []string
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *middleware.RateLimiter
	AuditSink   AuditSink
	AuditBuffer int
	// MaxUploadBytes caps one evidence file; <= 0 uses defaultUploadLimit.
	MaxUploadBytes int64
}

// publicPaths bypass authentication.
var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/member/create",
	"/api/member/token",
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app           *app.Application
	log           *logging.Logger
	audit         *auditLog
	maxUploadBody int64
}

// NewHandler returns the full middleware chain around the REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{
		app:   application,
		log:   log,
		audit: newAuditLog(opts.AuditBuffer, opts.AuditSink),
	}
	h.maxUploadBody = uploadBodyLimit(opts.MaxUploadBytes)

	var chain http.Handler = wrapWithAudit(h.routes(), h.audit)
	if opts.RateLimiter != nil {
		chain = opts.RateLimiter.Handler(chain)
	}
	chain = middleware.NewAuthMiddleware(application.Tokens, application.Revocations, log, publicPaths).Handler(chain)
	chain = middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(chain)
	chain = metrics.InstrumentHandler(chain)
	return middleware.NewTracingMiddleware(log).Handler(chain)
}

func (h *handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, string(errors.CodeNotFound), "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(httputil.MethodNotAllowed)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/member/create", h.createMember).Methods(http.MethodPost)
	api.HandleFunc("/member/token", h.createToken).Methods(http.MethodPost)
	api.HandleFunc("/member/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/member/me", h.getMe).Methods(http.MethodGet)
	api.HandleFunc("/member/me", h.replaceMe).Methods(http.MethodPut)
	api.HandleFunc("/member/me", h.patchMe).Methods(http.MethodPatch)
	api.HandleFunc("/member/search", h.searchMembers).Methods(http.MethodGet)

	api.HandleFunc("/groups", h.listMemberships).Methods(http.MethodGet)
	api.HandleFunc("/groups", h.createGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/created", h.listCreated).Methods(http.MethodGet)
	api.HandleFunc("/groups/members", h.listMembers).Methods(http.MethodGet)
	api.HandleFunc("/groups/addMember", h.addMember).Methods(http.MethodPost)
	api.HandleFunc("/groups/memberships/{id:[0-9]+}", h.changeRole).Methods(http.MethodPatch)
	api.HandleFunc("/groups/memberships/{id:[0-9]+}", h.removeMember).Methods(http.MethodDelete)
	api.HandleFunc("/groups/workout", h.listWorkouts).Methods(http.MethodGet)
	api.HandleFunc("/groups/workout", h.createWorkout).Methods(http.MethodPost)
	api.HandleFunc("/groups/workout/{id:[0-9]+}", h.deleteWorkout).Methods(http.MethodDelete)
	api.HandleFunc("/groups/evidence", h.listEvidence).Methods(http.MethodGet)
	api.HandleFunc("/groups/evidence/{id:[0-9]+}/file", h.evidenceFile).Methods(http.MethodGet)
	api.HandleFunc("/groups/upload-evidence/{member_id:[0-9]+}/{group_id:[0-9]+}", h.uploadEvidence).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}", h.getGroup).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id:[0-9]+}", h.updateGroup).Methods(http.MethodPatch)
	api.HandleFunc("/groups/{id:[0-9]+}", h.deleteGroup).Methods(http.MethodDelete)

	api.HandleFunc("/friends/getFriends", h.listFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends/addFriend", h.addFriend).Methods(http.MethodPost)
	api.HandleFunc("/friends/response", h.respondFriend).Methods(http.MethodPatch)
	api.HandleFunc("/friends/{id:[0-9]+}/deleteFriend", h.deleteFriend).Methods(http.MethodDelete)

	api.HandleFunc("/admin/audit", h.auditEntries).Methods(http.MethodGet)
	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.app.Health.Ping(ctx); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("readiness check failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsSuperuser(r.Context()) {
		httputil.WriteServiceError(w, r, errors.Forbidden("Superuser access required"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteServiceError(w, r, errors.Validation("limit must be a non-negative integer").WithDetails("field", "limit"))
			return
		}
		limit = n
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// actor returns the authenticated caller.
func actor(r *http.Request) member.Actor {
	id, _ := middleware.GetMemberID(r.Context())
	return member.Actor{ID: id, Superuser: middleware.IsSuperuser(r.Context())}
}

// pathID parses a numeric route variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validationf("invalid %s", name).WithDetails("field", name)
	}
	return id, nil
}

// queryID parses a numeric query parameter. Absent parameters yield 0
// unless required.
func queryID(r *http.Request, name string, required bool) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, errors.Validationf("%s is required", name).WithDetails("field", name)
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validationf("%s must be a positive integer", name).WithDetails("field", name)
	}
	return id, nil
}
