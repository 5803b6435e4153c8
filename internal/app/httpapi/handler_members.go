package httpapi

import (
	"net/http"
	"time"

	"github.com/groupfit/server/internal/app/domain/calendar"
	"github.com/groupfit/server/internal/app/services/members"
	"github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/httputil"
	"github.com/groupfit/server/internal/middleware"
)

type memberPayload struct {
	Email       *string        `json:"email"`
	Password    *string        `json:"password"`
	FirstName   *string        `json:"first_name"`
	LastName    *string        `json:"last_name"`
	DateOfBirth *calendar.Date `json:"date_of_birth"`
}

func (p memberPayload) update() members.UpdateInput {
	return members.UpdateInput{
		Email:       p.Email,
		Password:    p.Password,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *handler) createMember(w http.ResponseWriter, r *http.Request) {
	var payload memberPayload
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	in := members.RegisterInput{
		Email:     deref(payload.Email),
		Password:  deref(payload.Password),
		FirstName: deref(payload.FirstName),
		LastName:  deref(payload.LastName),
	}
	if payload.DateOfBirth != nil {
		in.DateOfBirth = *payload.DateOfBirth
	}
	m, err := h.app.Members.Register(r.Context(), in)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handler) createToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	m, err := h.app.Members.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	token, claims, err := h.app.Tokens.Issue(m)
	if err != nil {
		httputil.WriteServiceError(w, r, errors.Internal("Failed to issue token", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		httputil.WriteServiceError(w, r, errors.Unauthorized("Authentication credentials were not provided"))
		return
	}
	expires := time.Now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if err := h.app.Revocations.Revoke(r.Context(), claims.ID, expires); err != nil {
		httputil.WriteServiceError(w, r, errors.Internal("Failed to revoke token", err))
		return
	}
	h.log.LogSecurityEvent(r.Context(), "logout", map[string]interface{}{"token_id": claims.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getMe(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Members.Get(r.Context(), actor(r).ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// replaceMe is a full update: email and password are mandatory.
func (h *handler) replaceMe(w http.ResponseWriter, r *http.Request) {
	var payload memberPayload
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.Email == nil {
		httputil.WriteServiceError(w, r, errors.Validation("email is required").WithDetails("field", "email"))
		return
	}
	if payload.Password == nil {
		httputil.WriteServiceError(w, r, errors.Validation("password is required").WithDetails("field", "password"))
		return
	}
	h.updateMe(w, r, payload)
}

func (h *handler) patchMe(w http.ResponseWriter, r *http.Request) {
	var payload memberPayload
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	h.updateMe(w, r, payload)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request, payload memberPayload) {
	m, err := h.app.Members.Update(r.Context(), actor(r).ID, payload.update())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *handler) searchMembers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Members.Search(r.Context(), r.URL.Query().Get("search_string"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
