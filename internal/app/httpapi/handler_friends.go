package httpapi

import (
	"net/http"

	"github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/httputil"
)

func (h *handler) listFriends(w http.ResponseWriter, r *http.Request) {
	memberID, err := queryID(r, "user_id", false)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	list, err := h.app.Friends.List(r.Context(), actor(r), memberID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) addFriend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RequestedBy *int64 `json:"requested_by_id"`
		Other       int64  `json:"user2_id"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	caller := actor(r)
	if payload.RequestedBy != nil && *payload.RequestedBy != caller.ID {
		httputil.WriteServiceError(w, r, errors.Forbidden("You may only send friend requests as yourself"))
		return
	}
	view, err := h.app.Friends.Request(r.Context(), caller, payload.Other)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *handler) respondFriend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID     int64  `json:"friend_conn_id"`
		Status string `json:"status"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.ID <= 0 {
		httputil.WriteServiceError(w, r, errors.Validation("friend_conn_id is required").WithDetails("field", "friend_conn_id"))
		return
	}
	view, err := h.app.Friends.Respond(r.Context(), actor(r), payload.ID, payload.Status)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if view == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Friend Connection Rejected"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) deleteFriend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if err := h.app.Friends.Remove(r.Context(), actor(r), id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
