package httpapi

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/groupfit/server/internal/app/domain/group"
	"github.com/groupfit/server/internal/app/services/groups"
	"github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/httputil"
)

const (
	defaultUploadLimit = 10 << 20
	// multipartOverhead leaves room for the form fields and part headers.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

// uploadBodyLimit is the request body cap for an evidence upload whose file
// may be up to fileLimit bytes.
func uploadBodyLimit(fileLimit int64) int64 {
	if fileLimit <= 0 {
		fileLimit = defaultUploadLimit
	}
	return fileLimit + multipartOverhead
}

func (h *handler) listMemberships(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Groups.ListMemberships(r.Context(), actor(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name      string `json:"group_name"`
		Target    *int   `json:"target_workout_number_per_week"`
		CreatedBy *int64 `json:"created_by"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	caller := actor(r)
	if payload.CreatedBy != nil && *payload.CreatedBy != caller.ID {
		httputil.WriteServiceError(w, r, errors.Forbidden("You may only create groups as yourself"))
		return
	}
	g, _, err := h.app.Groups.CreateGroup(r.Context(), caller, groups.CreateGroupInput{
		Name:                       payload.Name,
		TargetWorkoutNumberPerWeek: payload.Target,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, g)
}

func (h *handler) listCreated(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Groups.ListCreated(r.Context(), actor(r))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	g, err := h.app.Groups.GetGroup(r.Context(), actor(r), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (h *handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	var payload struct {
		Name   *string `json:"group_name"`
		Target *int    `json:"target_workout_number_per_week"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	g, err := h.app.Groups.UpdateGroup(r.Context(), actor(r), id, groups.UpdateGroupInput{
		Name:                       payload.Name,
		TargetWorkoutNumberPerWeek: payload.Target,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (h *handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if err := h.app.Groups.DeleteGroup(r.Context(), actor(r), id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryID(r, "group_id", true)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	list, err := h.app.Groups.ListMembers(r.Context(), actor(r), groupID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MemberID int64  `json:"member"`
		GroupID  int64  `json:"group"`
		Role     string `json:"member_role"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	listing, err := h.app.Groups.AddMember(r.Context(), actor(r), groups.AddMemberInput{
		GroupID:  payload.GroupID,
		MemberID: payload.MemberID,
		Role:     payload.Role,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, listing)
}

func (h *handler) changeRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	var payload struct {
		Role string `json:"member_role"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	ms, err := h.app.Groups.ChangeRole(r.Context(), actor(r), id, payload.Role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ms)
}

func (h *handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if err := h.app.Groups.RemoveMember(r.Context(), actor(r), id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryID(r, "group_id", true)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	list, err := h.app.Groups.ListWorkouts(r.Context(), actor(r), groupID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		GroupID     int64  `json:"group"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Link        string `json:"link"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	wk, err := h.app.Groups.CreateWorkout(r.Context(), actor(r), groups.CreateWorkoutInput{
		GroupID:     payload.GroupID,
		Name:        payload.Name,
		Description: payload.Description,
		Link:        payload.Link,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wk)
}

func (h *handler) deleteWorkout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	if err := h.app.Groups.DeleteWorkout(r.Context(), actor(r), id); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listEvidence(w http.ResponseWriter, r *http.Request) {
	workoutID, err := queryID(r, "workout_id", true)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	memberID, err := queryID(r, "member_id", false)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	list, err := h.app.Groups.ListEvidence(r.Context(), actor(r), workoutID, memberID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	for i := range list {
		list[i].FileURL = evidenceURL(list[i])
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) uploadEvidence(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "member_id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	groupID, err := pathID(r, "group_id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			httputil.WriteServiceError(w, r, errors.TooLarge(tooLarge.Limit))
			return
		}
		httputil.WriteServiceError(w, r, errors.Validationf("invalid multipart body: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	workoutID, err := strconv.ParseInt(r.FormValue("workout"), 10, 64)
	if err != nil || workoutID <= 0 {
		httputil.WriteServiceError(w, r, errors.Validation("workout must be a positive integer").WithDetails("field", "workout"))
		return
	}

	var file io.Reader
	if f, _, err := r.FormFile("evidence_item"); err == nil {
		defer f.Close()
		file = f
	}

	e, err := h.app.Groups.UploadEvidence(r.Context(), actor(r), groups.UploadInput{
		MemberID:  memberID,
		GroupID:   groupID,
		WorkoutID: workoutID,
		Comment:   r.FormValue("comment"),
		File:      file,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	e.FileURL = evidenceURL(e)
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *handler) evidenceFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	e, rc, err := h.app.Groups.OpenEvidence(r.Context(), actor(r), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	defer rc.Close()
	if e.MediaType != "" {
		w.Header().Set("Content-Type", e.MediaType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("stream evidence file")
	}
}

func evidenceURL(e group.Evidence) string {
	if e.FileKey == "" {
		return ""
	}
	return fmt.Sprintf("/api/groups/evidence/%d/file", e.ID)
}
