package groups

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/groupfit/server/internal/app/domain/group"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/media"
	"github.com/groupfit/server/internal/app/metrics"
	"github.com/groupfit/server/internal/app/storage"
	apperrors "github.com/groupfit/server/internal/errors"
)

// ListWorkouts returns a group's workouts to its members.
func (s *Service) ListWorkouts(ctx context.Context, actor member.Actor, groupID int64) ([]group.Workout, error) {
	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, actor, g); err != nil {
		return nil, err
	}
	list, err := s.store.ListWorkouts(ctx, groupID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list workouts", err)
	}
	if list == nil {
		list = []group.Workout{}
	}
	return list, nil
}

// CreateWorkoutInput carries the fields of a new workout.
type CreateWorkoutInput struct {
	GroupID     int64
	Name        string
	Description string
	Link        string
}

// CreateWorkout adds a workout to a group. Admins only.
func (s *Service) CreateWorkout(ctx context.Context, actor member.Actor, in CreateWorkoutInput) (group.Workout, error) {
	w := group.Workout{
		GroupID:     in.GroupID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Link:        strings.TrimSpace(in.Link),
	}
	if w.Name == "" {
		return group.Workout{}, apperrors.Validation("name is required").WithDetails("field", "name")
	}
	if w.Link != "" {
		u, err := url.ParseRequestURI(w.Link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return group.Workout{}, apperrors.Validation("link must be an http or https URL").WithDetails("field", "link")
		}
	}
	g, err := s.loadGroup(ctx, in.GroupID)
	if err != nil {
		return group.Workout{}, err
	}
	if err := s.requireAdmin(ctx, actor, g, false); err != nil {
		return group.Workout{}, err
	}
	created, err := s.store.CreateWorkout(ctx, w)
	if err != nil {
		return group.Workout{}, storeError(err, "group", in.GroupID)
	}
	return created, nil
}

// DeleteWorkout removes a workout and its evidence. Admins only.
func (s *Service) DeleteWorkout(ctx context.Context, actor member.Actor, id int64) error {
	w, err := s.store.GetWorkout(ctx, id)
	if err != nil {
		return storeError(err, "workout", id)
	}
	g, err := s.loadGroup(ctx, w.GroupID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, actor, g, false); err != nil {
		return err
	}
	var keys []string
	if evidence, err := s.store.ListEvidence(ctx, id, 0); err == nil {
		for _, e := range evidence {
			keys = append(keys, e.FileKey)
		}
	}
	if err := s.store.DeleteWorkout(ctx, id); err != nil {
		return storeError(err, "workout", id)
	}
	s.removeFiles(ctx, keys)
	return nil
}

// ListEvidence returns evidence for a workout, optionally narrowed to one
// member. The caller must belong to the workout's group.
func (s *Service) ListEvidence(ctx context.Context, actor member.Actor, workoutID, memberID int64) ([]group.Evidence, error) {
	if workoutID <= 0 {
		return nil, apperrors.Validation("workout_id is required").WithDetails("field", "workout_id")
	}
	w, err := s.store.GetWorkout(ctx, workoutID)
	if err != nil {
		return nil, storeError(err, "workout", workoutID)
	}
	g, err := s.loadGroup(ctx, w.GroupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, actor, g); err != nil {
		return nil, err
	}
	list, err := s.store.ListEvidence(ctx, workoutID, memberID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list evidence", err)
	}
	if list == nil {
		list = []group.Evidence{}
	}
	return list, nil
}

// UploadInput describes an evidence upload.
type UploadInput struct {
	MemberID  int64
	GroupID   int64
	WorkoutID int64
	Comment   string
	File      io.Reader
}

// UploadEvidence stores an image as proof that a member completed a
// workout. Members upload only for themselves, only to groups they belong
// to and only for workouts of that group.
func (s *Service) UploadEvidence(ctx context.Context, actor member.Actor, in UploadInput) (group.Evidence, error) {
	if s.media == nil {
		return group.Evidence{}, apperrors.Internal("Evidence storage is not configured", nil)
	}
	if in.MemberID != actor.ID {
		return group.Evidence{}, apperrors.Forbidden("You may only upload evidence for yourself")
	}
	if in.File == nil {
		return group.Evidence{}, apperrors.Validation("evidence_item is required").WithDetails("field", "evidence_item")
	}
	g, err := s.loadGroup(ctx, in.GroupID)
	if err != nil {
		return group.Evidence{}, err
	}
	if _, err := s.store.FindMembership(ctx, g.ID, in.MemberID); err != nil {
		return group.Evidence{}, mapMembershipLookup(err)
	}
	w, err := s.store.GetWorkout(ctx, in.WorkoutID)
	if err != nil {
		return group.Evidence{}, storeError(err, "workout", in.WorkoutID)
	}
	if w.GroupID != g.ID {
		return group.Evidence{}, apperrors.Validation("workout does not belong to this group").WithDetails("field", "workout")
	}

	stored, err := s.media.Save(ctx, fmt.Sprintf("evidence/%d", g.ID), in.File)
	if err != nil {
		var tooLarge *media.TooLargeError
		switch {
		case errors.As(err, &tooLarge):
			return group.Evidence{}, apperrors.TooLarge(tooLarge.Limit)
		case errors.Is(err, media.ErrUnsupportedType):
			return group.Evidence{}, apperrors.Validation(err.Error()).WithDetails("field", "evidence_item")
		default:
			return group.Evidence{}, apperrors.Internal("Failed to store evidence", err)
		}
	}

	e, err := s.store.CreateEvidence(ctx, group.Evidence{
		MemberID:  in.MemberID,
		WorkoutID: w.ID,
		Comment:   strings.TrimSpace(in.Comment),
		FileKey:   stored.Key,
		MediaType: stored.MediaType,
	})
	if err != nil {
		s.removeFiles(ctx, []string{stored.Key})
		return group.Evidence{}, storeError(err, "workout", w.ID)
	}
	metrics.RecordEvidenceUpload(stored.Size)
	s.log.WithContext(ctx).WithField("evidence_id", e.ID).WithField("bytes", stored.Size).Info("evidence uploaded")
	return e, nil
}

// OpenEvidence returns an evidence record with its file. The caller must
// belong to the workout's group.
func (s *Service) OpenEvidence(ctx context.Context, actor member.Actor, id int64) (group.Evidence, io.ReadCloser, error) {
	if s.media == nil {
		return group.Evidence{}, nil, apperrors.NotFound("evidence", id)
	}
	e, err := s.store.GetEvidence(ctx, id)
	if err != nil {
		return group.Evidence{}, nil, storeError(err, "evidence", id)
	}
	w, err := s.store.GetWorkout(ctx, e.WorkoutID)
	if err != nil {
		return group.Evidence{}, nil, storeError(err, "workout", e.WorkoutID)
	}
	g, err := s.loadGroup(ctx, w.GroupID)
	if err != nil {
		return group.Evidence{}, nil, err
	}
	if err := s.requireMember(ctx, actor, g); err != nil {
		return group.Evidence{}, nil, err
	}
	rc, err := s.media.Open(ctx, e.FileKey)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return group.Evidence{}, nil, apperrors.NotFound("evidence file", id)
		}
		return group.Evidence{}, nil, apperrors.Internal("Failed to open evidence", err)
	}
	return e, rc, nil
}

func (s *Service) evidenceKeys(ctx context.Context, groupID int64) []string {
	workouts, err := s.store.ListWorkouts(ctx, groupID)
	if err != nil {
		return nil
	}
	var keys []string
	for _, w := range workouts {
		evidence, err := s.store.ListEvidence(ctx, w.ID, 0)
		if err != nil {
			continue
		}
		for _, e := range evidence {
			keys = append(keys, e.FileKey)
		}
	}
	return keys
}

func (s *Service) removeFiles(ctx context.Context, keys []string) {
	if s.media == nil {
		return
	}
	for _, key := range keys {
		if err := s.media.Delete(ctx, key); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("key", key).Warn("remove evidence file failed")
		}
	}
}

func mapMembershipLookup(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Forbidden("Member does not belong to this group")
	}
	return apperrors.Internal("Failed to check membership", err)
}
