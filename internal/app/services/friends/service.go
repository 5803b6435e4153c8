package friends

import (
	"context"
	"errors"
	"time"

	"github.com/groupfit/server/internal/app/domain/calendar"
	"github.com/groupfit/server/internal/app/domain/friend"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/metrics"
	"github.com/groupfit/server/internal/app/storage"
	apperrors "github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/logging"
)

// View is a connection with both sides and the requester expanded.
type View struct {
	ID            int64         `json:"id"`
	User1         member.Member `json:"user1"`
	User2         member.Member `json:"user2"`
	ConnectedDate calendar.Date `json:"connected_date"`
	Status        friend.Status `json:"status"`
	RequestedBy   member.Member `json:"requested_by"`
	RequestDate   time.Time     `json:"request_date"`
}

// Service manages friend connections.
type Service struct {
	store   storage.FriendStore
	members storage.MemberStore
	log     *logging.Logger
	today   func() calendar.Date
}

// New constructs a friend service.
func New(store storage.FriendStore, members storage.MemberStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("friends")
	}
	return &Service{store: store, members: members, log: log, today: calendar.Today}
}

// List returns every connection where memberID is either side. A zero
// memberID means the caller.
func (s *Service) List(ctx context.Context, actor member.Actor, memberID int64) ([]View, error) {
	if memberID == 0 {
		memberID = actor.ID
	}
	if _, err := s.members.GetMember(ctx, memberID); err != nil {
		return nil, lookupError(err, "member", memberID)
	}
	conns, err := s.store.ListConnections(ctx, memberID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list friends", err)
	}
	return s.expand(ctx, conns)
}

// Request creates a pending connection from the caller to otherID.
func (s *Service) Request(ctx context.Context, actor member.Actor, otherID int64) (View, error) {
	if otherID <= 0 {
		return View{}, apperrors.Validation("user2_id is required").WithDetails("field", "user2_id")
	}
	if otherID == actor.ID {
		return View{}, apperrors.Validation("You cannot send a friend request to yourself")
	}
	if _, err := s.members.GetMember(ctx, otherID); err != nil {
		return View{}, lookupError(err, "member", otherID)
	}
	c, err := s.store.CreateConnection(ctx, friend.Connection{
		User1:       actor.ID,
		User2:       otherID,
		Status:      friend.StatusPending,
		RequestedBy: actor.ID,
		RequestDate: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, friend.ErrConnectionExists) {
			return View{}, apperrors.Conflict(err.Error())
		}
		return View{}, lookupError(err, "member", otherID)
	}
	metrics.RecordFriendEvent("requested")
	return s.expandOne(ctx, c)
}

// Respond accepts or rejects a connection. Accepting records today's date;
// rejecting deletes the connection and returns nil.
func (s *Service) Respond(ctx context.Context, actor member.Actor, id int64, status string) (*View, error) {
	decision, err := friend.ParseResponse(status)
	if err != nil {
		return nil, apperrors.Validation(err.Error()).WithDetails("field", "status")
	}
	c, err := s.participantConnection(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if c.Status == friend.StatusAccepted {
		return nil, apperrors.Conflict("Friend connection is already accepted")
	}

	if decision == friend.StatusRejected {
		if err := s.store.DeleteConnection(ctx, id); err != nil {
			return nil, lookupError(err, "friend connection", id)
		}
		metrics.RecordFriendEvent("rejected")
		return nil, nil
	}

	c.Status = friend.StatusAccepted
	c.ConnectedDate = s.today()
	updated, err := s.store.UpdateConnection(ctx, c)
	if err != nil {
		return nil, lookupError(err, "friend connection", id)
	}
	metrics.RecordFriendEvent("accepted")
	v, err := s.expandOne(ctx, updated)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Remove deletes a connection. Participants only.
func (s *Service) Remove(ctx context.Context, actor member.Actor, id int64) error {
	if _, err := s.participantConnection(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteConnection(ctx, id); err != nil {
		return lookupError(err, "friend connection", id)
	}
	metrics.RecordFriendEvent("removed")
	return nil
}

func (s *Service) participantConnection(ctx context.Context, actor member.Actor, id int64) (friend.Connection, error) {
	c, err := s.store.GetConnection(ctx, id)
	if err != nil {
		return friend.Connection{}, lookupError(err, "friend connection", id)
	}
	if !c.Involves(actor.ID) {
		return friend.Connection{}, apperrors.Forbidden("You are not part of this friend connection")
	}
	return c, nil
}

func (s *Service) expandOne(ctx context.Context, c friend.Connection) (View, error) {
	views, err := s.expand(ctx, []friend.Connection{c})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

func (s *Service) expand(ctx context.Context, conns []friend.Connection) ([]View, error) {
	ids := make([]int64, 0, len(conns)*2)
	for _, c := range conns {
		ids = append(ids, c.User1, c.User2)
	}
	people, err := s.members.GetMembers(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("Failed to load members", err)
	}
	views := make([]View, 0, len(conns))
	for _, c := range conns {
		views = append(views, View{
			ID:            c.ID,
			User1:         people[c.User1],
			User2:         people[c.User2],
			ConnectedDate: c.ConnectedDate,
			Status:        c.Status,
			RequestedBy:   people[c.RequestedBy],
			RequestDate:   c.RequestDate,
		})
	}
	return views, nil
}

func lookupError(err error, resource string, id int64) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Internal("Failed to load "+resource, err)
}
