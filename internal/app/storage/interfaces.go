package storage

import (
	"context"
	"errors"
	"time"

	"github.com/groupfit/server/internal/app/domain/friend"
	"github.com/groupfit/server/internal/app/domain/group"
	"github.com/groupfit/server/internal/app/domain/member"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

// MemberStore persists members.
//
// RecordLogin writes only the last-login column so that it cannot race
// with a profile or password update.
type MemberStore interface {
	CreateMember(ctx context.Context, m member.Member) (member.Member, error)
	UpdateMember(ctx context.Context, m member.Member) (member.Member, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) (member.Member, error)
	GetMember(ctx context.Context, id int64) (member.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (member.Member, error)
	GetMembers(ctx context.Context, ids []int64) (map[int64]member.Member, error)
	SearchMembers(ctx context.Context, term string, limit int) ([]member.Member, error)
}

// GroupStore persists groups, memberships, workouts and evidence.
//
// UpdateMembershipRole and DeleteMembership must check and apply the
// change atomically: if the change would leave the group without an Admin
// they return group.ErrLastAdmin and leave the membership set untouched.
type GroupStore interface {
	CreateGroup(ctx context.Context, g group.Group, creatorRole group.Role) (group.Group, group.Membership, error)
	UpdateGroup(ctx context.Context, g group.Group) (group.Group, error)
	GetGroup(ctx context.Context, id int64) (group.Group, error)
	ListGroupsCreatedBy(ctx context.Context, memberID int64) ([]group.Group, error)
	DeleteGroup(ctx context.Context, id int64) error

	CreateMembership(ctx context.Context, ms group.Membership) (group.Membership, error)
	GetMembership(ctx context.Context, id int64) (group.Membership, error)
	FindMembership(ctx context.Context, groupID, memberID int64) (group.Membership, error)
	ListMembershipsByMember(ctx context.Context, memberID int64) ([]group.Membership, error)
	ListMemberListings(ctx context.Context, groupID int64) ([]group.MemberListing, error)
	UpdateMembershipRole(ctx context.Context, id int64, role group.Role) (group.Membership, error)
	DeleteMembership(ctx context.Context, id int64) error

	CreateWorkout(ctx context.Context, w group.Workout) (group.Workout, error)
	GetWorkout(ctx context.Context, id int64) (group.Workout, error)
	ListWorkouts(ctx context.Context, groupID int64) ([]group.Workout, error)
	DeleteWorkout(ctx context.Context, id int64) error

	CreateEvidence(ctx context.Context, e group.Evidence) (group.Evidence, error)
	GetEvidence(ctx context.Context, id int64) (group.Evidence, error)
	ListEvidence(ctx context.Context, workoutID, memberID int64) ([]group.Evidence, error)
}

// FriendStore persists friend connections.
//
// CreateConnection returns friend.ErrConnectionExists when the pair is
// already connected in either direction.
type FriendStore interface {
	CreateConnection(ctx context.Context, c friend.Connection) (friend.Connection, error)
	GetConnection(ctx context.Context, id int64) (friend.Connection, error)
	ListConnections(ctx context.Context, memberID int64) ([]friend.Connection, error)
	UpdateConnection(ctx context.Context, c friend.Connection) (friend.Connection, error)
	DeleteConnection(ctx context.Context, id int64) error
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}
