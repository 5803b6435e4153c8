package groups

import (
	"context"
	"errors"
	"strings"

	"github.com/groupfit/server/internal/app/domain/group"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/media"
	"github.com/groupfit/server/internal/app/metrics"
	"github.com/groupfit/server/internal/app/storage"
	apperrors "github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/logging"
)

const lastAdminMessage = "a group must retain at least one Admin member"

// Service manages groups, memberships, workouts and evidence.
type Service struct {
	store   storage.GroupStore
	members storage.MemberStore
	media   media.Store
	log     *logging.Logger
}

// New constructs a group service. files may be nil when uploads are
// disabled.
func New(store storage.GroupStore, members storage.MemberStore, files media.Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("groups")
	}
	return &Service{store: store, members: members, media: files, log: log}
}

// CreateGroupInput carries the fields accepted when creating a group.
type CreateGroupInput struct {
	Name                       string
	TargetWorkoutNumberPerWeek *int
}

// CreateGroup creates a group owned by actor, who becomes its first Admin.
func (s *Service) CreateGroup(ctx context.Context, actor member.Actor, in CreateGroupInput) (group.Group, group.Membership, error) {
	g := group.Group{
		Name:                       strings.TrimSpace(in.Name),
		TargetWorkoutNumberPerWeek: in.TargetWorkoutNumberPerWeek,
		CreatedBy:                  actor.ID,
	}
	if err := g.Validate(); err != nil {
		return group.Group{}, group.Membership{}, apperrors.Validation(err.Error())
	}
	created, ms, err := s.store.CreateGroup(ctx, g, group.RoleAdmin)
	if err != nil {
		return group.Group{}, group.Membership{}, storeError(err, "group", 0)
	}
	s.log.WithContext(ctx).WithField("group_id", created.ID).Info("group created")
	return created, ms, nil
}

// ListMemberships returns the caller's memberships.
func (s *Service) ListMemberships(ctx context.Context, actor member.Actor) ([]group.Membership, error) {
	list, err := s.store.ListMembershipsByMember(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list memberships", err)
	}
	if list == nil {
		list = []group.Membership{}
	}
	return list, nil
}

// ListCreated returns the groups the caller created.
func (s *Service) ListCreated(ctx context.Context, actor member.Actor) ([]group.Group, error) {
	list, err := s.store.ListGroupsCreatedBy(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list groups", err)
	}
	if list == nil {
		list = []group.Group{}
	}
	return list, nil
}

// GetGroup returns a group visible to the caller.
func (s *Service) GetGroup(ctx context.Context, actor member.Actor, id int64) (group.Group, error) {
	g, err := s.loadGroup(ctx, id)
	if err != nil {
		return group.Group{}, err
	}
	if err := s.requireMember(ctx, actor, g); err != nil {
		return group.Group{}, err
	}
	return g, nil
}

// UpdateGroupInput is a partial update; nil fields are left unchanged.
type UpdateGroupInput struct {
	Name                       *string
	TargetWorkoutNumberPerWeek *int
}

// UpdateGroup changes a group's name or weekly target. Admins only.
func (s *Service) UpdateGroup(ctx context.Context, actor member.Actor, id int64, in UpdateGroupInput) (group.Group, error) {
	g, err := s.loadGroup(ctx, id)
	if err != nil {
		return group.Group{}, err
	}
	if err := s.requireAdmin(ctx, actor, g, false); err != nil {
		return group.Group{}, err
	}
	if in.Name != nil {
		g.Name = strings.TrimSpace(*in.Name)
	}
	if in.TargetWorkoutNumberPerWeek != nil {
		g.TargetWorkoutNumberPerWeek = in.TargetWorkoutNumberPerWeek
	}
	if err := g.Validate(); err != nil {
		return group.Group{}, apperrors.Validation(err.Error())
	}
	updated, err := s.store.UpdateGroup(ctx, g)
	if err != nil {
		return group.Group{}, storeError(err, "group", id)
	}
	return updated, nil
}

// DeleteGroup removes a group with its memberships, workouts and evidence.
// Admins only.
func (s *Service) DeleteGroup(ctx context.Context, actor member.Actor, id int64) error {
	g, err := s.loadGroup(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, actor, g, false); err != nil {
		return err
	}
	keys := s.evidenceKeys(ctx, id)
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return storeError(err, "group", id)
	}
	s.removeFiles(ctx, keys)
	s.log.WithContext(ctx).WithField("group_id", id).Info("group deleted")
	return nil
}

// ListMembers returns the members of a group. The caller must belong to it.
func (s *Service) ListMembers(ctx context.Context, actor member.Actor, groupID int64) ([]group.MemberListing, error) {
	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, actor, g); err != nil {
		return nil, err
	}
	list, err := s.store.ListMemberListings(ctx, groupID)
	if err != nil {
		return nil, storeError(err, "group", groupID)
	}
	if list == nil {
		list = []group.MemberListing{}
	}
	return list, nil
}

// AddMemberInput names the member to add and their role. An empty role
// means Member.
type AddMemberInput struct {
	GroupID  int64
	MemberID int64
	Role     string
}

// AddMember adds a member to a group. The caller must be an Admin of the
// group or its creator.
func (s *Service) AddMember(ctx context.Context, actor member.Actor, in AddMemberInput) (group.MemberListing, error) {
	role := group.RoleMember
	if strings.TrimSpace(in.Role) != "" {
		parsed, err := group.ParseRole(in.Role)
		if err != nil {
			return group.MemberListing{}, apperrors.Validation(err.Error()).WithDetails("field", "member_role")
		}
		role = parsed
	}
	g, err := s.loadGroup(ctx, in.GroupID)
	if err != nil {
		return group.MemberListing{}, err
	}
	if err := s.requireAdmin(ctx, actor, g, true); err != nil {
		return group.MemberListing{}, err
	}
	m, err := s.members.GetMember(ctx, in.MemberID)
	if err != nil {
		return group.MemberListing{}, storeError(err, "member", in.MemberID)
	}

	ms, err := s.store.CreateMembership(ctx, group.Membership{GroupID: g.ID, MemberID: m.ID, Role: role})
	if err != nil {
		metrics.RecordMembershipChange("add", "rejected")
		return group.MemberListing{}, storeError(err, "group", g.ID)
	}
	metrics.RecordMembershipChange("add", "ok")
	return group.MemberListing{
		ID:        ms.ID,
		Role:      ms.Role,
		GroupID:   g.ID,
		GroupName: g.Name,
		MemberID:  m.ID,
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
	}, nil
}

// ChangeRole sets the role of a membership. Admins only; demoting the last
// Admin is forbidden.
func (s *Service) ChangeRole(ctx context.Context, actor member.Actor, membershipID int64, roleName string) (group.Membership, error) {
	role, err := group.ParseRole(roleName)
	if err != nil {
		return group.Membership{}, apperrors.Validation(err.Error()).WithDetails("field", "member_role")
	}
	ms, err := s.loadMembership(ctx, membershipID)
	if err != nil {
		return group.Membership{}, err
	}
	g, err := s.loadGroup(ctx, ms.GroupID)
	if err != nil {
		return group.Membership{}, err
	}
	if err := s.requireAdmin(ctx, actor, g, false); err != nil {
		return group.Membership{}, err
	}
	updated, err := s.store.UpdateMembershipRole(ctx, membershipID, role)
	if err != nil {
		metrics.RecordMembershipChange("role", resultLabel(err))
		return group.Membership{}, storeError(err, "membership", membershipID)
	}
	metrics.RecordMembershipChange("role", "ok")
	return updated, nil
}

// RemoveMember deletes a membership. Allowed for group Admins and for the
// member leaving; removing the last Admin is forbidden.
func (s *Service) RemoveMember(ctx context.Context, actor member.Actor, membershipID int64) error {
	ms, err := s.loadMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if ms.MemberID != actor.ID {
		g, err := s.loadGroup(ctx, ms.GroupID)
		if err != nil {
			return err
		}
		if err := s.requireAdmin(ctx, actor, g, false); err != nil {
			return err
		}
	}
	if err := s.store.DeleteMembership(ctx, membershipID); err != nil {
		metrics.RecordMembershipChange("remove", resultLabel(err))
		if errors.Is(err, group.ErrLastAdmin) {
			s.log.WithContext(ctx).WithField("membership_id", membershipID).Warn("refused to remove last admin")
		}
		return storeError(err, "membership", membershipID)
	}
	metrics.RecordMembershipChange("remove", "ok")
	return nil
}

func (s *Service) loadGroup(ctx context.Context, id int64) (group.Group, error) {
	g, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return group.Group{}, storeError(err, "group", id)
	}
	return g, nil
}

func (s *Service) loadMembership(ctx context.Context, id int64) (group.Membership, error) {
	ms, err := s.store.GetMembership(ctx, id)
	if err != nil {
		return group.Membership{}, storeError(err, "membership", id)
	}
	return ms, nil
}

// requireMember passes superusers, the creator and any member of g.
func (s *Service) requireMember(ctx context.Context, actor member.Actor, g group.Group) error {
	if actor.Superuser || g.CreatedBy == actor.ID {
		return nil
	}
	_, err := s.store.FindMembership(ctx, g.ID, actor.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Forbidden("You are not a member of this group")
	default:
		return apperrors.Internal("Failed to check membership", err)
	}
}

// requireAdmin passes superusers and Admins of g. allowCreator also passes
// the group's creator.
func (s *Service) requireAdmin(ctx context.Context, actor member.Actor, g group.Group, allowCreator bool) error {
	if actor.Superuser || (allowCreator && g.CreatedBy == actor.ID) {
		return nil
	}
	ms, err := s.store.FindMembership(ctx, g.ID, actor.ID)
	switch {
	case err == nil && ms.IsAdmin():
		return nil
	case err == nil, errors.Is(err, storage.ErrNotFound):
		return apperrors.Forbidden("Only group Admins may do this")
	default:
		return apperrors.Internal("Failed to check membership", err)
	}
}

// storeError maps storage and domain sentinels onto service errors.
func storeError(err error, resource string, id int64) error {
	switch {
	case apperrors.GetServiceError(err) != nil:
		return err
	case errors.Is(err, group.ErrLastAdmin):
		return apperrors.Forbidden(lastAdminMessage)
	case errors.Is(err, group.ErrAlreadyMember):
		return apperrors.Conflict(group.ErrAlreadyMember.Error())
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NotFound(resource, id)
	case errors.Is(err, storage.ErrDuplicate):
		return apperrors.Conflict(resource + " already exists")
	default:
		return apperrors.Internal("Failed to access "+resource, err)
	}
}

func resultLabel(err error) string {
	if errors.Is(err, group.ErrLastAdmin) {
		return "last_admin"
	}
	return "rejected"
}
