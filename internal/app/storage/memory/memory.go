package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/groupfit/server/internal/app/domain/friend"
	"github.com/groupfit/server/internal/app/domain/group"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	members     map[int64]member.Member
	emails      map[string]int64
	groups      map[int64]group.Group
	memberships map[int64]group.Membership
	workouts    map[int64]group.Workout
	evidence    map[int64]group.Evidence
	connections map[int64]friend.Connection
}

var _ storage.MemberStore = (*Store)(nil)
var _ storage.GroupStore = (*Store)(nil)
var _ storage.FriendStore = (*Store)(nil)
var _ storage.Pinger = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		members:     make(map[int64]member.Member),
		emails:      make(map[string]int64),
		groups:      make(map[int64]group.Group),
		memberships: make(map[int64]group.Membership),
		workouts:    make(map[int64]group.Workout),
		evidence:    make(map[int64]group.Evidence),
		connections: make(map[int64]friend.Connection),
	}
}

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// MemberStore implementation --------------------------------------------------

func (s *Store) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[m.Email]; exists {
		return member.Member{}, storage.ErrDuplicate
	}
	m.ID = s.nextIDLocked()
	s.members[m.ID] = m
	s.emails[m.Email] = m.ID
	return cloneMember(m), nil
}

func (s *Store) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.members[m.ID]
	if !ok {
		return member.Member{}, storage.ErrNotFound
	}
	if m.Email != original.Email {
		if _, taken := s.emails[m.Email]; taken {
			return member.Member{}, storage.ErrDuplicate
		}
		delete(s.emails, original.Email)
		s.emails[m.Email] = m.ID
	}
	m.JoinDate = original.JoinDate
	s.members[m.ID] = m
	return cloneMember(m), nil
}

func (s *Store) RecordLogin(_ context.Context, id int64, at time.Time) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return member.Member{}, storage.ErrNotFound
	}
	at = at.UTC()
	m.LastLogin = &at
	s.members[id] = m
	return cloneMember(m), nil
}

func (s *Store) GetMember(_ context.Context, id int64) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return member.Member{}, storage.ErrNotFound
	}
	return cloneMember(m), nil
}

func (s *Store) GetMemberByEmail(_ context.Context, email string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return member.Member{}, storage.ErrNotFound
	}
	return cloneMember(s.members[id]), nil
}

func (s *Store) GetMembers(_ context.Context, ids []int64) (map[int64]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]member.Member, len(ids))
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			out[id] = cloneMember(m)
		}
	}
	return out, nil
}

func (s *Store) SearchMembers(_ context.Context, term string, limit int) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(term)
	var out []member.Member
	for _, m := range s.members {
		if strings.Contains(strings.ToLower(m.FirstName), needle) ||
			strings.Contains(strings.ToLower(m.LastName), needle) ||
			strings.Contains(strings.ToLower(m.Email), needle) {
			out = append(out, cloneMember(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GroupStore implementation ---------------------------------------------------

func (s *Store) CreateGroup(_ context.Context, g group.Group, creatorRole group.Role) (group.Group, group.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[g.CreatedBy]; !ok {
		return group.Group{}, group.Membership{}, storage.ErrNotFound
	}
	g.ID = s.nextIDLocked()
	g.TargetWorkoutNumberPerWeek = cloneInt(g.TargetWorkoutNumberPerWeek)
	s.groups[g.ID] = g

	ms := group.Membership{ID: s.nextIDLocked(), Role: creatorRole, GroupID: g.ID, MemberID: g.CreatedBy}
	s.memberships[ms.ID] = ms
	return cloneGroup(g), ms, nil
}

func (s *Store) UpdateGroup(_ context.Context, g group.Group) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.groups[g.ID]
	if !ok {
		return group.Group{}, storage.ErrNotFound
	}
	g.CreatedBy = original.CreatedBy
	g.TargetWorkoutNumberPerWeek = cloneInt(g.TargetWorkoutNumberPerWeek)
	s.groups[g.ID] = g
	return cloneGroup(g), nil
}

func (s *Store) GetGroup(_ context.Context, id int64) (group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return group.Group{}, storage.ErrNotFound
	}
	return cloneGroup(g), nil
}

func (s *Store) ListGroupsCreatedBy(_ context.Context, memberID int64) ([]group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []group.Group
	for _, g := range s.groups {
		if g.CreatedBy == memberID {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteGroup(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.groups, id)
	for msID, ms := range s.memberships {
		if ms.GroupID == id {
			delete(s.memberships, msID)
		}
	}
	for wID, w := range s.workouts {
		if w.GroupID == id {
			s.deleteWorkoutLocked(wID)
		}
	}
	return nil
}

func (s *Store) CreateMembership(_ context.Context, ms group.Membership) (group.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[ms.GroupID]; !ok {
		return group.Membership{}, storage.ErrNotFound
	}
	if _, ok := s.members[ms.MemberID]; !ok {
		return group.Membership{}, storage.ErrNotFound
	}
	for _, existing := range s.memberships {
		if existing.GroupID == ms.GroupID && existing.MemberID == ms.MemberID {
			return group.Membership{}, group.ErrAlreadyMember
		}
	}
	ms.ID = s.nextIDLocked()
	s.memberships[ms.ID] = ms
	return ms, nil
}

func (s *Store) GetMembership(_ context.Context, id int64) (group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.memberships[id]
	if !ok {
		return group.Membership{}, storage.ErrNotFound
	}
	return ms, nil
}

func (s *Store) FindMembership(_ context.Context, groupID, memberID int64) (group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ms := range s.memberships {
		if ms.GroupID == groupID && ms.MemberID == memberID {
			return ms, nil
		}
	}
	return group.Membership{}, storage.ErrNotFound
}

func (s *Store) ListMembershipsByMember(_ context.Context, memberID int64) ([]group.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []group.Membership
	for _, ms := range s.memberships {
		if ms.MemberID == memberID {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListMemberListings(_ context.Context, groupID int64) ([]group.MemberListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	var out []group.MemberListing
	for _, ms := range s.memberships {
		if ms.GroupID != groupID {
			continue
		}
		m := s.members[ms.MemberID]
		out = append(out, group.MemberListing{
			ID:        ms.ID,
			Role:      ms.Role,
			GroupID:   g.ID,
			GroupName: g.Name,
			MemberID:  m.ID,
			Email:     m.Email,
			FirstName: m.FirstName,
			LastName:  m.LastName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateMembershipRole(_ context.Context, id int64, role group.Role) (group.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.memberships[id]
	if !ok {
		return group.Membership{}, storage.ErrNotFound
	}
	if ms.IsAdmin() && role != group.RoleAdmin && s.adminCountLocked(ms.GroupID) <= 1 {
		return group.Membership{}, group.ErrLastAdmin
	}
	ms.Role = role
	s.memberships[id] = ms
	return ms, nil
}

func (s *Store) DeleteMembership(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.memberships[id]
	if !ok {
		return storage.ErrNotFound
	}
	if ms.IsAdmin() && s.adminCountLocked(ms.GroupID) <= 1 {
		return group.ErrLastAdmin
	}
	delete(s.memberships, id)
	return nil
}

func (s *Store) adminCountLocked(groupID int64) int {
	n := 0
	for _, ms := range s.memberships {
		if ms.GroupID == groupID && ms.IsAdmin() {
			n++
		}
	}
	return n
}

func (s *Store) CreateWorkout(_ context.Context, w group.Workout) (group.Workout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[w.GroupID]; !ok {
		return group.Workout{}, storage.ErrNotFound
	}
	w.ID = s.nextIDLocked()
	s.workouts[w.ID] = w
	return w, nil
}

func (s *Store) GetWorkout(_ context.Context, id int64) (group.Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workouts[id]
	if !ok {
		return group.Workout{}, storage.ErrNotFound
	}
	return w, nil
}

func (s *Store) ListWorkouts(_ context.Context, groupID int64) ([]group.Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []group.Workout
	for _, w := range s.workouts {
		if w.GroupID == groupID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteWorkout(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workouts[id]; !ok {
		return storage.ErrNotFound
	}
	s.deleteWorkoutLocked(id)
	return nil
}

func (s *Store) deleteWorkoutLocked(id int64) {
	delete(s.workouts, id)
	for eID, e := range s.evidence {
		if e.WorkoutID == id {
			delete(s.evidence, eID)
		}
	}
}

func (s *Store) CreateEvidence(_ context.Context, e group.Evidence) (group.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workouts[e.WorkoutID]; !ok {
		return group.Evidence{}, storage.ErrNotFound
	}
	if _, ok := s.members[e.MemberID]; !ok {
		return group.Evidence{}, storage.ErrNotFound
	}
	e.ID = s.nextIDLocked()
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now().UTC()
	}
	s.evidence[e.ID] = e
	return e, nil
}

func (s *Store) GetEvidence(_ context.Context, id int64) (group.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.evidence[id]
	if !ok {
		return group.Evidence{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEvidence(_ context.Context, workoutID, memberID int64) ([]group.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []group.Evidence
	for _, e := range s.evidence {
		if workoutID != 0 && e.WorkoutID != workoutID {
			continue
		}
		if memberID != 0 && e.MemberID != memberID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FriendStore implementation --------------------------------------------------

func (s *Store) CreateConnection(_ context.Context, c friend.Connection) (friend.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []int64{c.User1, c.User2} {
		if _, ok := s.members[id]; !ok {
			return friend.Connection{}, storage.ErrNotFound
		}
	}
	lo, hi := friend.Pair(c.User1, c.User2)
	for _, existing := range s.connections {
		a, b := friend.Pair(existing.User1, existing.User2)
		if a == lo && b == hi {
			return friend.Connection{}, friend.ErrConnectionExists
		}
	}
	c.ID = s.nextIDLocked()
	if c.RequestDate.IsZero() {
		c.RequestDate = time.Now().UTC()
	}
	s.connections[c.ID] = c
	return c, nil
}

func (s *Store) GetConnection(_ context.Context, id int64) (friend.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.connections[id]
	if !ok {
		return friend.Connection{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListConnections(_ context.Context, memberID int64) ([]friend.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []friend.Connection
	for _, c := range s.connections {
		if c.Involves(memberID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateConnection(_ context.Context, c friend.Connection) (friend.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.connections[c.ID]
	if !ok {
		return friend.Connection{}, storage.ErrNotFound
	}
	original.Status = c.Status
	original.ConnectedDate = c.ConnectedDate
	s.connections[c.ID] = original
	return original, nil
}

func (s *Store) DeleteConnection(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.connections[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.connections, id)
	return nil
}

// helpers ---------------------------------------------------------------------

func cloneMember(m member.Member) member.Member {
	if m.LastLogin != nil {
		t := *m.LastLogin
		m.LastLogin = &t
	}
	return m
}

func cloneGroup(g group.Group) group.Group {
	g.TargetWorkoutNumberPerWeek = cloneInt(g.TargetWorkoutNumberPerWeek)
	return g
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
