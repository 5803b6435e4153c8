package group

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLastAdmin is returned when a change would leave a group without an
// Admin member.
var ErrLastAdmin = errors.New("a group must retain at least one Admin member")

// ErrAlreadyMember is returned when a member is added to a group twice.
var ErrAlreadyMember = errors.New("member already belongs to this group")

// Role is a member's role inside one group.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleMember Role = "Member"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "member":
		return RoleMember, nil
	default:
		return "", fmt.Errorf("member_role must be %q or %q", RoleAdmin, RoleMember)
	}
}

// MaxNameLength bounds group_name.
const MaxNameLength = 100

// Group is a fitness group.
type Group struct {
	ID                         int64  `json:"id"`
	Name                       string `json:"group_name"`
	TargetWorkoutNumberPerWeek *int   `json:"target_workout_number_per_week"`
	CreatedBy                  int64  `json:"created_by"`
}

// Validate checks name and target.
func (g Group) Validate() error {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		return errors.New("group_name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return fmt.Errorf("group_name must be at most %d characters", MaxNameLength)
	}
	if g.TargetWorkoutNumberPerWeek != nil && *g.TargetWorkoutNumberPerWeek < 0 {
		return errors.New("target_workout_number_per_week must not be negative")
	}
	return nil
}

// Membership associates a member with a group.
type Membership struct {
	ID       int64 `json:"id"`
	Role     Role  `json:"member_role"`
	GroupID  int64 `json:"group"`
	MemberID int64 `json:"member"`
}

// IsAdmin reports whether the membership carries the Admin role.
func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// MemberListing is a membership joined with the group name and the member's
// identity, as shown in member lists.
type MemberListing struct {
	ID        int64  `json:"id"`
	Role      Role   `json:"member_role"`
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group"`
	MemberID  int64  `json:"member_id"`
	Email     string `json:"member"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Workout is an exercise assigned to a group.
type Workout struct {
	ID          int64  `json:"id"`
	GroupID     int64  `json:"group"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

// Evidence is a member's proof of completing a workout.
type Evidence struct {
	ID         int64     `json:"id"`
	MemberID   int64     `json:"member"`
	WorkoutID  int64     `json:"workout"`
	Comment    string    `json:"comment"`
	FileKey    string    `json:"-"`
	FileURL    string    `json:"evidence_item,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	UploadedAt time.Time `json:"upload_date"`
}
