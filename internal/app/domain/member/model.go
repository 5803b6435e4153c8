package member

import (
	"errors"
	"strings"
	"time"

	"github.com/groupfit/server/internal/app/domain/calendar"
)

// MinPasswordLength is enforced whenever a password is set through the API.
const MinPasswordLength = 8

// ErrEmailRequired is returned when a member has no email address.
var ErrEmailRequired = errors.New("a valid email address must be entered")

// Member is a registered user of the application.
type Member struct {
	ID           int64         `json:"id"`
	Email        string        `json:"email"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	JoinDate     calendar.Date `json:"join_date"`
	DateOfBirth  calendar.Date `json:"date_of_birth"`
	IsActive     bool          `json:"-"`
	IsStaff      bool          `json:"-"`
	IsSuperuser  bool          `json:"-"`
	PasswordHash string        `json:"-"`
	LastLogin    *time.Time    `json:"-"`
}

// FullName joins first and last name.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// NormalizeEmail trims the address and lowercases its domain part. The local
// part is kept as given.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", ErrEmailRequired
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:]), nil
}

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID        int64
	Superuser bool
}

// ActorOf returns the actor for m.
func ActorOf(m Member) Actor {
	return Actor{ID: m.ID, Superuser: m.IsSuperuser}
}
