package friend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groupfit/server/internal/app/domain/calendar"
)

// ErrConnectionExists is returned when two members already share a
// connection in either direction.
var ErrConnectionExists = errors.New("a friend connection between these members already exists")

// Status is the state of a connection.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusAccepted Status = "Accepted"
	// StatusRejected is only ever a response value; rejected rows are deleted.
	StatusRejected Status = "Rejected"
)

// ParseResponse accepts Accepted or Rejected, case-insensitively.
func ParseResponse(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted":
		return StatusAccepted, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("status must be %q or %q", StatusAccepted, StatusRejected)
	}
}

// Connection links two members. User1 is always the requester.
type Connection struct {
	ID            int64
	User1         int64
	User2         int64
	Status        Status
	RequestedBy   int64
	RequestDate   time.Time
	ConnectedDate calendar.Date
}

// Involves reports whether memberID is either side of the connection.
func (c Connection) Involves(memberID int64) bool {
	return c.User1 == memberID || c.User2 == memberID
}

// Other returns the opposite side from memberID.
func (c Connection) Other(memberID int64) int64 {
	if c.User1 == memberID {
		return c.User2
	}
	return c.User1
}

// Pair returns the member ids in ascending order. Uniqueness is enforced on
// this pair.
func Pair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}
