package postgres

import (
	"context"
	"time"

	"github.com/groupfit/server/internal/app/domain/calendar"
	"github.com/groupfit/server/internal/app/domain/friend"
)

const connectionColumns = `id, user1_id, user2_id, status, requested_by, request_date, connected_date`

type connectionRow struct {
	ID            int64         `db:"id"`
	User1         int64         `db:"user1_id"`
	User2         int64         `db:"user2_id"`
	Status        string        `db:"status"`
	RequestedBy   int64         `db:"requested_by"`
	RequestDate   time.Time     `db:"request_date"`
	ConnectedDate calendar.Date `db:"connected_date"`
}

func (r connectionRow) toDomain() friend.Connection {
	return friend.Connection{
		ID:            r.ID,
		User1:         r.User1,
		User2:         r.User2,
		Status:        friend.Status(r.Status),
		RequestedBy:   r.RequestedBy,
		RequestDate:   r.RequestDate.UTC(),
		ConnectedDate: r.ConnectedDate,
	}
}

// CreateConnection relies on the unique index over the unordered member pair
// to reject duplicates in either direction.
func (s *Store) CreateConnection(ctx context.Context, c friend.Connection) (friend.Connection, error) {
	if c.RequestDate.IsZero() {
		c.RequestDate = time.Now().UTC()
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO friend_connections (user1_id, user2_id, status, requested_by, request_date, connected_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.User1, c.User2, string(c.Status), c.RequestedBy, c.RequestDate, c.ConnectedDate).Scan(&c.ID)
	if err != nil {
		return friend.Connection{}, translate(err, friend.ErrConnectionExists)
	}
	return c, nil
}

func (s *Store) GetConnection(ctx context.Context, id int64) (friend.Connection, error) {
	var row connectionRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+connectionColumns+` FROM friend_connections WHERE id = $1`, id); err != nil {
		return friend.Connection{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) ListConnections(ctx context.Context, memberID int64) ([]friend.Connection, error) {
	var rows []connectionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+connectionColumns+` FROM friend_connections
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY id`, memberID); err != nil {
		return nil, err
	}
	out := make([]friend.Connection, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateConnection(ctx context.Context, c friend.Connection) (friend.Connection, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE friend_connections SET status = $2, connected_date = $3 WHERE id = $1
	`, c.ID, string(c.Status), c.ConnectedDate)
	if err != nil {
		return friend.Connection{}, err
	}
	if err := requireAffected(res); err != nil {
		return friend.Connection{}, err
	}
	return s.GetConnection(ctx, c.ID)
}

func (s *Store) DeleteConnection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM friend_connections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
