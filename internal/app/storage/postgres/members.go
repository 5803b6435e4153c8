package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/groupfit/server/internal/app/domain/calendar"
	"github.com/groupfit/server/internal/app/domain/member"
)

const memberColumns = `id, email, first_name, last_name, join_date, date_of_birth,
	is_active, is_staff, is_superuser, password_hash, last_login`

type memberRow struct {
	ID           int64         `db:"id"`
	Email        string        `db:"email"`
	FirstName    string        `db:"first_name"`
	LastName     string        `db:"last_name"`
	JoinDate     calendar.Date `db:"join_date"`
	DateOfBirth  calendar.Date `db:"date_of_birth"`
	IsActive     bool          `db:"is_active"`
	IsStaff      bool          `db:"is_staff"`
	IsSuperuser  bool          `db:"is_superuser"`
	PasswordHash string        `db:"password_hash"`
	LastLogin    *time.Time    `db:"last_login"`
}

func (r memberRow) toDomain() member.Member {
	return member.Member{
		ID:           r.ID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		JoinDate:     r.JoinDate,
		DateOfBirth:  r.DateOfBirth,
		IsActive:     r.IsActive,
		IsStaff:      r.IsStaff,
		IsSuperuser:  r.IsSuperuser,
		PasswordHash: r.PasswordHash,
		LastLogin:    r.LastLogin,
	}
}

func (s *Store) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	if m.JoinDate.IsZero() {
		m.JoinDate = calendar.Today()
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO members (email, first_name, last_name, join_date, date_of_birth,
			is_active, is_staff, is_superuser, password_hash, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, m.Email, m.FirstName, m.LastName, m.JoinDate, m.DateOfBirth,
		m.IsActive, m.IsStaff, m.IsSuperuser, m.PasswordHash, m.LastLogin).Scan(&m.ID)
	if err != nil {
		return member.Member{}, translate(err, nil)
	}
	return m, nil
}

func (s *Store) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET email = $2, first_name = $3, last_name = $4, date_of_birth = $5,
			is_active = $6, is_staff = $7, is_superuser = $8, password_hash = $9, last_login = $10
		WHERE id = $1
	`, m.ID, m.Email, m.FirstName, m.LastName, m.DateOfBirth,
		m.IsActive, m.IsStaff, m.IsSuperuser, m.PasswordHash, m.LastLogin)
	if err != nil {
		return member.Member{}, translate(err, nil)
	}
	if err := requireAffected(res); err != nil {
		return member.Member{}, err
	}
	return s.GetMember(ctx, m.ID)
}

func (s *Store) RecordLogin(ctx context.Context, id int64, at time.Time) (member.Member, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE members SET last_login = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return member.Member{}, translate(err, nil)
	}
	if err := requireAffected(res); err != nil {
		return member.Member{}, err
	}
	return s.GetMember(ctx, id)
}

func (s *Store) GetMember(ctx context.Context, id int64) (member.Member, error) {
	var row memberRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id); err != nil {
		return member.Member{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) GetMemberByEmail(ctx context.Context, email string) (member.Member, error) {
	var row memberRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+memberColumns+` FROM members WHERE email = $1`, email); err != nil {
		return member.Member{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) GetMembers(ctx context.Context, ids []int64) (map[int64]member.Member, error) {
	out := make(map[int64]member.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+memberColumns+` FROM members WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []memberRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.toDomain()
	}
	return out, nil
}

func (s *Store) SearchMembers(ctx context.Context, term string, limit int) ([]member.Member, error) {
	pattern := "%" + escapeLike(term) + "%"
	query := `SELECT ` + memberColumns + ` FROM members
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1
		ORDER BY id`
	args := []interface{}{pattern}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []memberRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]member.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
