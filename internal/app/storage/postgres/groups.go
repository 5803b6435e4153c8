package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/groupfit/server/internal/app/domain/group"
)

type groupRow struct {
	ID        int64         `db:"id"`
	Name      string        `db:"group_name"`
	Target    sql.NullInt64 `db:"target_workout_number_per_week"`
	CreatedBy int64         `db:"created_by"`
}

func (r groupRow) toDomain() group.Group {
	g := group.Group{ID: r.ID, Name: r.Name, CreatedBy: r.CreatedBy}
	if r.Target.Valid {
		n := int(r.Target.Int64)
		g.TargetWorkoutNumberPerWeek = &n
	}
	return g
}

func nullTarget(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

type membershipRow struct {
	ID       int64  `db:"id"`
	GroupID  int64  `db:"group_id"`
	MemberID int64  `db:"member_id"`
	Role     string `db:"member_role"`
}

func (r membershipRow) toDomain() group.Membership {
	return group.Membership{ID: r.ID, GroupID: r.GroupID, MemberID: r.MemberID, Role: group.Role(r.Role)}
}

type listingRow struct {
	ID        int64  `db:"id"`
	Role      string `db:"member_role"`
	GroupID   int64  `db:"group_id"`
	GroupName string `db:"group_name"`
	MemberID  int64  `db:"member_id"`
	Email     string `db:"email"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
}

type workoutRow struct {
	ID          int64  `db:"id"`
	GroupID     int64  `db:"group_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Link        string `db:"link"`
}

func (r workoutRow) toDomain() group.Workout {
	return group.Workout{ID: r.ID, GroupID: r.GroupID, Name: r.Name, Description: r.Description, Link: r.Link}
}

type evidenceRow struct {
	ID         int64     `db:"id"`
	MemberID   int64     `db:"member_id"`
	WorkoutID  int64     `db:"workout_id"`
	Comment    string    `db:"comment"`
	FileKey    string    `db:"file_key"`
	MediaType  string    `db:"media_type"`
	UploadedAt time.Time `db:"uploaded_at"`
}

func (r evidenceRow) toDomain() group.Evidence {
	return group.Evidence{
		ID:         r.ID,
		MemberID:   r.MemberID,
		WorkoutID:  r.WorkoutID,
		Comment:    r.Comment,
		FileKey:    r.FileKey,
		MediaType:  r.MediaType,
		UploadedAt: r.UploadedAt.UTC(),
	}
}

// --- groups -----------------------------------------------------------------

func (s *Store) CreateGroup(ctx context.Context, g group.Group, creatorRole group.Role) (group.Group, group.Membership, error) {
	var ms group.Membership
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO groups (group_name, target_workout_number_per_week, created_by)
			VALUES ($1, $2, $3)
			RETURNING id
		`, g.Name, nullTarget(g.TargetWorkoutNumberPerWeek), g.CreatedBy).Scan(&g.ID); err != nil {
			return translate(err, nil)
		}
		ms = group.Membership{Role: creatorRole, GroupID: g.ID, MemberID: g.CreatedBy}
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO group_memberships (group_id, member_id, member_role)
			VALUES ($1, $2, $3)
			RETURNING id
		`, ms.GroupID, ms.MemberID, string(ms.Role)).Scan(&ms.ID); err != nil {
			return translate(err, group.ErrAlreadyMember)
		}
		return nil
	})
	if err != nil {
		return group.Group{}, group.Membership{}, err
	}
	return g, ms, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g group.Group) (group.Group, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE groups SET group_name = $2, target_workout_number_per_week = $3
		WHERE id = $1
	`, g.ID, g.Name, nullTarget(g.TargetWorkoutNumberPerWeek))
	if err != nil {
		return group.Group{}, translate(err, nil)
	}
	if err := requireAffected(res); err != nil {
		return group.Group{}, err
	}
	return s.GetGroup(ctx, g.ID)
}

func (s *Store) GetGroup(ctx context.Context, id int64) (group.Group, error) {
	var row groupRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT id, group_name, target_workout_number_per_week, created_by
		FROM groups WHERE id = $1
	`, id); err != nil {
		return group.Group{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) ListGroupsCreatedBy(ctx context.Context, memberID int64) ([]group.Group, error) {
	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, group_name, target_workout_number_per_week, created_by
		FROM groups WHERE created_by = $1
		ORDER BY id
	`, memberID); err != nil {
		return nil, err
	}
	out := make([]group.Group, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// DeleteGroup relies on ON DELETE CASCADE for memberships, workouts and
// evidence.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- memberships ------------------------------------------------------------

func (s *Store) CreateMembership(ctx context.Context, ms group.Membership) (group.Membership, error) {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO group_memberships (group_id, member_id, member_role)
		VALUES ($1, $2, $3)
		RETURNING id
	`, ms.GroupID, ms.MemberID, string(ms.Role)).Scan(&ms.ID)
	if err != nil {
		return group.Membership{}, translate(err, group.ErrAlreadyMember)
	}
	return ms, nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (group.Membership, error) {
	var row membershipRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT id, group_id, member_id, member_role FROM group_memberships WHERE id = $1
	`, id); err != nil {
		return group.Membership{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) FindMembership(ctx context.Context, groupID, memberID int64) (group.Membership, error) {
	var row membershipRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT id, group_id, member_id, member_role FROM group_memberships
		WHERE group_id = $1 AND member_id = $2
	`, groupID, memberID); err != nil {
		return group.Membership{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) ListMembershipsByMember(ctx context.Context, memberID int64) ([]group.Membership, error) {
	var rows []membershipRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, group_id, member_id, member_role FROM group_memberships
		WHERE member_id = $1
		ORDER BY id
	`, memberID); err != nil {
		return nil, err
	}
	out := make([]group.Membership, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListMemberListings(ctx context.Context, groupID int64) ([]group.MemberListing, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT gm.id, gm.member_role, g.id AS group_id, g.group_name,
			m.id AS member_id, m.email, m.first_name, m.last_name
		FROM group_memberships gm
		JOIN groups g ON g.id = gm.group_id
		JOIN members m ON m.id = gm.member_id
		WHERE gm.group_id = $1
		ORDER BY gm.id
	`, groupID); err != nil {
		return nil, err
	}
	out := make([]group.MemberListing, 0, len(rows))
	for _, r := range rows {
		out = append(out, group.MemberListing{
			ID:        r.ID,
			Role:      group.Role(r.Role),
			GroupID:   r.GroupID,
			GroupName: r.GroupName,
			MemberID:  r.MemberID,
			Email:     r.Email,
			FirstName: r.FirstName,
			LastName:  r.LastName,
		})
	}
	return out, nil
}

func (s *Store) UpdateMembershipRole(ctx context.Context, id int64, role group.Role) (group.Membership, error) {
	var out group.Membership
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		ms, err := lockMembership(ctx, tx, id)
		if err != nil {
			return err
		}
		if ms.IsAdmin() && role != group.RoleAdmin {
			if err := ensureOtherAdmin(ctx, tx, ms.GroupID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE group_memberships SET member_role = $2 WHERE id = $1
		`, id, string(role)); err != nil {
			return err
		}
		ms.Role = role
		out = ms
		return nil
	})
	if err != nil {
		return group.Membership{}, err
	}
	return out, nil
}

func (s *Store) DeleteMembership(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		ms, err := lockMembership(ctx, tx, id)
		if err != nil {
			return err
		}
		if ms.IsAdmin() {
			if err := ensureOtherAdmin(ctx, tx, ms.GroupID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM group_memberships WHERE id = $1`, id)
		return err
	})
}

// lockMembership loads a membership and locks its group row so that role
// changes within one group are serialized.
func lockMembership(ctx context.Context, tx *sqlx.Tx, id int64) (group.Membership, error) {
	var row membershipRow
	if err := tx.GetContext(ctx, &row, `
		SELECT id, group_id, member_id, member_role FROM group_memberships WHERE id = $1
	`, id); err != nil {
		return group.Membership{}, translate(err, nil)
	}
	var locked int64
	if err := tx.QueryRowxContext(ctx, `SELECT id FROM groups WHERE id = $1 FOR UPDATE`, row.GroupID).Scan(&locked); err != nil {
		return group.Membership{}, translate(err, nil)
	}
	// Re-read under the lock; the row may have changed while waiting.
	if err := tx.GetContext(ctx, &row, `
		SELECT id, group_id, member_id, member_role FROM group_memberships WHERE id = $1
	`, id); err != nil {
		return group.Membership{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func ensureOtherAdmin(ctx context.Context, tx *sqlx.Tx, groupID int64) error {
	var admins int
	if err := tx.GetContext(ctx, &admins, `
		SELECT COUNT(*) FROM group_memberships WHERE group_id = $1 AND member_role = $2
	`, groupID, string(group.RoleAdmin)); err != nil {
		return err
	}
	if admins <= 1 {
		return group.ErrLastAdmin
	}
	return nil
}

// --- workouts ---------------------------------------------------------------

func (s *Store) CreateWorkout(ctx context.Context, w group.Workout) (group.Workout, error) {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO group_workouts (group_id, name, description, link)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, w.GroupID, w.Name, w.Description, w.Link).Scan(&w.ID)
	if err != nil {
		return group.Workout{}, translate(err, nil)
	}
	return w, nil
}

func (s *Store) GetWorkout(ctx context.Context, id int64) (group.Workout, error) {
	var row workoutRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT id, group_id, name, description, link FROM group_workouts WHERE id = $1
	`, id); err != nil {
		return group.Workout{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) ListWorkouts(ctx context.Context, groupID int64) ([]group.Workout, error) {
	var rows []workoutRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, group_id, name, description, link FROM group_workouts
		WHERE group_id = $1
		ORDER BY id
	`, groupID); err != nil {
		return nil, err
	}
	out := make([]group.Workout, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteWorkout(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_workouts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- evidence ---------------------------------------------------------------

func (s *Store) CreateEvidence(ctx context.Context, e group.Evidence) (group.Evidence, error) {
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now().UTC()
	}
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO workout_evidence (member_id, workout_id, comment, file_key, media_type, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.MemberID, e.WorkoutID, e.Comment, e.FileKey, e.MediaType, e.UploadedAt).Scan(&e.ID)
	if err != nil {
		return group.Evidence{}, translate(err, nil)
	}
	return e, nil
}

func (s *Store) GetEvidence(ctx context.Context, id int64) (group.Evidence, error) {
	var row evidenceRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT id, member_id, workout_id, comment, file_key, media_type, uploaded_at
		FROM workout_evidence WHERE id = $1
	`, id); err != nil {
		return group.Evidence{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

// ListEvidence filters by workout and member; a zero id matches any.
func (s *Store) ListEvidence(ctx context.Context, workoutID, memberID int64) ([]group.Evidence, error) {
	var rows []evidenceRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, member_id, workout_id, comment, file_key, media_type, uploaded_at
		FROM workout_evidence
		WHERE ($1::bigint = 0 OR workout_id = $1) AND ($2::bigint = 0 OR member_id = $2)
		ORDER BY id
	`, workoutID, memberID); err != nil {
		return nil, err
	}
	out := make([]group.Evidence, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
