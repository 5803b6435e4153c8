package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/groupfit/server/internal/app/domain/friend"
	"github.com/groupfit/server/internal/app/domain/group"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

var memberCols = []string{"id", "email", "first_name", "last_name", "join_date", "date_of_birth",
	"is_active", "is_staff", "is_superuser", "password_hash", "last_login"}

func TestCreateMemberReturnsID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	m, err := store.CreateMember(context.Background(), member.Member{Email: "a@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if m.ID != 7 || m.JoinDate.IsZero() {
		t.Fatalf("unexpected member: %+v", m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateMemberDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO members").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "members_email_key"})

	_, err := store.CreateMember(context.Background(), member.Member{Email: "a@example.com"})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetMemberScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	join := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM members WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow(int64(3), "a@example.com", "Ann", "Lee", join, nil, true, true, false, "hash", nil))

	m, err := store.GetMember(context.Background(), 3)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m.Email != "a@example.com" || m.JoinDate.String() != "2024-03-01" || !m.DateOfBirth.IsZero() {
		t.Fatalf("unexpected member: %+v", m)
	}
}

func TestRecordLoginWritesOnlyLastLogin(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	join := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE members SET last_login = \$2 WHERE id = \$1`).
		WithArgs(int64(3), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM members WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(memberCols).
			AddRow(int64(3), "a@example.com", "Ann", "Lee", join, nil, true, true, false, "hash", at))

	m, err := store.RecordLogin(context.Background(), 3, at)
	if err != nil {
		t.Fatalf("record login: %v", err)
	}
	if m.LastLogin == nil || !m.LastLogin.Equal(at) {
		t.Fatalf("unexpected last login: %v", m.LastLogin)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetMemberNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM members WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(memberCols))

	if _, err := store.GetMember(context.Background(), 9); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMembershipRejectsLastAdmin(t *testing.T) {
	store, mock := newMockStore(t)
	msCols := []string{"id", "group_id", "member_id", "member_role"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM group_memberships WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(msCols).AddRow(int64(5), int64(2), int64(1), "Admin"))
	mock.ExpectQuery("SELECT id FROM groups WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT (.+) FROM group_memberships WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(msCols).AddRow(int64(5), int64(2), int64(1), "Admin"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM group_memberships").
		WithArgs(int64(2), "Admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	if err := store.DeleteMembership(context.Background(), 5); !errors.Is(err, group.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateMembershipRoleWithOtherAdmin(t *testing.T) {
	store, mock := newMockStore(t)
	msCols := []string{"id", "group_id", "member_id", "member_role"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM group_memberships WHERE id").
		WillReturnRows(sqlmock.NewRows(msCols).AddRow(int64(5), int64(2), int64(1), "Admin"))
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT (.+) FROM group_memberships WHERE id").
		WillReturnRows(sqlmock.NewRows(msCols).AddRow(int64(5), int64(2), int64(1), "Admin"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("UPDATE group_memberships SET member_role").
		WithArgs(int64(5), "Member").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ms, err := store.UpdateMembershipRole(context.Background(), 5, group.RoleMember)
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if ms.Role != group.RoleMember {
		t.Fatalf("expected Member role, got %s", ms.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateGroupAddsCreatorInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO groups").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery("INSERT INTO group_memberships").
		WithArgs(int64(11), int64(4), "Admin").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCommit()

	g, ms, err := store.CreateGroup(context.Background(), group.Group{Name: "Runners", CreatedBy: 4}, group.RoleAdmin)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if g.ID != 11 || ms.ID != 12 || !ms.IsAdmin() {
		t.Fatalf("unexpected result: %+v %+v", g, ms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateConnectionDuplicatePair(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO friend_connections").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "friend_connections_pair_idx"})

	_, err := store.CreateConnection(context.Background(), friend.Connection{User1: 2, User2: 1, RequestedBy: 2, Status: friend.StatusPending})
	if !errors.Is(err, friend.ErrConnectionExists) {
		t.Fatalf("expected ErrConnectionExists, got %v", err)
	}
}

func TestDeleteConnectionMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM friend_connections").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteConnection(context.Background(), 3); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTranslateForeignKey(t *testing.T) {
	err := translate(&pq.Error{Code: foreignKeyViolation, Constraint: "groups_created_by_fkey"}, nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(translate(sql.ErrNoRows, nil), storage.ErrNotFound) {
		t.Fatalf("expected ErrNoRows to map to ErrNotFound")
	}
}
