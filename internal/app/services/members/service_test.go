package members

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/storage/memory"
	apperrors "github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/logging"
)

func newService() *Service {
	return New(memory.New(), auth.Hasher{Cost: bcrypt.MinCost}, logging.Discard())
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	m, err := svc.Register(ctx, RegisterInput{Email: " Jane@EXAMPLE.com ", Password: "testpass123", FirstName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "Jane@example.com", m.Email)
	assert.NotEqual(t, "testpass123", m.PasswordHash)
	assert.True(t, m.IsActive)
	assert.False(t, m.IsSuperuser)
	assert.False(t, m.JoinDate.IsZero())

	_, err = svc.Register(ctx, RegisterInput{Email: "Jane@Example.COM", Password: "testpass123"})
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.HTTPStatus(err), "duplicate email")
}

func TestRegisterValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "short@example.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetServiceError(err).Code)

	_, err = svc.Register(ctx, RegisterInput{Email: "", Password: "testpass123"})
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	_, err = svc.Authenticate(ctx, "short@example.com", "pw")
	assert.Equal(t, 400, apperrors.HTTPStatus(err), "rejected registration must not create a member")
}

func TestAuthenticate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	created, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "goodpass1"})
	require.NoError(t, err)

	m, err := svc.Authenticate(ctx, "a@EXAMPLE.COM", "goodpass1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, m.ID)
	require.NotNil(t, m.LastLogin)

	_, err = svc.Authenticate(ctx, "a@example.com", "badpass12")
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
	_, err = svc.Authenticate(ctx, "nobody@example.com", "goodpass1")
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
}

func TestUpdatePartialAndPassword(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	m, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "goodpass1", FirstName: "Old"})
	require.NoError(t, err)

	name := "New"
	updated, err := svc.Update(ctx, m.ID, UpdateInput{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.FirstName)
	assert.Equal(t, "a@example.com", updated.Email)
	assert.Equal(t, m.PasswordHash, updated.PasswordHash)

	short := "short"
	_, err = svc.Update(ctx, m.ID, UpdateInput{Password: &short})
	assert.Equal(t, 400, apperrors.HTTPStatus(err))

	pw := "newpassword"
	_, err = svc.Update(ctx, m.ID, UpdateInput{Password: &pw})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "a@example.com", "newpassword")
	assert.NoError(t, err)

	_, err = svc.Update(ctx, 999, UpdateInput{FirstName: &name})
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
}

func TestSearch(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "ann@example.com", Password: "goodpass1", FirstName: "Ann", LastName: "Lee"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "goodpass1", FirstName: "Bob", LastName: "Manning"})
	require.NoError(t, err)

	found, err := svc.Search(ctx, "ANN")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = svc.Search(ctx, "lee")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ann@example.com", found[0].Email)

	found, err = svc.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCreateSuperuser(t *testing.T) {
	svc := newService()
	m, err := svc.CreateSuperuser(context.Background(), "root@example.com", "supersecret")
	require.NoError(t, err)
	assert.True(t, m.IsSuperuser)
	assert.True(t, m.IsStaff)
}

// interleavingStore runs afterRead once, right after a member is read by email.
type interleavingStore struct {
	*memory.Store
	afterRead func()
}

func (s *interleavingStore) GetMemberByEmail(ctx context.Context, email string) (member.Member, error) {
	m, err := s.Store.GetMemberByEmail(ctx, email)
	if fn := s.afterRead; fn != nil {
		s.afterRead = nil
		fn()
	}
	return m, err
}

func TestAuthenticateKeepsConcurrentPasswordChange(t *testing.T) {
	store := &interleavingStore{Store: memory.New()}
	svc := New(store, auth.Hasher{Cost: bcrypt.MinCost}, logging.Discard())
	ctx := context.Background()
	m, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "oldpass123"})
	require.NoError(t, err)

	store.afterRead = func() {
		pw := "newpass456"
		_, err := svc.Update(ctx, m.ID, UpdateInput{Password: &pw})
		require.NoError(t, err)
	}
	loggedIn, err := svc.Authenticate(ctx, "a@example.com", "oldpass123")
	require.NoError(t, err)
	require.NotNil(t, loggedIn.LastLogin)

	_, err = svc.Authenticate(ctx, "a@example.com", "newpass456")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "a@example.com", "oldpass123")
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
}
