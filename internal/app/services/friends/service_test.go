package friends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupfit/server/internal/app/domain/calendar"
	"github.com/groupfit/server/internal/app/domain/friend"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/storage/memory"
	apperrors "github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/logging"
	"github.com/groupfit/server/pkg/testutil"
)

func setup(t *testing.T) (*Service, *memory.Store, []member.Actor) {
	t.Helper()
	store := memory.New()
	actors := testutil.Actors(testutil.Members(t, store, "a@example.com", "b@example.com", "c@example.com"))
	return New(store, store, logging.Discard()), store, actors
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	return apperrors.HTTPStatus(err)
}

func TestRequestCreatesPendingConnection(t *testing.T) {
	svc, _, people := setup(t)
	a, b := people[0], people[1]
	ctx := context.Background()

	v, err := svc.Request(ctx, a, b.ID)
	require.NoError(t, err)
	assert.Equal(t, friend.StatusPending, v.Status)
	assert.Equal(t, "a@example.com", v.User1.Email)
	assert.Equal(t, "b@example.com", v.User2.Email)
	assert.Equal(t, "a@example.com", v.RequestedBy.Email)
	assert.True(t, v.ConnectedDate.IsZero())

	_, err = svc.Request(ctx, b, a.ID)
	assert.Equal(t, 409, httpStatus(t, err), "reverse duplicate is rejected")
	_, err = svc.Request(ctx, a, b.ID)
	assert.Equal(t, 409, httpStatus(t, err))

	_, err = svc.Request(ctx, a, a.ID)
	assert.Equal(t, 400, httpStatus(t, err))
	_, err = svc.Request(ctx, a, 4040)
	assert.Equal(t, 404, httpStatus(t, err))
}

func TestListReturnsBothDirections(t *testing.T) {
	svc, _, people := setup(t)
	a, b, c := people[0], people[1], people[2]
	ctx := context.Background()

	_, err := svc.Request(ctx, a, b.ID)
	require.NoError(t, err)
	_, err = svc.Request(ctx, c, a.ID)
	require.NoError(t, err)

	mine, err := svc.List(ctx, a, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := svc.List(ctx, a, b.ID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	_, err = svc.List(ctx, a, 777)
	assert.Equal(t, 404, httpStatus(t, err))
}

func TestRespondAcceptSetsConnectedDate(t *testing.T) {
	svc, _, people := setup(t)
	a, b, c := people[0], people[1], people[2]
	ctx := context.Background()
	day := calendar.DateOf(calendar.Today().AddDate(0, 0, -1))
	svc.today = func() calendar.Date { return day }

	v, err := svc.Request(ctx, a, b.ID)
	require.NoError(t, err)

	_, err = svc.Respond(ctx, c, v.ID, "Accepted")
	assert.Equal(t, 403, httpStatus(t, err))
	_, err = svc.Respond(ctx, b, v.ID, "maybe")
	assert.Equal(t, 400, httpStatus(t, err))

	accepted, err := svc.Respond(ctx, b, v.ID, "Accepted")
	require.NoError(t, err)
	require.NotNil(t, accepted)
	assert.Equal(t, friend.StatusAccepted, accepted.Status)
	assert.Equal(t, day.String(), accepted.ConnectedDate.String())

	_, err = svc.Respond(ctx, b, v.ID, "Rejected")
	assert.Equal(t, 409, httpStatus(t, err))
}

func TestRespondRejectDeletesConnection(t *testing.T) {
	svc, store, people := setup(t)
	a, b := people[0], people[1]
	ctx := context.Background()

	v, err := svc.Request(ctx, a, b.ID)
	require.NoError(t, err)

	res, err := svc.Respond(ctx, b, v.ID, "rejected")
	require.NoError(t, err)
	assert.Nil(t, res)

	conns, err := store.ListConnections(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)

	_, err = svc.Request(ctx, b, a.ID)
	assert.NoError(t, err, "a rejected pair can connect again")
}

func TestRemoveParticipantsOnly(t *testing.T) {
	svc, _, people := setup(t)
	a, b, c := people[0], people[1], people[2]
	ctx := context.Background()

	v, err := svc.Request(ctx, a, b.ID)
	require.NoError(t, err)

	assert.Equal(t, 403, httpStatus(t, svc.Remove(ctx, c, v.ID)))
	require.NoError(t, svc.Remove(ctx, b, v.ID))
	assert.Equal(t, 404, httpStatus(t, svc.Remove(ctx, a, v.ID)))
}
