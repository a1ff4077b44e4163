package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitationLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")

	inv := &model.Connection{UserID: ana.User.ID, PersonID: ben.Profile.PersonID}
	require.NoError(t, db.CreateInvitation(ctx, inv))
	assert.Equal(t, model.StatusPending, inv.Status)

	incoming, err := db.ListIncoming(ctx, ben.Profile.PersonID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, ana.Profile.ID, incoming[0].Profile.ID, "incoming shows the inviter")

	outgoing, err := db.ListOutgoing(ctx, ana.User.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, ben.Profile.ID, outgoing[0].Profile.ID)

	// Pending edges do not count as connected.
	ok, err := db.IsConnected(ctx, ana.User.ID, ben.User.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.AcceptInvitation(ctx, inv.ID, ben.User.ID, ana.Profile.PersonID))

	for _, pair := range [][2]member{{ana, ben}, {ben, ana}} {
		ok, err := db.IsConnected(ctx, pair[0].User.ID, pair[1].User.ID)
		require.NoError(t, err)
		assert.True(t, ok, "%s should be connected to %s", pair[0].Profile.DisplayName, pair[1].Profile.DisplayName)
	}

	contacts, err := db.ListContacts(ctx, ben.User.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, ana.Profile.ID, contacts[0].Profile.ID)

	watchers, err := db.ListConnectedUserIDs(ctx, ana.Profile.PersonID)
	require.NoError(t, err)
	assert.Equal(t, []string{ben.User.ID}, watchers)

	// Accepting twice is a conflict, not a silent success.
	err = db.AcceptInvitation(ctx, inv.ID, ben.User.ID, ana.Profile.PersonID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestFindLink_EitherDirection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")

	_, err := db.FindLink(ctx, ana.User.ID, ana.Profile.PersonID, ben.User.ID, ben.Profile.PersonID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	inv := &model.Connection{UserID: ben.User.ID, PersonID: ana.Profile.PersonID}
	require.NoError(t, db.CreateInvitation(ctx, inv))

	link, err := db.FindLink(ctx, ana.User.ID, ana.Profile.PersonID, ben.User.ID, ben.Profile.PersonID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, link.ID)
}

func TestDeletePending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")

	inv := &model.Connection{UserID: ana.User.ID, PersonID: ben.Profile.PersonID}
	require.NoError(t, db.CreateInvitation(ctx, inv))
	require.NoError(t, db.DeletePending(ctx, inv.ID))

	_, err := db.GetConnection(ctx, inv.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.ErrorIs(t, db.DeletePending(ctx, inv.ID), apperror.ErrNotFound)
}

func TestRemoveLink_DropsAutoEventsBothWays(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")
	cid := createMember(t, db, "cid")
	connect(t, db, ana, ben)
	connect(t, db, ana, cid)

	bd := model.NewDate(2026, 5, 1)
	for _, e := range []*model.CalendarEvent{
		{UserID: ana.User.ID, ProfileID: &ben.Profile.ID, Name: "ben", Date: bd, DaysBefore: []int{1}},
		{UserID: ben.User.ID, ProfileID: &ana.Profile.ID, Name: "ana", Date: bd, DaysBefore: []int{1}},
		{UserID: ana.User.ID, ProfileID: &cid.Profile.ID, Name: "cid", Date: bd, DaysBefore: []int{1}},
	} {
		require.NoError(t, db.EnsureBirthdayEvent(ctx, e))
	}
	manual := &model.CalendarEvent{UserID: ana.User.ID, ProfileID: &ben.Profile.ID, Name: "dinner with ben", Date: bd}
	require.NoError(t, db.CreateEvent(ctx, manual))

	require.NoError(t, db.RemoveLink(ctx, ana.User.ID, ana.Profile.PersonID, ben.User.ID, ben.Profile.PersonID))

	ok, err := db.IsConnected(ctx, ben.User.ID, ana.User.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	anaEvents, err := db.ListEvents(ctx, ana.User.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(anaEvents))
	for _, e := range anaEvents {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"cid", "dinner with ben"}, names, "only the auto event about ben goes")

	benEvents, err := db.ListEvents(ctx, ben.User.ID)
	require.NoError(t, err)
	assert.Empty(t, benEvents)

	err = db.RemoveLink(ctx, ana.User.ID, ana.Profile.PersonID, ben.User.ID, ben.Profile.PersonID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
