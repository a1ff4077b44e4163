package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
)

func TestInvite(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob := e.signUp(t, "ana"), e.signUp(t, "bob")

	_, err := e.connections.Invite(ctx, ana.User.ID, ana.Profile.PersonID)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err), "self invite")

	_, err = e.connections.Invite(ctx, ana.User.ID, "no-such-person")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	inv, err := e.connections.Invite(ctx, ana.User.ID, bob.Profile.PersonID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, inv.Status)

	// Any existing edge blocks a second invite, from either side.
	for _, pair := range [][2]member{{ana, bob}, {bob, ana}} {
		_, err := e.connections.Invite(ctx, pair[0].User.ID, pair[1].Profile.PersonID)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.CodeAlreadyLinked, appErr.Code)
	}
}

func TestAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob, eve := e.signUp(t, "ana"), e.signUp(t, "bob"), e.signUp(t, "eve")

	inv, err := e.connections.Invite(ctx, ana.User.ID, bob.Profile.PersonID)
	require.NoError(t, err)

	_, err = e.connections.Accept(ctx, eve.User.ID, inv.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "only the invitee can accept")
	_, err = e.connections.Accept(ctx, ana.User.ID, inv.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "the inviter cannot accept")

	contact, err := e.connections.Accept(ctx, bob.User.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.Profile.ID, contact.Profile.ID)

	for _, m := range []member{ana, bob} {
		contacts, err := e.connections.ListContacts(ctx, m.User.ID)
		require.NoError(t, err)
		assert.Len(t, contacts, 1, "link is visible from %s's side", m.Profile.DisplayName)
	}

	_, err = e.connections.Accept(ctx, bob.User.ID, inv.ID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeInvitationHandled, appErr.Code)
}

func TestAccept_CreatesMutualBirthdayEvents(t *testing.T) {
	e := newEnv(t)
	ana, bob := e.signUp(t, "ana"), e.signUp(t, "bob")
	e.setBirthdate(t, ana, model.NewDate(1990, 3, 10))
	e.setBirthdate(t, bob, model.NewDate(1992, 8, 1))

	e.link(t, ana, bob)

	anaEvents := birthdayEventsOf(t, e, ana.User.ID)
	require.Len(t, anaEvents, 1)
	assert.Equal(t, bob.Profile.ID, *anaEvents[0].ProfileID)
	assert.Equal(t, "2026-08-01", anaEvents[0].Date.String())
	assert.Equal(t, []int{1, 7}, anaEvents[0].DaysBefore)

	bobEvents := birthdayEventsOf(t, e, bob.User.ID)
	require.Len(t, bobEvents, 1)
	// March 10 has passed on June 15, so the next one is next year.
	assert.Equal(t, "2027-03-10", bobEvents[0].Date.String())
}

func TestReject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob := e.signUp(t, "ana"), e.signUp(t, "bob")

	inv, err := e.connections.Invite(ctx, ana.User.ID, bob.Profile.PersonID)
	require.NoError(t, err)

	assert.ErrorIs(t, e.connections.Reject(ctx, ana.User.ID, inv.ID), apperror.ErrNotFound)
	require.NoError(t, e.connections.Reject(ctx, bob.User.ID, inv.ID))

	// Rejected invitations leave no trace; a fresh invite is allowed.
	_, err = e.connections.Invite(ctx, ana.User.ID, bob.Profile.PersonID)
	assert.NoError(t, err)
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob := e.signUp(t, "ana"), e.signUp(t, "bob")
	e.setBirthdate(t, ana, model.NewDate(1990, 3, 10))
	e.setBirthdate(t, bob, model.NewDate(1992, 8, 1))
	e.link(t, ana, bob)

	require.NoError(t, e.connections.Remove(ctx, bob.User.ID, ana.Profile.PersonID))

	for _, m := range []member{ana, bob} {
		contacts, err := e.connections.ListContacts(ctx, m.User.ID)
		require.NoError(t, err)
		assert.Empty(t, contacts)
		assert.Empty(t, birthdayEventsOf(t, e, m.User.ID))
	}

	assert.ErrorIs(t, e.connections.Remove(ctx, bob.User.ID, ana.Profile.PersonID), apperror.ErrNotFound)
}

func TestListInvitations_HidesBirthdates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob := e.signUp(t, "ana"), e.signUp(t, "bob")
	e.setBirthdate(t, ana, model.NewDate(1990, 3, 10))

	_, err := e.connections.Invite(ctx, ana.User.ID, bob.Profile.PersonID)
	require.NoError(t, err)

	got, err := e.connections.ListInvitations(ctx, bob.User.ID)
	require.NoError(t, err)
	require.Len(t, got.Incoming, 1)
	assert.Empty(t, got.Outgoing)
	assert.Equal(t, ana.Profile.ID, got.Incoming[0].Profile.ID)
	assert.Nil(t, got.Incoming[0].Profile.Birthdate)

	sent, err := e.connections.ListInvitations(ctx, ana.User.ID)
	require.NoError(t, err)
	assert.Len(t, sent.Outgoing, 1)
}
