package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/apperror"
)

func TestComments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob, eve := e.signUp(t, "ana"), e.signUp(t, "bob"), e.signUp(t, "eve")
	e.link(t, ana, bob)
	w, item := ownList(t, e, ana, true)

	c, err := e.comments.Add(ctx, bob.User.ID, w.ID, "  I will get the <b>blue</b> one ")
	require.NoError(t, err)
	assert.Equal(t, "I will get the blue one", c.Text)

	_, err = e.comments.Add(ctx, eve.User.ID, w.ID, "hi")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = e.comments.Add(ctx, bob.User.ID, w.ID, "<p></p>")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = e.comments.Add(ctx, bob.User.ID, w.ID, strings.Repeat("a", 1001))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	list, err := e.comments.List(ctx, ana.User.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].AuthorName)

	_, err = e.comments.List(ctx, eve.User.ID, w.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	// A claimant can still read the thread of a deleted list but not add to it.
	_, err = e.wishlists.Claim(ctx, bob.User.ID, item.ID)
	require.NoError(t, err)
	require.NoError(t, e.wishlists.Delete(ctx, ana.User.ID, w.ID))

	_, err = e.comments.List(ctx, bob.User.ID, w.ID)
	assert.NoError(t, err)
	_, err = e.comments.Add(ctx, bob.User.ID, w.ID, "still there?")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestComments_StoredAsPlainText(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana, bob := e.signUp(t, "ana"), e.signUp(t, "bob")
	e.link(t, ana, bob)
	w, _ := ownList(t, e, ana, true)

	c, err := e.comments.Add(ctx, bob.User.ID, w.ID, "Bob's Lego & more")
	require.NoError(t, err)
	assert.Equal(t, "Bob's Lego & more", c.Text)

	list, err := e.comments.List(ctx, ana.User.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bob's Lego & more", list[0].Text)
}
