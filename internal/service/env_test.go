package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/metrics"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository/sqlite"
)

// env wires every service to one in-memory database. Service rules that
// span several tables (links plus events, lists plus claims) are tested
// against real SQL rather than a stack of fakes.
type env struct {
	db          *sqlite.DB
	metrics     *metrics.Metrics
	profiles    *ProfileService
	connections *ConnectionService
	wishlists   *WishlistService
	comments    *CommentService
	calendar    *CalendarService
}

// envNow is the pinned clock for every service in env.
var envNow = time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	logger := testLogger()
	clock := func() time.Time { return envNow }

	e := &env{
		db:          db,
		metrics:     m,
		profiles:    NewProfileService(db, db, db, db, logger),
		connections: NewConnectionService(db, db, db, logger),
		wishlists:   NewWishlistService(db, db, db, db, m, logger),
		comments:    NewCommentService(db, db, logger),
		calendar:    NewCalendarService(db, db, db, logger),
	}
	e.profiles.now = clock
	e.connections.now = clock
	e.wishlists.now = clock
	e.calendar.now = clock
	return e
}

type member struct {
	User    *model.User
	Profile *model.Profile
}

func (e *env) signUp(t *testing.T, name string) member {
	t.Helper()
	ctx := context.Background()
	u, _, err := e.db.CreateFromIdentity(ctx, model.Identity{
		Subject: "sub-" + name,
		Email:   name + "@example.com",
		Name:    name,
	}, "CZ")
	require.NoError(t, err)
	p, err := e.db.GetProfileByUserID(ctx, u.ID)
	require.NoError(t, err)
	return member{User: u, Profile: p}
}

// link runs the full invite/accept flow from a to b.
func (e *env) link(t *testing.T, a, b member) {
	t.Helper()
	ctx := context.Background()
	inv, err := e.connections.Invite(ctx, a.User.ID, b.Profile.PersonID)
	require.NoError(t, err)
	_, err = e.connections.Accept(ctx, b.User.ID, inv.ID)
	require.NoError(t, err)
}

func (e *env) setBirthdate(t *testing.T, m member, d model.Date) {
	t.Helper()
	_, err := e.profiles.UpdateProfile(context.Background(), m.User.ID, ProfileUpdate{
		DisplayName: m.Profile.DisplayName,
		Birthdate:   &d,
	})
	require.NoError(t, err)
}

func birthdayEventsOf(t *testing.T, e *env, userID string) []model.CalendarEvent {
	t.Helper()
	all, err := e.db.ListEvents(context.Background(), userID)
	require.NoError(t, err)
	var out []model.CalendarEvent
	for _, ev := range all {
		if ev.AutomaticEvent == model.AutoBirthday {
			out = append(out, ev)
		}
	}
	return out
}
