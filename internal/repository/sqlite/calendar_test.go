package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")

	e := &model.CalendarEvent{
		UserID:     ana.User.ID,
		Name:       "Anniversary",
		Date:       model.NewDate(2026, time.June, 10),
		DaysBefore: []int{7, 1},
	}
	require.NoError(t, db.CreateEvent(ctx, e))
	require.NotEmpty(t, e.ID)

	got, err := db.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-10", got.Date.String())
	assert.Equal(t, []int{1, 7}, got.DaysBefore)
	assert.Empty(t, got.AutomaticEvent)

	got.Name = "Wedding anniversary"
	got.DaysBefore = []int{3}
	require.NoError(t, db.UpdateEvent(ctx, got))

	list, err := db.ListEvents(ctx, ana.User.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Wedding anniversary", list[0].Name)
	assert.Equal(t, []int{3}, list[0].DaysBefore)

	require.NoError(t, db.DeleteEvent(ctx, e.ID))
	_, err = db.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, db.DeleteEvent(ctx, e.ID), apperror.ErrNotFound)
}

func TestBirthdayEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")
	cid := createMember(t, db, "cid")

	first := &model.CalendarEvent{UserID: ben.User.ID, ProfileID: &ana.Profile.ID, Name: "ana", Date: model.NewDate(2026, 3, 14)}
	require.NoError(t, db.EnsureBirthdayEvent(ctx, first))
	dup := &model.CalendarEvent{UserID: ben.User.ID, ProfileID: &ana.Profile.ID, Name: "ana", Date: model.NewDate(2026, 3, 14)}
	require.NoError(t, db.EnsureBirthdayEvent(ctx, dup))
	assert.Equal(t, first.ID, dup.ID, "ensure is idempotent per watcher and profile")

	newDate := model.NewDate(2026, 8, 1)
	require.NoError(t, db.ReplaceBirthdayEvents(ctx, ana.Profile.ID, []model.CalendarEvent{
		{UserID: ben.User.ID, ProfileID: &ana.Profile.ID, Name: "ana", Date: newDate, DaysBefore: []int{1, 7}},
		{UserID: cid.User.ID, ProfileID: &ana.Profile.ID, Name: "ana", Date: newDate, DaysBefore: []int{1, 7}},
	}))

	for _, who := range []member{ben, cid} {
		events, err := db.ListEvents(ctx, who.User.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, model.AutoBirthday, events[0].AutomaticEvent)
		assert.True(t, events[0].Date.Equal(newDate))
	}

	require.NoError(t, db.ReplaceBirthdayEvents(ctx, ana.Profile.ID, nil))
	events, err := db.ListEvents(ctx, ben.User.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListDueNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")

	xmas := &model.CalendarEvent{
		UserID: ana.User.ID, ProfileID: &ben.Profile.ID, Name: "Ben's birthday",
		Date: model.NewDate(2026, time.December, 24), DaysBefore: []int{1, 7},
	}
	require.NoError(t, db.CreateEvent(ctx, xmas))

	tests := []struct {
		today      model.Date
		wantOffset int
		wantCount  int
	}{
		{model.NewDate(2026, time.December, 23), 1, 1},
		{model.NewDate(2026, time.December, 17), 7, 1},
		{model.NewDate(2026, time.December, 24), 0, 0},
		{model.NewDate(2026, time.December, 20), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.today.String(), func(t *testing.T) {
			due, err := db.ListDueNotifications(ctx, tt.today)
			require.NoError(t, err)
			require.Len(t, due, tt.wantCount)
			if tt.wantCount == 0 {
				return
			}
			assert.Equal(t, tt.wantOffset, due[0].DaysBefore)
			assert.Equal(t, "ana@example.com", due[0].UserEmail)
			assert.Equal(t, "ben", due[0].ProfileName)
			assert.Equal(t, xmas.ID, due[0].Event.ID)
		})
	}

	require.NoError(t, db.MarkNotified(ctx, xmas.ID, time.Now()))
	got, err := db.GetEvent(ctx, xmas.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.NotifiedAt)
}

func TestRollForwardBirthdays(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ana := createMember(t, db, "ana")
	ben := createMember(t, db, "ben")
	cid := createMember(t, db, "cid")

	leap := &model.CalendarEvent{UserID: ana.User.ID, ProfileID: &ben.Profile.ID, Name: "ben", Date: model.NewDate(2024, time.February, 29)}
	future := &model.CalendarEvent{UserID: ana.User.ID, ProfileID: &cid.Profile.ID, Name: "cid", Date: model.NewDate(2025, time.May, 1)}
	manual := &model.CalendarEvent{UserID: ana.User.ID, Name: "dentist", Date: model.NewDate(2024, time.January, 2)}
	require.NoError(t, db.EnsureBirthdayEvent(ctx, leap))
	require.NoError(t, db.EnsureBirthdayEvent(ctx, future))
	require.NoError(t, db.CreateEvent(ctx, manual))

	n, err := db.RollForwardBirthdays(ctx, model.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.GetEvent(ctx, leap.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", got.Date.String())

	untouched, err := db.GetEvent(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", untouched.Date.String(), "manual events are never rolled")
}

func TestGlobalEventsAndDeliveries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	day, nth := 24, 4
	thu := time.Thursday
	require.NoError(t, db.UpsertGlobalEvents(ctx, []model.GlobalEvent{
		{ID: "cz-xmas-eve", CountryCode: "CZ", Name: "Štědrý den", Month: time.December, Day: &day, DaysBefore: 1},
		{ID: "us-thanksgiving", CountryCode: "US", Name: "Thanksgiving", Month: time.November, Weekday: &thu, Nth: &nth, DaysBefore: 3},
	}))
	// Upserting again updates in place.
	require.NoError(t, db.UpsertGlobalEvents(ctx, []model.GlobalEvent{
		{ID: "cz-xmas-eve", CountryCode: "CZ", Name: "Christmas Eve", Month: time.December, Day: &day, DaysBefore: 2},
	}))

	cz, err := db.ListGlobalEvents(ctx, "CZ")
	require.NoError(t, err)
	require.Len(t, cz, 1)
	assert.Equal(t, "Christmas Eve", cz[0].Name)
	assert.Equal(t, 2, cz[0].DaysBefore)
	assert.Nil(t, cz[0].Weekday)

	all, err := db.ListGlobalEvents(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	us := all[1]
	require.NotNil(t, us.Weekday)
	assert.Equal(t, time.Thursday, *us.Weekday)
	assert.Equal(t, 4, *us.Nth)

	today := model.NewDate(2026, time.December, 22)
	ok, err := db.ClaimDelivery(ctx, "global:cz-xmas-eve:2026", "u1", today)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.ClaimDelivery(ctx, "global:cz-xmas-eve:2026", "u1", today)
	require.NoError(t, err)
	assert.False(t, ok, "second claim on the same day is a no-op")

	require.NoError(t, db.ReleaseDelivery(ctx, "global:cz-xmas-eve:2026", "u1", today))
	ok, err = db.ClaimDelivery(ctx, "global:cz-xmas-eve:2026", "u1", today)
	require.NoError(t, err)
	assert.True(t, ok, "released claims can be taken again")
}
