package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/mail"
	"github.com/sakif/gifteo/internal/metrics"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository/sqlite"
)

// fakeMailer records messages and fails for addresses in failFor.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []mail.Message
	failFor map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return errors.New("smtp: mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var to []string
	for _, m := range f.sent {
		to = append(to, m.To)
	}
	return to
}

type fakePurger struct{ calls int }

func (f *fakePurger) PurgeExpiredSessions(context.Context) (int64, error) {
	f.calls++
	return 2, nil
}

type fixture struct {
	db      *sqlite.DB
	mailer  *fakeMailer
	metrics *metrics.Metrics
	purger  *fakePurger
	sched   *Scheduler
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:      db,
		mailer:  &fakeMailer{failFor: map[string]bool{}},
		metrics: metrics.New(),
		purger:  &fakePurger{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.sched = New(db, db, f.purger, f.mailer, f.metrics, 7, logger)
	f.sched.now = func() time.Time { return now }
	return f
}

func (f *fixture) user(t *testing.T, name, country string) *model.User {
	t.Helper()
	u, _, err := f.db.CreateFromIdentity(context.Background(), model.Identity{
		Subject: "sub-" + name,
		Email:   name + "@example.com",
		Name:    name,
	}, country)
	require.NoError(t, err)
	return u
}

func (f *fixture) event(t *testing.T, u *model.User, name string, date model.Date, offsets ...int) *model.CalendarEvent {
	t.Helper()
	e := &model.CalendarEvent{UserID: u.ID, Name: name, Date: date, DaysBefore: offsets}
	require.NoError(t, f.db.CreateEvent(context.Background(), e))
	return e
}

func intp(v int) *int { return &v }

func weekdayp(w time.Weekday) *time.Weekday { return &w }

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 7, 0, 0, 0, time.UTC)
}

func TestPersonal_SendsOnOffsetDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.December, 23))
	ana := f.user(t, "ana", "CZ")
	e := f.event(t, ana, "Mum's name day", model.NewDate(2026, time.December, 24), 1, 7)
	f.event(t, ana, "Unrelated", model.NewDate(2026, time.December, 25), 1)

	require.NoError(t, f.sched.RunPersonal(ctx))

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Reminder: Mum's name day is tomorrow", msg.Subject)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("personal", "sent")))

	got, err := f.db.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.NotifiedAt, "notified_at stamped after a successful send")
}

func TestPersonal_DeduplicatesWithinDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.December, 17))
	ana := f.user(t, "ana", "CZ")
	f.event(t, ana, "Party", model.NewDate(2026, time.December, 24), 7)

	require.NoError(t, f.sched.RunPersonal(ctx))
	require.NoError(t, f.sched.RunPersonal(ctx))

	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("personal", "skipped")))
}

func TestPersonal_FailureDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.March, 9))
	ana := f.user(t, "ana", "CZ")
	ben := f.user(t, "ben", "CZ")
	failed := f.event(t, ana, "Dentist", model.NewDate(2026, time.March, 10), 1)
	f.event(t, ben, "Recital", model.NewDate(2026, time.March, 10), 1)
	f.mailer.failFor["ana@example.com"] = true

	require.NoError(t, f.sched.RunPersonal(ctx))
	assert.Equal(t, []string{"ben@example.com"}, f.mailer.recipients())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("personal", "failed")))

	got, err := f.db.GetEvent(ctx, failed.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NotifiedAt)

	// The failed claim was released, so a retry reaches ana but not ben again.
	delete(f.mailer.failFor, "ana@example.com")
	require.NoError(t, f.sched.RunPersonal(ctx))
	assert.Equal(t, []string{"ben@example.com", "ana@example.com"}, f.mailer.recipients())
}

func TestGlobal_FixedRuleForCountry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.December, 23))
	f.user(t, "ana", "CZ")
	f.user(t, "eva", "CZ")
	f.user(t, "sam", "US")
	require.NoError(t, f.db.UpsertGlobalEvents(ctx, []model.GlobalEvent{
		{ID: "cz-eve", CountryCode: "CZ", Name: "Štědrý den", Month: time.December, Day: intp(24), DaysBefore: 1},
	}))

	require.NoError(t, f.sched.RunGlobal(ctx))

	assert.ElementsMatch(t, []string{"ana@example.com", "eva@example.com"}, f.mailer.recipients())
	assert.True(t, strings.Contains(f.mailer.sent[0].Text, "24 December 2026"))

	require.NoError(t, f.sched.RunGlobal(ctx))
	assert.Len(t, f.mailer.sent, 2, "second run on the same day sends nothing")
}

func TestGlobal_FloatingRule(t *testing.T) {
	ctx := context.Background()
	// Thanksgiving 2026 is Thursday 26 November.
	f := newFixture(t, at(2026, time.November, 19))
	f.user(t, "sam", "US")
	require.NoError(t, f.db.UpsertGlobalEvents(ctx, []model.GlobalEvent{
		{ID: "us-thanksgiving", CountryCode: "US", Name: "Thanksgiving", Month: time.November, Weekday: weekdayp(time.Thursday), Nth: intp(4), DaysBefore: 7},
	}))

	require.NoError(t, f.sched.RunGlobal(ctx))
	require.Equal(t, []string{"sam@example.com"}, f.mailer.recipients())
	assert.Equal(t, "Reminder: Thanksgiving is in 7 days", f.mailer.sent[0].Subject)
}

func TestGlobal_NextYearOccurrence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.December, 18))
	f.user(t, "ana", "DE")
	require.NoError(t, f.db.UpsertGlobalEvents(ctx, []model.GlobalEvent{
		{ID: "de-new-year", CountryCode: "DE", Name: "Neujahr", Month: time.January, Day: intp(1), DaysBefore: 14},
	}))

	require.NoError(t, f.sched.RunGlobal(ctx))
	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].Text, "1 January 2027")
}

func TestGlobal_SkipsMalformedRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.February, 13))
	f.user(t, "ana", "CZ")
	require.NoError(t, f.db.UpsertGlobalEvents(ctx, []model.GlobalEvent{
		{ID: "broken", CountryCode: "CZ", Name: "Nope", Month: time.February, Day: intp(31)},
		{ID: "no-rule", CountryCode: "CZ", Name: "Nothing", Month: time.March},
		{ID: "valentine", CountryCode: "CZ", Name: "Valentýn", Month: time.February, Day: intp(14), DaysBefore: 1},
	}))

	require.NoError(t, f.sched.RunGlobal(ctx))
	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobRuns.WithLabelValues("global", "ok")))
}

func TestRollover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2026, time.June, 15))
	ana := f.user(t, "ana", "CZ")
	ben := f.user(t, "ben", "CZ")
	benProfile, err := f.db.GetProfileByUserID(ctx, ben.ID)
	require.NoError(t, err)

	past := &model.CalendarEvent{UserID: ana.ID, ProfileID: &benProfile.ID, Name: "ben's birthday", Date: model.NewDate(2026, time.March, 1), DaysBefore: []int{1}}
	require.NoError(t, f.db.EnsureBirthdayEvent(ctx, past))
	manual := f.event(t, ana, "Concert", model.NewDate(2026, time.January, 5), 1)

	require.NoError(t, f.sched.RunRollover(ctx))

	got, err := f.db.GetEvent(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, "2027-03-01", got.Date.String())

	untouched, err := f.db.GetEvent(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-05", untouched.Date.String(), "manual events are never rolled")
}

func TestRunJob_SkipsOverlap(t *testing.T) {
	f := newFixture(t, at(2026, time.December, 23))
	ana := f.user(t, "ana", "CZ")
	f.event(t, ana, "Party", model.NewDate(2026, time.December, 24), 1)

	f.sched.personalMu.Lock()
	require.NoError(t, f.sched.RunPersonal(context.Background()))
	f.sched.personalMu.Unlock()

	assert.Empty(t, f.mailer.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobRuns.WithLabelValues("personal", "overlap")))
}

func TestRunOnce_RunsEveryJob(t *testing.T) {
	f := newFixture(t, at(2026, time.December, 23))
	ana := f.user(t, "ana", "CZ")
	f.event(t, ana, "Party", model.NewDate(2026, time.December, 24), 1)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, 1, f.purger.calls)
	for _, job := range []string{"personal", "global", "rollover", "sessions"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobRuns.WithLabelValues(job, "ok")), job)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, at(2026, time.December, 23))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		now  time.Time
		hour int
		want time.Time
	}{
		{time.Date(2026, 5, 1, 6, 59, 0, 0, time.UTC), 7, time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)},
		{time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC), 7, time.Date(2026, 5, 2, 7, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), 0, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*3600)), 7, time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := nextRun(tt.now, tt.hour); !got.Equal(tt.want) {
			t.Errorf("nextRun(%v, %d) = %v, want %v", tt.now, tt.hour, got, tt.want)
		}
	}
}
