// Package notify runs the daily reminder jobs.
//
// THREE JOBS, ONE TICK
// Once a day, at the configured hour (UTC), the scheduler runs:
//
//	personal → reminders for users' own calendar events
//	global   → holiday reminders for every user in the holiday's country
//	rollover → moves past automatic birthday events one year forward
//
// and then purges expired sessions.
//
// WHY A TRY-LOCK PER JOB?
// The same jobs can be triggered by the timer and by `gifteo notify` (or a
// slow run can still be going when the next tick fires). Each job holds its
// own mutex with TryLock: a second run while the first is in progress is
// skipped with a warning instead of queueing up and double-sending.
//
// DELIVERY DEDUPLICATION
// Before sending, every reminder is claimed in the notification_deliveries
// table under a key (event, or holiday + year), user and day. A crash after
// the claim but before the send loses one email; a retry never sends two.
// Failed sends release their claim so the next run can try again.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/gifteo/internal/mail"
	"github.com/sakif/gifteo/internal/metrics"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

const (
	jobPersonal = "personal"
	jobGlobal   = "global"
	jobRollover = "rollover"
	jobSessions = "sessions"
)

// SessionPurger deletes expired login sessions.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Scheduler owns the daily jobs. Build it with New; the zero value is not
// usable.
type Scheduler struct {
	events   repository.CalendarRepository
	users    repository.UserRepository
	sessions SessionPurger
	mailer   mail.Mailer
	metrics  *metrics.Metrics
	hour     int
	now      func() time.Time
	logger   *slog.Logger

	personalMu sync.Mutex
	globalMu   sync.Mutex
	rolloverMu sync.Mutex
	sessionsMu sync.Mutex
}

// New creates a scheduler firing daily at hour:00 UTC. sessions may be nil.
func New(
	events repository.CalendarRepository,
	users repository.UserRepository,
	sessions SessionPurger,
	mailer mail.Mailer,
	m *metrics.Metrics,
	hour int,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		events:   events,
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		metrics:  m,
		hour:     hour,
		now:      time.Now,
		logger:   logger,
	}
}

// Run blocks, running all jobs at every daily tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("notification scheduler started", slog.Int("hour_utc", s.hour))
	for {
		next := nextRun(s.now(), s.hour)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("notification scheduler stopped")
			return nil
		case <-timer.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("daily notification run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// nextRun is the first hour:00 UTC strictly after now.
func nextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunOnce runs every job once for today. Job failures are joined; one
// failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return errors.Join(
		s.RunPersonal(ctx),
		s.RunGlobal(ctx),
		s.RunRollover(ctx),
		s.runJob(ctx, jobSessions, &s.sessionsMu, s.purgeSessions),
	)
}

func (s *Scheduler) RunPersonal(ctx context.Context) error {
	return s.runJob(ctx, jobPersonal, &s.personalMu, s.personal)
}

func (s *Scheduler) RunGlobal(ctx context.Context) error {
	return s.runJob(ctx, jobGlobal, &s.globalMu, s.global)
}

func (s *Scheduler) RunRollover(ctx context.Context) error {
	return s.runJob(ctx, jobRollover, &s.rolloverMu, s.rollover)
}

func (s *Scheduler) runJob(ctx context.Context, name string, mu *sync.Mutex, fn func(context.Context, model.Date) error) error {
	if !mu.TryLock() {
		s.logger.Warn("notification job still running, skipping this run", slog.String("job", name))
		s.countRun(name, "overlap")
		return nil
	}
	defer mu.Unlock()

	today := model.DateOf(s.now().UTC())
	start := time.Now()
	if err := fn(ctx, today); err != nil {
		s.countRun(name, "error")
		return fmt.Errorf("notify: %s job: %w", name, err)
	}
	s.countRun(name, "ok")
	s.logger.Info("notification job finished",
		slog.String("job", name),
		slog.String("day", today.String()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *Scheduler) personal(ctx context.Context, today model.Date) error {
	due, err := s.events.ListDueNotifications(ctx, today)
	if err != nil {
		return err
	}

	for _, d := range due {
		r := mail.Reminder{
			To:         d.UserEmail,
			EventName:  d.Event.Name,
			Date:       d.Event.Date,
			DaysBefore: d.DaysBefore,
			About:      d.ProfileName,
		}
		if !s.deliver(ctx, jobPersonal, "event:"+d.Event.ID, d.Event.UserID, today, r) {
			continue
		}
		if err := s.events.MarkNotified(ctx, d.Event.ID, s.now()); err != nil {
			s.logger.Warn("could not stamp event as notified",
				slog.String("event_id", d.Event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *Scheduler) global(ctx context.Context, today model.Date) error {
	rules, err := s.events.ListGlobalEvents(ctx, "")
	if err != nil {
		return err
	}

	recipients := map[string][]model.User{}
	for _, g := range rules {
		date, year, ok := s.dueGlobal(g, today)
		if !ok {
			continue
		}

		users, cached := recipients[g.CountryCode]
		if !cached {
			users, err = s.users.ListUsersByCountry(ctx, g.CountryCode)
			if err != nil {
				return err
			}
			recipients[g.CountryCode] = users
		}

		key := fmt.Sprintf("global:%s:%d", g.ID, year)
		for _, u := range users {
			s.deliver(ctx, jobGlobal, key, u.ID, today, mail.Reminder{
				To:         u.Email,
				EventName:  g.Name,
				Date:       date,
				DaysBefore: g.DaysBefore,
			})
		}
	}
	return nil
}

// dueGlobal resolves g for this year and next (a January holiday with a
// long lead time is announced in December) and reports the occurrence
// whose reminder day is today.
func (s *Scheduler) dueGlobal(g model.GlobalEvent, today model.Date) (model.Date, int, bool) {
	for _, year := range []int{today.Year(), today.Year() + 1} {
		date, err := g.Resolve(year)
		if err != nil {
			s.logger.Warn("skipping malformed global event",
				slog.String("id", g.ID),
				slog.Int("year", year),
				slog.String("error", err.Error()),
			)
			return model.Date{}, 0, false
		}
		if date.AddDays(-g.DaysBefore).Equal(today) {
			return date, year, true
		}
	}
	return model.Date{}, 0, false
}

// deliver claims, renders and sends one reminder. It reports whether the
// email went out; every other outcome is logged and counted here.
func (s *Scheduler) deliver(ctx context.Context, job, key, userID string, today model.Date, r mail.Reminder) bool {
	log := s.logger.With(slog.String("job", job), slog.String("key", key), slog.String("user_id", userID))

	claimed, err := s.events.ClaimDelivery(ctx, key, userID, today)
	if err != nil {
		log.Warn("could not claim reminder delivery", slog.String("error", err.Error()))
		s.countEmail(job, "failed")
		return false
	}
	if !claimed {
		s.countEmail(job, "skipped")
		return false
	}

	msg, err := mail.RenderReminder(r)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		log.Warn("reminder email failed", slog.String("error", err.Error()))
		s.countEmail(job, "failed")
		if rerr := s.events.ReleaseDelivery(ctx, key, userID, today); rerr != nil {
			log.Warn("could not release reminder claim", slog.String("error", rerr.Error()))
		}
		return false
	}

	s.countEmail(job, "sent")
	return true
}

func (s *Scheduler) rollover(ctx context.Context, today model.Date) error {
	moved, err := s.events.RollForwardBirthdays(ctx, today)
	if err != nil {
		return err
	}
	if moved > 0 {
		s.logger.Info("rolled birthday events forward", slog.Int("count", moved))
	}
	return nil
}

func (s *Scheduler) purgeSessions(ctx context.Context, _ model.Date) error {
	if s.sessions == nil {
		return nil
	}
	n, err := s.sessions.PurgeExpiredSessions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("purged expired sessions", slog.Int64("count", n))
	}
	return nil
}

func (s *Scheduler) countRun(job, outcome string) {
	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(job, outcome).Inc()
	}
}

func (s *Scheduler) countEmail(job, outcome string) {
	if s.metrics != nil {
		s.metrics.Notifications.WithLabelValues(job, outcome).Inc()
	}
}
