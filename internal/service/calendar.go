package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
	"github.com/sakif/gifteo/internal/sanitize"
)

// DefaultBirthdayOffsets are the reminders every automatic birthday event
// starts with: a week ahead and the day before.
var DefaultBirthdayOffsets = []int{1, 7}

const (
	maxEventName = 100
	maxOffset    = 365
)

// CalendarService manages a user's own dated events and lists the global
// holidays for their country.
type CalendarService struct {
	events   repository.CalendarRepository
	users    repository.UserRepository
	profiles repository.ProfileRepository
	now      Clock
	logger   *slog.Logger
}

func NewCalendarService(
	events repository.CalendarRepository,
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
) *CalendarService {
	return &CalendarService{
		events:   events,
		users:    users,
		profiles: profiles,
		now:      time.Now,
		logger:   logger,
	}
}

// EventInput is the editable part of a calendar event.
type EventInput struct {
	Name          string
	Date          model.Date
	ProfileID     *string
	Notifications []int
}

func (s *CalendarService) ListEvents(ctx context.Context, userID string) ([]model.CalendarEvent, error) {
	events, err := s.events.ListEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/calendar: %w", err)
	}
	return events, nil
}

func (s *CalendarService) CreateEvent(ctx context.Context, userID string, in EventInput) (*model.CalendarEvent, error) {
	e := &model.CalendarEvent{UserID: userID}
	if err := s.apply(ctx, e, in); err != nil {
		return nil, err
	}

	if err := s.events.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("service/calendar: %w", err)
	}

	s.logger.Info("event created", slog.String("id", e.ID), slog.String("userID", userID))
	return e, nil
}

// UpdateEvent edits one of the caller's events.
//
// Automatic events belong to the system: their name, date and subject are
// derived from a profile, so only the reminder offsets are taken from in.
func (s *CalendarService) UpdateEvent(ctx context.Context, userID, eventID string, in EventInput) (*model.CalendarEvent, error) {
	e, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	if e.AutomaticEvent != "" {
		offsets, err := normalizeOffsets(in.Notifications)
		if err != nil {
			return nil, err
		}
		e.DaysBefore = offsets
	} else if err := s.apply(ctx, e, in); err != nil {
		return nil, err
	}

	if err := s.events.UpdateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("service/calendar: %w", err)
	}
	e.NotifiedAt = nil
	return e, nil
}

func (s *CalendarService) DeleteEvent(ctx context.Context, userID, eventID string) error {
	e, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if e.AutomaticEvent != "" {
		return apperror.Forbidden("automatic events cannot be deleted")
	}

	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("service/calendar: %w", err)
	}
	s.logger.Info("event deleted", slog.String("id", eventID), slog.String("userID", userID))
	return nil
}

// ownedEvent loads an event and hides other users' events behind NotFound.
func (s *CalendarService) ownedEvent(ctx context.Context, userID, eventID string) (*model.CalendarEvent, error) {
	e, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("service/calendar: %w", err)
	}
	if e.UserID != userID {
		return nil, apperror.NotFound("event", eventID)
	}
	return e, nil
}

func (s *CalendarService) apply(ctx context.Context, e *model.CalendarEvent, in EventInput) error {
	name := sanitize.Text(in.Name)
	if err := requireLength("name", name, 1, maxEventName); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return apperror.ValidationFailed("date", "date is required")
	}
	offsets, err := normalizeOffsets(in.Notifications)
	if err != nil {
		return err
	}

	if in.ProfileID != nil && *in.ProfileID != "" {
		if _, err := s.profiles.GetProfile(ctx, *in.ProfileID); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.ValidationFailed("profileId", "profile does not exist")
			}
			return fmt.Errorf("service/calendar: %w", err)
		}
		id := *in.ProfileID
		e.ProfileID = &id
	} else {
		e.ProfileID = nil
	}

	e.Name = name
	e.Date = in.Date
	e.DaysBefore = offsets
	return nil
}

// normalizeOffsets validates reminder offsets and returns them sorted and
// de-duplicated.
func normalizeOffsets(in []int) ([]int, error) {
	out := make([]int, 0, len(in))
	for _, n := range in {
		if n < 1 || n > maxOffset {
			return nil, apperror.ValidationFailed("notifications",
				fmt.Sprintf("notifications must be between 1 and %d days before", maxOffset))
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	if len(out) > model.MaxNotifications {
		return nil, apperror.ValidationFailed("notifications",
			fmt.Sprintf("at most %d notifications per event", model.MaxNotifications))
	}
	slices.Sort(out)
	return out, nil
}

// GlobalEventView is a holiday with its next date already resolved.
type GlobalEventView struct {
	model.GlobalEvent
	NextDate model.Date `json:"nextDate"`
}

// ListGlobalEvents returns the holidays for the caller's country, each
// resolved to its next occurrence on or after today. Rules that cannot be
// resolved are left out.
func (s *CalendarService) ListGlobalEvents(ctx context.Context, userID string) ([]GlobalEventView, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/calendar: %w", err)
	}

	events, err := s.events.ListGlobalEvents(ctx, user.CountryCode)
	if err != nil {
		return nil, fmt.Errorf("service/calendar: %w", err)
	}

	today := model.DateOf(s.now())
	views := make([]GlobalEventView, 0, len(events))
	for _, g := range events {
		next, err := nextGlobalOccurrence(g, today)
		if err != nil {
			s.logger.Warn("skipping malformed global event",
				slog.String("id", g.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		views = append(views, GlobalEventView{GlobalEvent: g, NextDate: next})
	}
	slices.SortStableFunc(views, func(a, b GlobalEventView) int {
		return a.NextDate.Compare(b.NextDate.Time)
	})
	return views, nil
}

func nextGlobalOccurrence(g model.GlobalEvent, today model.Date) (model.Date, error) {
	d, err := g.Resolve(today.Year())
	if err != nil {
		return model.Date{}, err
	}
	if d.Before(today) {
		return g.Resolve(today.Year() + 1)
	}
	return d, nil
}

// NextBirthday returns the first anniversary of birth on or after today.
// A Feb 29 birthday falls on Feb 28 in common years.
func NextBirthday(birth, today model.Date) model.Date {
	d := anniversary(birth, today.Year())
	if d.Before(today) {
		d = anniversary(birth, today.Year()+1)
	}
	return d
}

func anniversary(birth model.Date, year int) model.Date {
	d := model.NewDate(year, birth.Month(), birth.Day())
	if d.Month() != birth.Month() {
		return model.NewDate(year, birth.Month(), 28)
	}
	return d
}

// birthdayEvent is the automatic event watcherID keeps about p.
func birthdayEvent(watcherID string, p *model.Profile, today model.Date) model.CalendarEvent {
	profileID := p.ID
	return model.CalendarEvent{
		ProfileID:      &profileID,
		UserID:         watcherID,
		Name:           p.DisplayName + "'s birthday",
		Date:           NextBirthday(*p.Birthdate, today),
		AutomaticEvent: model.AutoBirthday,
		DaysBefore:     slices.Clone(DefaultBirthdayOffsets),
	}
}
