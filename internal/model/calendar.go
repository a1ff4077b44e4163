package model

import (
	"fmt"
	"time"
)

// MaxNotifications caps the reminder offsets per event.
const MaxNotifications = 3

// AutoBirthday tags events the system generates from profile birthdates.
const AutoBirthday = "birthday"

// CalendarEvent is a user's own dated reminder, optionally about a profile.
//
// AutomaticEvent is empty for user-entered events. Automatic events are
// owned by the system: they are rolled forward yearly and regenerated when
// the underlying birthdate or connection changes.
type CalendarEvent struct {
	ID             string     `json:"id"                   db:"id"`
	ProfileID      *string    `json:"profileId"            db:"profile_id"`
	UserID         string     `json:"userId"               db:"user_id"`
	Name           string     `json:"name"                 db:"name"`
	Date           Date       `json:"date"                 db:"date"`
	AutomaticEvent string     `json:"automaticEvent"       db:"automatic_event"`
	NotifiedAt     *time.Time `json:"notifiedAt,omitempty" db:"notified_at"`
	DaysBefore     []int      `json:"notifications"        db:"-"`
}

// GlobalEvent is a country-scoped holiday definition.
//
// Exactly one rule form is expected: a fixed Day of Month, or a floating
// Nth Weekday of Month. Nth may be negative to count from the end of the
// month (-1 is the last such weekday).
type GlobalEvent struct {
	ID          string        `json:"id"                db:"id"`
	CountryCode string        `json:"countryCode"       db:"country_code"`
	Name        string        `json:"name"              db:"name"`
	Month       time.Month    `json:"month"             db:"month"`
	Day         *int          `json:"day,omitempty"     db:"day"`
	Weekday     *time.Weekday `json:"weekday,omitempty" db:"weekday"`
	Nth         *int          `json:"nth,omitempty"     db:"nth"`
	DaysBefore  int           `json:"daysBefore"        db:"days_before"`
}

// ErrMalformedRule is returned by Resolve when neither rule form is usable.
var ErrMalformedRule = fmt.Errorf("model: global event has no usable date rule")

// Resolve computes the event's date in the given year.
func (g GlobalEvent) Resolve(year int) (Date, error) {
	if g.Month < time.January || g.Month > time.December {
		return Date{}, ErrMalformedRule
	}

	if g.Day != nil {
		d := NewDate(year, g.Month, *g.Day)
		if d.Month() != g.Month {
			return Date{}, ErrMalformedRule
		}
		return d, nil
	}

	if g.Weekday == nil || g.Nth == nil || *g.Nth == 0 {
		return Date{}, ErrMalformedRule
	}

	nth := *g.Nth
	if nth > 0 {
		first := NewDate(year, g.Month, 1)
		offset := (int(*g.Weekday) - int(first.Weekday()) + 7) % 7
		d := first.AddDays(offset + (nth-1)*7)
		if d.Month() != g.Month {
			return Date{}, ErrMalformedRule
		}
		return d, nil
	}

	// Counting from the end: start at the month's last day.
	last := NewDate(year, g.Month+1, 0)
	offset := (int(last.Weekday()) - int(*g.Weekday) + 7) % 7
	d := last.AddDays(-offset + (nth+1)*7)
	if d.Month() != g.Month {
		return Date{}, ErrMalformedRule
	}
	return d, nil
}
