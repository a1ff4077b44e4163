package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time of day or zone.
//
// WHY NOT time.Time?
// Birthdays and events are civil dates. A time.Time carries a clock and a
// location, and "2026-12-24 00:00 CET" is 2026-12-23 in UTC. Keeping the
// value normalised to UTC midnight and serialising it as "YYYY-MM-DD" makes
// date arithmetic (AddDate, Equal) safe and comparisons in SQL lexical.
type Date struct {
	time.Time
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("model: parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// AddDays moves the date by n days (negative allowed).
func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal compares calendar days.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// AddYear advances by exactly one year, pinning Feb 29 to Feb 28 when the
// following year is not a leap year (time.AddDate would roll to Mar 1).
func (d Date) AddYear() Date {
	if d.Month() == time.February && d.Day() == 29 {
		next := NewDate(d.Year()+1, time.February, 29)
		if next.Month() != time.February {
			return NewDate(d.Year()+1, time.February, 28)
		}
		return next
	}
	return NewDate(d.Year()+1, d.Month(), d.Day())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores dates as TEXT so SQLite ordering stays lexical.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan accepts TEXT (the normal case) or a time value.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
	case time.Time:
		*d = DateOf(v)
	default:
		return fmt.Errorf("model: cannot scan %T into Date", src)
	}
	return nil
}
