package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

var _ repository.CalendarRepository = (*DB)(nil)

const eventColumns = `e.id, e.profile_id, e.user_id, e.name, e.date, e.automatic_event, e.notified_at`

func scanEvent(row interface{ Scan(...any) error }, e *model.CalendarEvent) error {
	return row.Scan(&e.ID, &e.ProfileID, &e.UserID, &e.Name, &e.Date, &e.AutomaticEvent, &e.NotifiedAt)
}

// CreateEvent inserts the event and its reminder offsets.
func (db *DB) CreateEvent(ctx context.Context, e *model.CalendarEvent) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, e)
	})
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *model.CalendarEvent) error {
	e.ID = xid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calendar_events (id, profile_id, user_id, name, date, automatic_event)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProfileID, e.UserID, e.Name, e.Date, e.AutomaticEvent,
	); err != nil {
		return fmt.Errorf("sqlite: inserting event %q: %w", e.Name, err)
	}
	return insertOffsets(ctx, tx, e.ID, e.DaysBefore)
}

func insertOffsets(ctx context.Context, tx *sql.Tx, eventID string, offsets []int) error {
	for _, n := range offsets {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_notifications (event_id, days_before) VALUES (?, ?)`,
			eventID, n,
		); err != nil {
			return fmt.Errorf("sqlite: inserting reminder offset %d: %w", n, err)
		}
	}
	return nil
}

func (db *DB) GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error) {
	var e model.CalendarEvent
	err := scanEvent(db.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events e WHERE e.id = ?`, id), &e)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("sqlite: getting event %s: %w", id, err)
	}

	offsets, err := db.loadOffsets(ctx, `WHERE event_id = ?`, id)
	if err != nil {
		return nil, err
	}
	e.DaysBefore = offsets[e.ID]
	if e.DaysBefore == nil {
		e.DaysBefore = []int{}
	}
	return &e, nil
}

// UpdateEvent rewrites name, date, subject and offsets. A changed event is
// due again, so notified_at is cleared.
func (db *DB) UpdateEvent(ctx context.Context, e *model.CalendarEvent) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE calendar_events SET profile_id = ?, name = ?, date = ?, notified_at = NULL WHERE id = ?`,
			e.ProfileID, e.Name, e.Date, e.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating event %s: %w", e.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("event", e.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM event_notifications WHERE event_id = ?`, e.ID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing reminder offsets: %w", err)
		}
		return insertOffsets(ctx, tx, e.ID, e.DaysBefore)
	})
}

func (db *DB) DeleteEvent(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("event", id)
	}
	return nil
}

// ListEvents returns the user's events by date, each with its offsets.
func (db *DB) ListEvents(ctx context.Context, userID string) ([]model.CalendarEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events e WHERE e.user_id = ? ORDER BY e.date, e.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}

	events := []model.CalendarEvent{}
	for rows.Next() {
		var e model.CalendarEvent
		if err := scanEvent(rows, &e); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}
	rows.Close()

	offsets, err := db.loadOffsets(ctx,
		`WHERE event_id IN (SELECT id FROM calendar_events WHERE user_id = ?)`, userID)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].DaysBefore = offsets[events[i].ID]
		if events[i].DaysBefore == nil {
			events[i].DaysBefore = []int{}
		}
	}
	return events, nil
}

func (db *DB) loadOffsets(ctx context.Context, where string, arg any) (map[string][]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT event_id, days_before FROM event_notifications `+where+` ORDER BY days_before`, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading reminder offsets: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning reminder offset: %w", err)
		}
		out[id] = append(out[id], n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reminder offsets: %w", err)
	}
	return out, nil
}

// ReplaceBirthdayEvents drops every automatic birthday event about the
// profile and inserts the given ones. Passing no events just clears them,
// which is what a removed birthdate needs.
func (db *DB) ReplaceBirthdayEvents(ctx context.Context, profileID string, events []model.CalendarEvent) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM calendar_events WHERE profile_id = ? AND automatic_event = ?`,
			profileID, model.AutoBirthday,
		); err != nil {
			return fmt.Errorf("sqlite: clearing birthday events for %s: %w", profileID, err)
		}
		for i := range events {
			events[i].AutomaticEvent = model.AutoBirthday
			if err := insertEvent(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureBirthdayEvent inserts e unless its owner already has a birthday
// event about the same profile. e.ID is set to whichever row exists.
func (db *DB) EnsureBirthdayEvent(ctx context.Context, e *model.CalendarEvent) error {
	e.AutomaticEvent = model.AutoBirthday
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM calendar_events WHERE user_id = ? AND profile_id = ? AND automatic_event = ?`,
			e.UserID, e.ProfileID, model.AutoBirthday,
		).Scan(&existing)
		switch {
		case err == nil:
			e.ID = existing
			return nil
		case err != sql.ErrNoRows:
			return fmt.Errorf("sqlite: checking birthday event: %w", err)
		}
		return insertEvent(ctx, tx, e)
	})
}

// ListDueNotifications returns one row per (event, offset) pair whose
// reminder falls on today, with what the email needs to address it.
func (db *DB) ListDueNotifications(ctx context.Context, today model.Date) ([]repository.DueNotification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+eventColumns+`, n.days_before, u.email, COALESCE(pr.display_name, '')
		 FROM calendar_events e
		 JOIN event_notifications n ON n.event_id = e.id
		 JOIN users u ON u.id = e.user_id
		 LEFT JOIN profiles pr ON pr.id = e.profile_id
		 WHERE e.date = date(?, '+' || n.days_before || ' days')
		 ORDER BY e.user_id, e.date`,
		today.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing due notifications: %w", err)
	}
	defer rows.Close()

	due := []repository.DueNotification{}
	for rows.Next() {
		var d repository.DueNotification
		e := &d.Event
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.UserID, &e.Name, &e.Date, &e.AutomaticEvent, &e.NotifiedAt,
			&d.DaysBefore, &d.UserEmail, &d.ProfileName,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning due notification: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating due notifications: %w", err)
	}
	return due, nil
}

func (db *DB) MarkNotified(ctx context.Context, eventID string, at time.Time) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE calendar_events SET notified_at = ? WHERE id = ?`, at.UTC(), eventID,
	); err != nil {
		return fmt.Errorf("sqlite: marking event %s notified: %w", eventID, err)
	}
	return nil
}

// RollForwardBirthdays moves every automatic birthday event dated before
// today forward by one year, keeping the row and clearing notified_at.
func (db *DB) RollForwardBirthdays(ctx context.Context, today model.Date) (int, error) {
	moved := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, date FROM calendar_events WHERE automatic_event = ? AND date < ?`,
			model.AutoBirthday, today.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: listing past birthday events: %w", err)
		}

		type past struct {
			id   string
			date model.Date
		}
		var stale []past
		for rows.Next() {
			var p past
			if err := rows.Scan(&p.id, &p.date); err != nil {
				rows.Close()
				return fmt.Errorf("sqlite: scanning birthday event: %w", err)
			}
			stale = append(stale, p)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: iterating birthday events: %w", err)
		}
		rows.Close()

		for _, p := range stale {
			if _, err := tx.ExecContext(ctx,
				`UPDATE calendar_events SET date = ?, notified_at = NULL WHERE id = ?`,
				p.date.AddYear(), p.id,
			); err != nil {
				return fmt.Errorf("sqlite: rolling event %s forward: %w", p.id, err)
			}
		}
		moved = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// UpsertGlobalEvents loads reference holidays keyed by their stable id.
func (db *DB) UpsertGlobalEvents(ctx context.Context, events []model.GlobalEvent) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range events {
			var weekday *int
			if g.Weekday != nil {
				w := int(*g.Weekday)
				weekday = &w
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO global_events (id, country_code, name, month, day, weekday, nth, days_before)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET
					country_code = excluded.country_code, name = excluded.name, month = excluded.month,
					day = excluded.day, weekday = excluded.weekday, nth = excluded.nth,
					days_before = excluded.days_before`,
				g.ID, g.CountryCode, g.Name, int(g.Month), g.Day, weekday, g.Nth, g.DaysBefore,
			); err != nil {
				return fmt.Errorf("sqlite: upserting global event %s: %w", g.ID, err)
			}
		}
		return nil
	})
}

// ListGlobalEvents returns the holidays of one country, or all of them
// when country is empty.
func (db *DB) ListGlobalEvents(ctx context.Context, country string) ([]model.GlobalEvent, error) {
	query := `SELECT id, country_code, name, month, day, weekday, nth, days_before FROM global_events`
	var args []any
	if country != "" {
		query += ` WHERE country_code = ?`
		args = append(args, country)
	}
	query += ` ORDER BY country_code, month, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing global events: %w", err)
	}
	defer rows.Close()

	events := []model.GlobalEvent{}
	for rows.Next() {
		var (
			g       model.GlobalEvent
			month   int
			weekday sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &g.CountryCode, &g.Name, &month, &g.Day, &weekday, &g.Nth, &g.DaysBefore); err != nil {
			return nil, fmt.Errorf("sqlite: scanning global event: %w", err)
		}
		g.Month = time.Month(month)
		if weekday.Valid {
			w := time.Weekday(weekday.Int64)
			g.Weekday = &w
		}
		events = append(events, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating global events: %w", err)
	}
	return events, nil
}

// ClaimDelivery records a reminder as sent to userID on day. The primary
// key turns a second claim into a no-op, which the caller sees as false.
func (db *DB) ClaimDelivery(ctx context.Context, key, userID string, day model.Date) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO notification_deliveries (delivery_key, user_id, day) VALUES (?, ?, ?)`,
		key, userID, day,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: claiming delivery %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseDelivery forgets a claim so a failed send can be retried.
func (db *DB) ReleaseDelivery(ctx context.Context, key, userID string, day model.Date) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM notification_deliveries WHERE delivery_key = ? AND user_id = ? AND day = ?`,
		key, userID, day,
	); err != nil {
		return fmt.Errorf("sqlite: releasing delivery %s: %w", key, err)
	}
	return nil
}
