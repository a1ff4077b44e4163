package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateFromIdentity returns the user for a verified Google identity,
// creating the user, profile and person rows on first sign-in.
//
// The boolean result reports whether the user was created by this call.
// All three inserts share one transaction: a user without a profile (or a
// profile without a person) would break every join the app relies on.
func (db *DB) CreateFromIdentity(ctx context.Context, id model.Identity, country string) (*model.User, bool, error) {
	var (
		user    *model.User
		created bool
	)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getUser(ctx, tx, `WHERE google_sub = ?`, id.Subject)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		u := &model.User{
			ID:          xid.New().String(),
			Email:       id.Email,
			GoogleSub:   id.Subject,
			CountryCode: country,
			CreatedAt:   now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, google_sub, country_code, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.Email, u.GoogleSub, u.CountryCode, u.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: inserting user (sub=%s): %w", id.Subject, err)
		}

		profileID := xid.New().String()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (id, user_id, display_name, avatar_url) VALUES (?, ?, ?, ?)`,
			profileID, u.ID, id.Name, id.AvatarURL,
		); err != nil {
			return fmt.Errorf("sqlite: inserting profile for user %s: %w", u.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO persons (id, profile_id) VALUES (?, ?)`,
			xid.New().String(), profileID,
		); err != nil {
			return fmt.Errorf("sqlite: inserting person for profile %s: %w", profileID, err)
		}

		user = u
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return user, created, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getUser(ctx, db.conn, `WHERE id = ?`, id)
}

// UpdateCountry changes the only mutable user field.
func (db *DB) UpdateCountry(ctx context.Context, userID, country string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET country_code = ? WHERE id = ?`, country, userID)
	if err != nil {
		return fmt.Errorf("sqlite: updating country for user %s: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// ListUsersByCountry returns every user registered with the country code.
func (db *DB) ListUsersByCountry(ctx context.Context, country string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, email, google_sub, country_code, created_at
		 FROM users WHERE country_code = ? ORDER BY created_at`,
		country,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users for country %s: %w", country, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.GoogleSub, &u.CountryCode, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

func getUser(ctx context.Context, q querier, where string, arg any) (*model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx,
		`SELECT id, email, google_sub, country_code, created_at FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.GoogleSub, &u.CountryCode, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	return &u, nil
}
