package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// profileColumns selects a profile together with its person id.
// Callers alias profiles as pr and persons as pe.
const profileColumns = `pr.id, pr.user_id, pe.id, pr.display_name, pr.avatar_url, pr.bio, pr.birthdate`

const profileFrom = ` FROM profiles pr JOIN persons pe ON pe.profile_id = pr.id `

func scanProfile(row interface{ Scan(...any) error }, p *model.Profile) error {
	return row.Scan(&p.ID, &p.UserID, &p.PersonID, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.Birthdate)
}

func (db *DB) getProfileWhere(ctx context.Context, q querier, where string, arg any) (*model.Profile, error) {
	var p model.Profile
	err := scanProfile(q.QueryRowContext(ctx, `SELECT `+profileColumns+profileFrom+where, arg), &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting profile: %w", err)
	}
	return &p, nil
}

func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return db.getProfileWhere(ctx, db.conn, `WHERE pr.id = ?`, id)
}

func (db *DB) GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return db.getProfileWhere(ctx, db.conn, `WHERE pr.user_id = ?`, userID)
}

func (db *DB) GetProfileByPersonID(ctx context.Context, personID string) (*model.Profile, error) {
	return db.getProfileWhere(ctx, db.conn, `WHERE pe.id = ?`, personID)
}

// UpdateProfile writes the mutable profile fields.
func (db *DB) UpdateProfile(ctx context.Context, p *model.Profile) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET display_name = ?, avatar_url = ?, bio = ?, birthdate = ? WHERE id = ?`,
		p.DisplayName, p.AvatarURL, p.Bio, p.Birthdate, p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", p.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("profile", p.ID)
	}
	return nil
}

// SearchProfiles matches display name or email with a case-insensitive
// substring, excluding the searching user.
func (db *DB) SearchProfiles(ctx context.Context, query, excludeUserID string, limit int) ([]model.Profile, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+profileColumns+profileFrom+`
		 JOIN users u ON u.id = pr.user_id
		 WHERE pr.user_id <> ?
		   AND (lower(pr.display_name) LIKE ? ESCAPE '\' OR lower(u.email) LIKE ? ESCAPE '\')
		 ORDER BY pr.display_name
		 LIMIT ?`,
		excludeUserID, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0, limit)
	for rows.Next() {
		var p model.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profiles: %w", err)
	}
	return profiles, nil
}

func (db *DB) ListInterests(ctx context.Context, profileID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name FROM interests WHERE profile_id = ? ORDER BY name`, profileID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing interests: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ReplaceInterests swaps the whole interest set in one transaction.
func (db *DB) ReplaceInterests(ctx context.Context, profileID string, interests []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM interests WHERE profile_id = ?`, profileID); err != nil {
			return fmt.Errorf("sqlite: clearing interests: %w", err)
		}
		for _, name := range interests {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO interests (profile_id, name) VALUES (?, ?)`, profileID, name,
			); err != nil {
				return fmt.Errorf("sqlite: inserting interest %q: %w", name, err)
			}
		}
		return nil
	})
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite: scanning string row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rows: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
