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

var _ repository.ConnectionRepository = (*DB)(nil)

// personOfUser resolves a user's person id inside SQL.
const personOfUser = `(SELECT pe.id FROM persons pe JOIN profiles pr ON pr.id = pe.profile_id WHERE pr.user_id = ?)`

func (db *DB) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	var c model.Connection
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, person_id, status, created_at FROM user_persons WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.PersonID, &c.Status, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("invitation", id)
		}
		return nil, fmt.Errorf("sqlite: getting connection %s: %w", id, err)
	}
	return &c, nil
}

// FindLink looks for an edge between A and B in either direction.
func (db *DB) FindLink(ctx context.Context, userA, personA, userB, personB string) (*model.Connection, error) {
	var c model.Connection
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, person_id, status, created_at FROM user_persons
		 WHERE (user_id = ? AND person_id = ?) OR (user_id = ? AND person_id = ?)
		 ORDER BY created_at LIMIT 1`,
		userA, personB, userB, personA,
	).Scan(&c.ID, &c.UserID, &c.PersonID, &c.Status, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("connection", userA+"/"+userB)
		}
		return nil, fmt.Errorf("sqlite: finding link: %w", err)
	}
	return &c, nil
}

func (db *DB) CreateInvitation(ctx context.Context, c *model.Connection) error {
	c.ID = xid.New().String()
	c.Status = model.StatusPending
	c.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_persons (id, user_id, person_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.PersonID, c.Status, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating invitation: %w", err)
	}
	return nil
}

// AcceptInvitation flips a pending edge to accepted and writes the accepted
// mirror edge from the accepting user back to the inviter's person.
//
// The conditional UPDATE makes accepting twice a conflict rather than a
// silent success, and the upsert covers a stale mirror row.
func (db *DB) AcceptInvitation(ctx context.Context, invitationID, acceptingUserID, inviterPersonID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE user_persons SET status = 'accepted' WHERE id = ? AND status = 'pending'`,
			invitationID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: accepting invitation %s: %w", invitationID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.Conflict(apperror.CodeInvitationHandled, "invitation is no longer pending")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_persons (id, user_id, person_id, status, created_at)
			 VALUES (?, ?, ?, 'accepted', ?)
			 ON CONFLICT (user_id, person_id) DO UPDATE SET status = 'accepted'`,
			xid.New().String(), acceptingUserID, inviterPersonID, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting mirror edge: %w", err)
		}
		return nil
	})
}

// DeletePending hard-deletes a pending invitation.
func (db *DB) DeletePending(ctx context.Context, invitationID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_persons WHERE id = ? AND status = 'pending'`, invitationID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting invitation %s: %w", invitationID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("invitation", invitationID)
	}
	return nil
}

// RemoveLink deletes both edges and the automatic events that exist only
// because of the link: each user's auto events about the other's profile.
func (db *DB) RemoveLink(ctx context.Context, userID, personID, otherUserID, otherPersonID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM user_persons
			 WHERE (user_id = ? AND person_id = ?) OR (user_id = ? AND person_id = ?)`,
			userID, otherPersonID, otherUserID, personID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: deleting connection edges: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("connection", otherPersonID)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM calendar_events
			 WHERE automatic_event <> ''
			   AND ((user_id = ? AND profile_id = (SELECT profile_id FROM persons WHERE id = ?))
			     OR (user_id = ? AND profile_id = (SELECT profile_id FROM persons WHERE id = ?)))`,
			userID, otherPersonID, otherUserID, personID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: deleting auto events for link: %w", err)
		}
		return nil
	})
}

// ListContacts returns the user's accepted connections with the profile on
// the other end.
func (db *DB) ListContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	return db.listContacts(ctx,
		`SELECT up.id, up.status, `+profileColumns+`
		 FROM user_persons up
		 JOIN persons pe ON pe.id = up.person_id
		 JOIN profiles pr ON pr.id = pe.profile_id
		 WHERE up.user_id = ? AND up.status = 'accepted'
		 ORDER BY pr.display_name`,
		userID,
	)
}

// ListIncoming returns pending invitations addressed to personID, showing
// the inviter's profile.
func (db *DB) ListIncoming(ctx context.Context, personID string) ([]model.Contact, error) {
	return db.listContacts(ctx,
		`SELECT up.id, up.status, `+profileColumns+`
		 FROM user_persons up
		 JOIN profiles pr ON pr.user_id = up.user_id
		 JOIN persons pe ON pe.profile_id = pr.id
		 WHERE up.person_id = ? AND up.status = 'pending'
		 ORDER BY up.created_at`,
		personID,
	)
}

// ListOutgoing returns invitations the user sent that are still pending.
func (db *DB) ListOutgoing(ctx context.Context, userID string) ([]model.Contact, error) {
	return db.listContacts(ctx,
		`SELECT up.id, up.status, `+profileColumns+`
		 FROM user_persons up
		 JOIN persons pe ON pe.id = up.person_id
		 JOIN profiles pr ON pr.id = pe.profile_id
		 WHERE up.user_id = ? AND up.status = 'pending'
		 ORDER BY up.created_at`,
		userID,
	)
}

func (db *DB) listContacts(ctx context.Context, query string, arg any) ([]model.Contact, error) {
	rows, err := db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing contacts: %w", err)
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		p := &c.Profile
		if err := rows.Scan(&c.ConnectionID, &c.Status,
			&p.ID, &p.UserID, &p.PersonID, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.Birthdate,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating contacts: %w", err)
	}
	return contacts, nil
}

// IsConnected reports whether userID holds an accepted edge to otherUserID's person.
func (db *DB) IsConnected(ctx context.Context, userID, otherUserID string) (bool, error) {
	var ok bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_persons
			WHERE user_id = ? AND status = 'accepted' AND person_id = `+personOfUser+`
		)`,
		userID, otherUserID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking connection: %w", err)
	}
	return ok, nil
}

func (db *DB) ListConnectedUserIDs(ctx context.Context, personID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM user_persons WHERE person_id = ? AND status = 'accepted' ORDER BY user_id`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing connected users: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}
