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

var _ repository.WishlistRepository = (*DB)(nil)

const wishlistColumns = `w.id, w.profile_id, w.created_by, w.name, w.is_custom, w.shared_with_all, w.deleted, w.created_at`

func scanWishlist(row interface{ Scan(...any) error }, w *model.Wishlist) error {
	return row.Scan(&w.ID, &w.ProfileID, &w.CreatedBy, &w.Name, &w.IsCustom,
		&w.SharedWithAllConnections, &w.Deleted, &w.CreatedAt)
}

// visibleTo is the set-level form of the access decision for the wishlist
// aliased w. It takes the viewer id four times, see visibleArgs.
//
//	(owner OR (connected AND (shared_with_all OR explicit share)))
//	AND (not deleted OR viewer holds a claim on one of its items)
const visibleTo = `
	(w.created_by = ?
	 OR (EXISTS (
			SELECT 1 FROM user_persons up
			JOIN persons pe ON pe.id = up.person_id
			JOIN profiles pr ON pr.id = pe.profile_id
			WHERE up.user_id = ? AND up.status = 'accepted' AND pr.user_id = w.created_by)
		 AND (w.shared_with_all = 1
		      OR EXISTS (SELECT 1 FROM wishlist_shares s WHERE s.wishlist_id = w.id AND s.user_id = ?))))
	AND (w.deleted = 0
	     OR EXISTS (SELECT 1 FROM wishlist_items i WHERE i.wishlist_id = w.id AND i.checked_off_by = ?))`

func visibleArgs(viewerID string) []any {
	return []any{viewerID, viewerID, viewerID, viewerID}
}

// CreateWishlist inserts the wishlist and its initial explicit shares.
func (db *DB) CreateWishlist(ctx context.Context, w *model.Wishlist, shareWith []string) error {
	w.ID = xid.New().String()
	w.CreatedAt = time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO wishlists (id, profile_id, created_by, name, is_custom, shared_with_all, deleted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			w.ID, w.ProfileID, w.CreatedBy, w.Name, w.IsCustom, w.SharedWithAllConnections, w.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating wishlist: %w", err)
		}
		if !w.SharedWithAllConnections {
			return insertShares(ctx, tx, w.ID, shareWith)
		}
		return nil
	})
}

func (db *DB) GetWishlist(ctx context.Context, id string) (*model.Wishlist, error) {
	var w model.Wishlist
	err := scanWishlist(db.conn.QueryRowContext(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w WHERE w.id = ?`, id), &w)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("wishlist", id)
		}
		return nil, fmt.Errorf("sqlite: getting wishlist %s: %w", id, err)
	}
	return &w, nil
}

func (db *DB) RenameWishlist(ctx context.Context, id, name string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE wishlists SET name = ? WHERE id = ? AND deleted = 0`, name, id)
	if err != nil {
		return fmt.Errorf("sqlite: renaming wishlist %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("wishlist", id)
	}
	return nil
}

// SoftDeleteWishlist marks the wishlist and every item on it deleted.
// Claims are left in place so claimants keep seeing what they bought.
func (db *DB) SoftDeleteWishlist(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE wishlists SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting wishlist %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("wishlist", id)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE wishlist_items SET deleted = 1 WHERE wishlist_id = ?`, id,
		); err != nil {
			return fmt.Errorf("sqlite: deleting items of wishlist %s: %w", id, err)
		}
		return nil
	})
}

// AccessFacts gathers everything the access decision needs in one query.
func (db *DB) AccessFacts(ctx context.Context, wishlistID, userID string) (repository.AccessFacts, error) {
	var (
		f         repository.AccessFacts
		createdBy string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT w.created_by, w.deleted, w.shared_with_all,
			EXISTS (
				SELECT 1 FROM user_persons up
				JOIN persons pe ON pe.id = up.person_id
				JOIN profiles pr ON pr.id = pe.profile_id
				WHERE up.user_id = ? AND up.status = 'accepted' AND pr.user_id = w.created_by),
			EXISTS (SELECT 1 FROM wishlist_shares s WHERE s.wishlist_id = w.id AND s.user_id = ?),
			EXISTS (SELECT 1 FROM wishlist_items i WHERE i.wishlist_id = w.id AND i.checked_off_by = ?)
		 FROM wishlists w WHERE w.id = ?`,
		userID, userID, userID, wishlistID,
	).Scan(&createdBy, &f.Deleted, &f.SharedWithAll, &f.Connected, &f.ExplicitShare, &f.HasClaim)
	if err != nil {
		if err == sql.ErrNoRows {
			return repository.AccessFacts{}, nil
		}
		return repository.AccessFacts{}, fmt.Errorf("sqlite: loading access facts for %s: %w", wishlistID, err)
	}

	f.Exists = true
	f.IsOwner = createdBy == userID
	return f, nil
}

// ListByCreator returns the live wishlists a user created.
func (db *DB) ListByCreator(ctx context.Context, userID string) ([]model.Wishlist, error) {
	return db.listWishlists(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w
		 WHERE w.created_by = ? AND w.deleted = 0
		 ORDER BY w.created_at DESC`,
		userID,
	)
}

// ListVisibleForProfile returns wishlists about profileID the viewer may see.
func (db *DB) ListVisibleForProfile(ctx context.Context, viewerID, profileID string) ([]model.Wishlist, error) {
	args := append([]any{profileID}, visibleArgs(viewerID)...)
	return db.listWishlists(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w
		 WHERE w.profile_id = ? AND `+visibleTo+`
		 ORDER BY w.created_at DESC`,
		args...,
	)
}

// ListSharedWith returns wishlists created by others that the viewer may see.
func (db *DB) ListSharedWith(ctx context.Context, viewerID string) ([]model.Wishlist, error) {
	args := append([]any{viewerID}, visibleArgs(viewerID)...)
	return db.listWishlists(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w
		 WHERE w.created_by <> ? AND `+visibleTo+`
		 ORDER BY w.created_at DESC`,
		args...,
	)
}

func (db *DB) listWishlists(ctx context.Context, query string, args ...any) ([]model.Wishlist, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing wishlists: %w", err)
	}
	defer rows.Close()

	lists := []model.Wishlist{}
	for rows.Next() {
		var w model.Wishlist
		if err := scanWishlist(rows, &w); err != nil {
			return nil, fmt.Errorf("sqlite: scanning wishlist row: %w", err)
		}
		lists = append(lists, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating wishlists: %w", err)
	}
	return lists, nil
}

// ReplaceShares is a destructive replace: the flag is written, every
// explicit share deleted, and the new set inserted, all in one transaction.
// With sharedWithAll the explicit set is left empty.
func (db *DB) ReplaceShares(ctx context.Context, wishlistID string, sharedWithAll bool, userIDs []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE wishlists SET shared_with_all = ? WHERE id = ?`, sharedWithAll, wishlistID)
		if err != nil {
			return fmt.Errorf("sqlite: updating share flag: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("wishlist", wishlistID)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM wishlist_shares WHERE wishlist_id = ?`, wishlistID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing shares: %w", err)
		}

		if sharedWithAll {
			return nil
		}
		return insertShares(ctx, tx, wishlistID, userIDs)
	})
}

func insertShares(ctx context.Context, tx *sql.Tx, wishlistID string, userIDs []string) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO wishlist_shares (wishlist_id, user_id) VALUES (?, ?)`,
			wishlistID, uid,
		); err != nil {
			return fmt.Errorf("sqlite: sharing wishlist with %s: %w", uid, err)
		}
	}
	return nil
}

func (db *DB) ListShares(ctx context.Context, wishlistID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM wishlist_shares WHERE wishlist_id = ? ORDER BY user_id`, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing shares: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// RecordView stores the viewer's latest visit and returns the previous one.
func (db *DB) RecordView(ctx context.Context, wishlistID, userID string, at time.Time) (*time.Time, error) {
	var previous *time.Time
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var last time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT viewed_at FROM wishlist_views WHERE wishlist_id = ? AND user_id = ?`,
			wishlistID, userID,
		).Scan(&last)
		switch {
		case err == nil:
			previous = &last
		case err != sql.ErrNoRows:
			return fmt.Errorf("sqlite: reading last view: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO wishlist_views (wishlist_id, user_id, viewed_at) VALUES (?, ?, ?)
			 ON CONFLICT (wishlist_id, user_id) DO UPDATE SET viewed_at = excluded.viewed_at`,
			wishlistID, userID, at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: recording view: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}
