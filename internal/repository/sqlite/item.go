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

var _ repository.ItemRepository = (*DB)(nil)

const itemColumns = `id, wishlist_id, name, description, price, currency, photo_url, url, deleted, checked_off_by, modified_at, created_at`

func scanItem(row interface{ Scan(...any) error }, it *model.Item) error {
	return row.Scan(&it.ID, &it.WishlistID, &it.Name, &it.Description, &it.Price, &it.Currency,
		&it.PhotoURL, &it.URL, &it.Deleted, &it.CheckedOffBy, &it.ModifiedAt, &it.CreatedAt)
}

// ListItems returns live items plus deleted items somebody has claimed.
// A claim is never silently hidden from the rest of the group.
func (db *DB) ListItems(ctx context.Context, wishlistID string) ([]model.Item, error) {
	return queryItems(ctx, db.conn,
		`SELECT `+itemColumns+` FROM wishlist_items
		 WHERE wishlist_id = ? AND (deleted = 0 OR checked_off_by IS NOT NULL)
		 ORDER BY created_at, id`,
		wishlistID,
	)
}

func (db *DB) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var it model.Item
	err := scanItem(db.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM wishlist_items WHERE id = ?`, id), &it)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("sqlite: getting item %s: %w", id, err)
	}
	return &it, nil
}

// ReconcileItems brings the wishlist's live items in line with desired.
//
// RECONCILIATION RULES:
//   - an existing item whose id is missing from desired is soft-deleted
//   - an existing item present in desired is updated only if a field
//     changed, and the update stamps modified_at
//   - a desired item without an id is inserted
//
// Deleted items that are still claimed are listed to editors, so clients
// send them back; such ids are left untouched. Any other id that is not a
// live item of this wishlist aborts the whole pass with a validation
// error. Running the same desired list twice writes nothing the second
// time.
func (db *DB) ReconcileItems(ctx context.Context, wishlistID string, desired []model.Item, now time.Time) (model.ReconcileResult, error) {
	var res model.ReconcileResult
	now = now.UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := queryItems(ctx, tx,
			`SELECT `+itemColumns+` FROM wishlist_items
			 WHERE wishlist_id = ? AND (deleted = 0 OR checked_off_by IS NOT NULL)`,
			wishlistID,
		)
		if err != nil {
			return err
		}

		existing := make(map[string]model.Item, len(current))
		retained := make(map[string]bool)
		for _, it := range current {
			if it.Deleted {
				retained[it.ID] = true
				continue
			}
			existing[it.ID] = it
		}
		seen := make(map[string]bool, len(desired))

		for _, want := range desired {
			if want.ID == "" {
				if err := insertItem(ctx, tx, wishlistID, want, now); err != nil {
					return err
				}
				res.Inserted++
				continue
			}

			if retained[want.ID] && !seen[want.ID] {
				seen[want.ID] = true
				res.Unchanged++
				continue
			}

			have, ok := existing[want.ID]
			if !ok || seen[want.ID] {
				return apperror.ValidationFailed("items",
					fmt.Sprintf("item %s is not a live item of this wishlist", want.ID))
			}
			seen[want.ID] = true

			if have.SameContent(want) {
				res.Unchanged++
				continue
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE wishlist_items
				 SET name = ?, description = ?, price = ?, currency = ?, photo_url = ?, url = ?, modified_at = ?
				 WHERE id = ?`,
				want.Name, want.Description, want.Price, want.Currency, want.PhotoURL, want.URL, now, want.ID,
			); err != nil {
				return fmt.Errorf("sqlite: updating item %s: %w", want.ID, err)
			}
			res.Updated++
		}

		for id := range existing {
			if seen[id] {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE wishlist_items SET deleted = 1 WHERE id = ?`, id,
			); err != nil {
				return fmt.Errorf("sqlite: soft-deleting item %s: %w", id, err)
			}
			res.Deleted++
		}
		return nil
	})
	if err != nil {
		return model.ReconcileResult{}, err
	}
	return res, nil
}

func insertItem(ctx context.Context, tx *sql.Tx, wishlistID string, it model.Item, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wishlist_items (id, wishlist_id, name, description, price, currency, photo_url, url, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		xid.New().String(), wishlistID, it.Name, it.Description, it.Price, it.Currency, it.PhotoURL, it.URL, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting item %q: %w", it.Name, err)
	}
	return nil
}

// ClaimItem is a compare-and-set: the claimant is written only while the
// item is live and unclaimed. Two racing claimers cannot both win.
func (db *DB) ClaimItem(ctx context.Context, itemID, userID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE wishlist_items SET checked_off_by = ?
		 WHERE id = ? AND deleted = 0 AND checked_off_by IS NULL`,
		userID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: claiming item %s: %w", itemID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseItem clears the claim only for the current claimant.
func (db *DB) ReleaseItem(ctx context.Context, itemID, userID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE wishlist_items SET checked_off_by = NULL WHERE id = ? AND checked_off_by = ?`,
		itemID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: releasing item %s: %w", itemID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]model.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items: %w", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		var it model.Item
		if err := scanItem(rows, &it); err != nil {
			return nil, fmt.Errorf("sqlite: scanning item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}
	return items, nil
}
