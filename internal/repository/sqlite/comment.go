package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

var _ repository.CommentRepository = (*DB)(nil)

// CreateComment appends a comment. Comments are never edited or deleted.
func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	c.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, wishlist_id, user_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.WishlistID, c.UserID, c.Text, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating comment on %s: %w", c.WishlistID, err)
	}
	return nil
}

// ListComments returns the thread oldest first, with author display names.
func (db *DB) ListComments(ctx context.Context, wishlistID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.wishlist_id, c.user_id, COALESCE(pr.display_name, ''), c.text, c.created_at
		 FROM comments c
		 LEFT JOIN profiles pr ON pr.user_id = c.user_id
		 WHERE c.wishlist_id = ?
		 ORDER BY c.created_at, c.id`,
		wishlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.WishlistID, &c.UserID, &c.AuthorName, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}
