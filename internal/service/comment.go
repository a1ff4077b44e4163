package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/gifteo/internal/access"
	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
	"github.com/sakif/gifteo/internal/sanitize"
)

const maxCommentLength = 1000

// CommentService handles the append-only discussion on a wishlist. Anyone
// who can see the list can read and add comments.
type CommentService struct {
	comments  repository.CommentRepository
	wishlists repository.WishlistRepository
	checker   *access.Checker
	logger    *slog.Logger
}

func NewCommentService(comments repository.CommentRepository, wishlists repository.WishlistRepository, logger *slog.Logger) *CommentService {
	return &CommentService{
		comments:  comments,
		wishlists: wishlists,
		checker:   access.NewChecker(wishlists),
		logger:    logger,
	}
}

func (s *CommentService) List(ctx context.Context, userID, wishlistID string) ([]model.Comment, error) {
	if err := s.checker.Require(ctx, userID, wishlistID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListComments(ctx, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: %w", err)
	}
	return comments, nil
}

// Add appends a comment. A deleted list is read-only even for claimants.
func (s *CommentService) Add(ctx context.Context, userID, wishlistID, text string) (*model.Comment, error) {
	if err := s.checker.Require(ctx, userID, wishlistID); err != nil {
		return nil, err
	}

	text = sanitize.Text(text)
	if err := requireLength("text", text, 1, maxCommentLength); err != nil {
		return nil, err
	}

	w, err := s.wishlists.GetWishlist(ctx, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("service/comment: %w", err)
	}
	if w.Deleted {
		return nil, apperror.NotFound("wishlist", wishlistID)
	}

	c := &model.Comment{WishlistID: wishlistID, UserID: userID, Text: text}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("service/comment: %w", err)
	}

	s.logger.Info("comment added", slog.String("wishlistID", wishlistID), slog.String("userID", userID))
	return c, nil
}
