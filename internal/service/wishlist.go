package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakif/gifteo/internal/access"
	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/metrics"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
	"github.com/sakif/gifteo/internal/sanitize"
)

const (
	maxWishlistName    = 100
	maxItemName        = 200
	maxItemDescription = 2000
	maxItemsPerList    = 500
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// maxPrice keeps prices inside what the TEXT column round-trips exactly.
var maxPrice = decimal.New(1, 12)

// WishlistService owns wishlists, their items and claims.
//
// VISIBILITY:
// Every read or edit of wishlist content first asks access.Checker. The
// checker's NotFound/Deny verdicts become apperror values, so a handler
// never needs to know why a user cannot see a list. Sharing settings,
// renaming and deletion additionally require the caller to be the creator.
type WishlistService struct {
	wishlists   repository.WishlistRepository
	items       repository.ItemRepository
	profiles    repository.ProfileRepository
	connections repository.ConnectionRepository
	checker     *access.Checker
	metrics     *metrics.Metrics
	now         Clock
	logger      *slog.Logger
}

func NewWishlistService(
	wishlists repository.WishlistRepository,
	items repository.ItemRepository,
	profiles repository.ProfileRepository,
	connections repository.ConnectionRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WishlistService {
	return &WishlistService{
		wishlists:   wishlists,
		items:       items,
		profiles:    profiles,
		connections: connections,
		checker:     access.NewChecker(wishlists),
		metrics:     m,
		now:         time.Now,
		logger:      logger,
	}
}

// CreateWishlistInput describes a new wishlist.
//
// ProfileID nil with IsCustom false means "for my own profile".
type CreateWishlistInput struct {
	Name          string
	ProfileID     *string
	IsCustom      bool
	SharedWithAll bool
	ShareWith     []string
}

func (s *WishlistService) Create(ctx context.Context, userID string, in CreateWishlistInput) (*model.Wishlist, error) {
	name := sanitize.Text(in.Name)
	if err := requireLength("name", name, 1, maxWishlistName); err != nil {
		return nil, err
	}

	w := &model.Wishlist{
		CreatedBy:                userID,
		Name:                     name,
		IsCustom:                 in.IsCustom,
		SharedWithAllConnections: in.SharedWithAll,
	}

	if !in.IsCustom {
		profileID, err := s.subjectProfile(ctx, userID, in.ProfileID)
		if err != nil {
			return nil, err
		}
		w.ProfileID = &profileID
	}

	shares, err := s.validateShares(ctx, userID, in.SharedWithAll, in.ShareWith)
	if err != nil {
		return nil, err
	}

	if err := s.wishlists.CreateWishlist(ctx, w, shares); err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}

	s.logger.Info("wishlist created",
		slog.String("id", w.ID),
		slog.String("createdBy", userID),
		slog.Bool("custom", w.IsCustom),
	)
	return w, nil
}

// subjectProfile resolves which profile a new list is for. A list for
// somebody else's profile requires an accepted link to them.
func (s *WishlistService) subjectProfile(ctx context.Context, userID string, profileID *string) (string, error) {
	if profileID == nil || *profileID == "" {
		own, err := s.profiles.GetProfileByUserID(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("service/wishlist: %w", err)
		}
		return own.ID, nil
	}

	p, err := s.profiles.GetProfile(ctx, *profileID)
	if err != nil {
		return "", fmt.Errorf("service/wishlist: %w", err)
	}
	if p.UserID == userID {
		return p.ID, nil
	}

	connected, err := s.connections.IsConnected(ctx, userID, p.UserID)
	if err != nil {
		return "", fmt.Errorf("service/wishlist: %w", err)
	}
	if !connected {
		return "", apperror.Forbidden("you can only create wishlists for connected people")
	}
	return p.ID, nil
}

// validateShares de-duplicates explicit recipients and checks that every
// one of them is connected to the creator. With sharedWithAll the explicit
// list is irrelevant and dropped.
func (s *WishlistService) validateShares(ctx context.Context, userID string, sharedWithAll bool, userIDs []string) ([]string, error) {
	if sharedWithAll {
		return nil, nil
	}

	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || id == userID || slices.Contains(out, id) {
			continue
		}
		connected, err := s.connections.IsConnected(ctx, userID, id)
		if err != nil {
			return nil, fmt.Errorf("service/wishlist: %w", err)
		}
		if !connected {
			return nil, apperror.ValidationFailed("shareWith", "wishlists can only be shared with connected users")
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *WishlistService) ListMine(ctx context.Context, userID string) ([]model.Wishlist, error) {
	lists, err := s.wishlists.ListByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	return lists, nil
}

// ListForProfile returns the lists about profileID that the viewer may see.
func (s *WishlistService) ListForProfile(ctx context.Context, viewerID, profileID string) ([]model.Wishlist, error) {
	if _, err := s.profiles.GetProfile(ctx, profileID); err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	lists, err := s.wishlists.ListVisibleForProfile(ctx, viewerID, profileID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	return lists, nil
}

// ListSharedWithMe returns other users' lists visible to the viewer.
func (s *WishlistService) ListSharedWithMe(ctx context.Context, viewerID string) ([]model.Wishlist, error) {
	lists, err := s.wishlists.ListSharedWith(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	return lists, nil
}

// Get returns a wishlist as viewerID sees it.
//
// Three per-viewer adjustments happen here:
//   - viewers other than the creator get changedSinceLastView flags, and
//     the visit is recorded
//   - the person the list is for sees no claim markers and no deleted items
//   - only the creator sees the explicit share list
func (s *WishlistService) Get(ctx context.Context, viewerID, wishlistID string) (*model.WishlistDetail, error) {
	if err := s.checker.Require(ctx, viewerID, wishlistID); err != nil {
		return nil, err
	}

	w, err := s.wishlists.GetWishlist(ctx, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	items, err := s.items.ListItems(ctx, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}

	isCreator := w.CreatedBy == viewerID
	if !isCreator {
		previous, err := s.wishlists.RecordView(ctx, wishlistID, viewerID, s.now())
		if err != nil {
			return nil, fmt.Errorf("service/wishlist: %w", err)
		}
		for i := range items {
			items[i].ChangedSinceLastView = previous != nil &&
				items[i].ModifiedAt != nil && items[i].ModifiedAt.After(*previous)
		}
	}

	isRecipient, err := s.isRecipient(ctx, w, viewerID)
	if err != nil {
		return nil, err
	}
	if isRecipient {
		items = slices.DeleteFunc(items, func(it model.Item) bool { return it.Deleted })
		for i := range items {
			items[i].CheckedOffBy = nil
		}
	}

	detail := &model.WishlistDetail{Wishlist: *w, Items: items}
	if isCreator && !w.SharedWithAllConnections {
		shares, err := s.wishlists.ListShares(ctx, wishlistID)
		if err != nil {
			return nil, fmt.Errorf("service/wishlist: %w", err)
		}
		detail.SharedWith = shares
	}
	return detail, nil
}

// isRecipient reports whether userID is the person the list is for.
func (s *WishlistService) isRecipient(ctx context.Context, w *model.Wishlist, userID string) (bool, error) {
	if w.ProfileID == nil {
		return false, nil
	}
	p, err := s.profiles.GetProfile(ctx, *w.ProfileID)
	if err != nil {
		return false, fmt.Errorf("service/wishlist: %w", err)
	}
	return p.UserID == userID, nil
}

// requireOwner gates creator-only operations. Users who cannot see the
// list at all get the same answer as for reads.
func (s *WishlistService) requireOwner(ctx context.Context, userID, wishlistID string) (*model.Wishlist, error) {
	if err := s.checker.Require(ctx, userID, wishlistID); err != nil {
		return nil, err
	}
	w, err := s.wishlists.GetWishlist(ctx, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	if w.Deleted {
		return nil, apperror.NotFound("wishlist", wishlistID)
	}
	if w.CreatedBy != userID {
		return nil, apperror.Forbidden("only the creator can change this wishlist")
	}
	return w, nil
}

func (s *WishlistService) Rename(ctx context.Context, userID, wishlistID, name string) (*model.Wishlist, error) {
	w, err := s.requireOwner(ctx, userID, wishlistID)
	if err != nil {
		return nil, err
	}
	name = sanitize.Text(name)
	if err := requireLength("name", name, 1, maxWishlistName); err != nil {
		return nil, err
	}
	if err := s.wishlists.RenameWishlist(ctx, wishlistID, name); err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	w.Name = name
	return w, nil
}

// Delete soft-deletes the list and all its items. Claims stay so the
// claimants keep seeing what they committed to.
func (s *WishlistService) Delete(ctx context.Context, userID, wishlistID string) error {
	if _, err := s.requireOwner(ctx, userID, wishlistID); err != nil {
		return err
	}
	if err := s.wishlists.SoftDeleteWishlist(ctx, wishlistID); err != nil {
		return fmt.Errorf("service/wishlist: %w", err)
	}
	s.logger.Info("wishlist deleted", slog.String("id", wishlistID), slog.String("userID", userID))
	return nil
}

// SetVisibility replaces the sharing settings in one transaction.
func (s *WishlistService) SetVisibility(ctx context.Context, userID, wishlistID string, sharedWithAll bool, userIDs []string) error {
	if _, err := s.requireOwner(ctx, userID, wishlistID); err != nil {
		return err
	}
	shares, err := s.validateShares(ctx, userID, sharedWithAll, userIDs)
	if err != nil {
		return err
	}
	if err := s.wishlists.ReplaceShares(ctx, wishlistID, sharedWithAll, shares); err != nil {
		return fmt.Errorf("service/wishlist: %w", err)
	}
	s.logger.Info("wishlist visibility changed",
		slog.String("id", wishlistID),
		slog.Bool("sharedWithAll", sharedWithAll),
		slog.Int("explicitShares", len(shares)),
	)
	return nil
}

// ItemInput is one entry of a replace-items request. An empty ID means a
// new item.
type ItemInput struct {
	ID          string
	Name        string
	Description string
	Price       decimal.NullDecimal
	Currency    string
	PhotoURL    string
	URL         string
}

// ReplaceItems reconciles the stored items with the desired list; see
// repository.ItemRepository.ReconcileItems.
func (s *WishlistService) ReplaceItems(ctx context.Context, userID, wishlistID string, in []ItemInput) (model.ReconcileResult, error) {
	if err := s.checker.Require(ctx, userID, wishlistID); err != nil {
		return model.ReconcileResult{}, err
	}
	w, err := s.wishlists.GetWishlist(ctx, wishlistID)
	if err != nil {
		return model.ReconcileResult{}, fmt.Errorf("service/wishlist: %w", err)
	}
	if w.Deleted {
		return model.ReconcileResult{}, apperror.NotFound("wishlist", wishlistID)
	}
	if len(in) > maxItemsPerList {
		return model.ReconcileResult{}, apperror.ValidationFailed("items",
			fmt.Sprintf("a wishlist holds at most %d items", maxItemsPerList))
	}

	desired := make([]model.Item, 0, len(in))
	for i, it := range in {
		item, err := cleanItem(i, it)
		if err != nil {
			return model.ReconcileResult{}, err
		}
		desired = append(desired, item)
	}

	result, err := s.items.ReconcileItems(ctx, wishlistID, desired, s.now())
	if err != nil {
		return model.ReconcileResult{}, fmt.Errorf("service/wishlist: %w", err)
	}

	s.logger.Info("wishlist items replaced",
		slog.String("id", wishlistID),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
	)
	return result, nil
}

func cleanItem(index int, in ItemInput) (model.Item, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }

	name := sanitize.Text(in.Name)
	if err := requireLength(field("name"), name, 1, maxItemName); err != nil {
		return model.Item{}, err
	}
	desc := sanitize.Text(in.Description)
	if err := requireLength(field("description"), desc, 0, maxItemDescription); err != nil {
		return model.Item{}, err
	}

	if in.Price.Valid && (in.Price.Decimal.IsNegative() || in.Price.Decimal.GreaterThanOrEqual(maxPrice)) {
		return model.Item{}, apperror.ValidationFailed(field("price"), "price must be a non-negative amount")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency != "" && !currencyPattern.MatchString(currency) {
		return model.Item{}, apperror.ValidationFailed(field("currency"), "currency must be an ISO 4217 code")
	}

	link := sanitize.URL(in.URL)
	if link == "" && strings.TrimSpace(in.URL) != "" {
		return model.Item{}, apperror.ValidationFailed(field("url"), "url must be an http(s) URL")
	}
	photo := sanitize.URL(in.PhotoURL)
	if photo == "" && strings.TrimSpace(in.PhotoURL) != "" {
		return model.Item{}, apperror.ValidationFailed(field("photoUrl"), "photoUrl must be an http(s) URL")
	}

	return model.Item{
		ID:          strings.TrimSpace(in.ID),
		Name:        name,
		Description: desc,
		Price:       in.Price,
		Currency:    currency,
		PhotoURL:    photo,
		URL:         link,
	}, nil
}

// ClaimResult reports who holds an item after a successful claim.
type ClaimResult struct {
	ItemID       string `json:"itemId"`
	ClaimedBy    string `json:"claimedBy"`
	ClaimantName string `json:"claimantName"`
}

// Claim marks an item as being bought by userID.
//
// The repository write is a compare-and-set, so two concurrent claims
// cannot both win. When the write loses, the item is re-read to tell the
// caller why: it was deleted, someone else holds it, or the caller
// already does (which counts as success).
func (s *WishlistService) Claim(ctx context.Context, userID, itemID string) (*ClaimResult, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	if err := s.checker.Require(ctx, userID, item.WishlistID); err != nil {
		s.recordClaim("denied")
		return nil, err
	}

	w, err := s.wishlists.GetWishlist(ctx, item.WishlistID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	recipient, err := s.isRecipient(ctx, w, userID)
	if err != nil {
		return nil, err
	}
	if recipient {
		s.recordClaim("denied")
		return nil, apperror.Forbidden("you cannot claim items on a wishlist for yourself")
	}

	won, err := s.items.ClaimItem(ctx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}
	if !won {
		current, err := s.items.GetItem(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("service/wishlist: %w", err)
		}
		switch {
		case current.CheckedOffBy != nil && *current.CheckedOffBy == userID:
			// Already ours; claiming twice is a no-op.
		case current.Deleted:
			s.recordClaim(apperror.CodeItemDeleted)
			return nil, apperror.Conflict(apperror.CodeItemDeleted, "item has been deleted")
		default:
			s.recordClaim(apperror.CodeItemAlreadyClaimed)
			return nil, apperror.Conflict(apperror.CodeItemAlreadyClaimed, "item is already claimed")
		}
	}

	claimant, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/wishlist: %w", err)
	}

	s.recordClaim("claimed")
	s.logger.Info("item claimed", slog.String("itemID", itemID), slog.String("userID", userID))
	return &ClaimResult{ItemID: itemID, ClaimedBy: userID, ClaimantName: claimant.DisplayName}, nil
}

// Release gives up a claim. Only the current claimant may release.
func (s *WishlistService) Release(ctx context.Context, userID, itemID string) error {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("service/wishlist: %w", err)
	}
	if err := s.checker.Require(ctx, userID, item.WishlistID); err != nil {
		return err
	}

	released, err := s.items.ReleaseItem(ctx, itemID, userID)
	if err != nil {
		return fmt.Errorf("service/wishlist: %w", err)
	}
	if !released {
		return apperror.Forbidden("only the claimant can release this item")
	}

	s.recordClaim("released")
	s.logger.Info("item released", slog.String("itemID", itemID), slog.String("userID", userID))
	return nil
}

func (s *WishlistService) recordClaim(outcome string) {
	if s.metrics != nil {
		s.metrics.Claims.WithLabelValues(outcome).Inc()
	}
}
