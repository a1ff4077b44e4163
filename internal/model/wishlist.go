package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wishlist is a named list of gift ideas.
//
// ProfileID is the profile being gifted to. It is nil for custom lists,
// which are free-form idea lists not tied to anyone. CreatedBy is the user
// whose sharing settings govern visibility; that is not necessarily the
// profile's owner (a user may keep a list for a connected friend).
//
// Wishlists are soft-deleted only, so items someone already claimed stay
// auditable to the claimant.
type Wishlist struct {
	ID                       string    `json:"id"                       db:"id"`
	ProfileID                *string   `json:"profileId"                db:"profile_id"`
	CreatedBy                string    `json:"createdBy"                db:"created_by"`
	Name                     string    `json:"name"                     db:"name"`
	IsCustom                 bool      `json:"isCustom"                 db:"is_custom"`
	SharedWithAllConnections bool      `json:"sharedWithAllConnections" db:"shared_with_all"`
	Deleted                  bool      `json:"deleted"                  db:"deleted"`
	CreatedAt                time.Time `json:"createdAt"                db:"created_at"`
}

// Item is one entry on a wishlist.
//
// CheckedOffBy is the single claimant, nil when unclaimed. ModifiedAt is set
// only when the wishlist creator changes the item after creation; viewers
// use it as a change notice.
type Item struct {
	ID           string              `json:"id"                   db:"id"`
	WishlistID   string              `json:"wishlistId"           db:"wishlist_id"`
	Name         string              `json:"name"                 db:"name"`
	Description  string              `json:"description"          db:"description"`
	Price        decimal.NullDecimal `json:"price"                db:"price"`
	Currency     string              `json:"currency"             db:"currency"`
	PhotoURL     string              `json:"photoUrl"             db:"photo_url"`
	URL          string              `json:"url"                  db:"url"`
	Deleted      bool                `json:"deleted"              db:"deleted"`
	CheckedOffBy *string             `json:"checkedOffBy"         db:"checked_off_by"`
	ModifiedAt   *time.Time          `json:"modifiedAt,omitempty" db:"modified_at"`
	CreatedAt    time.Time           `json:"createdAt"            db:"created_at"`

	// ChangedSinceLastView is computed per viewer, never stored.
	ChangedSinceLastView bool `json:"changedSinceLastView" db:"-"`
}

// SameContent reports whether two items carry identical user-editable
// fields. Reconciliation uses it to skip writes for unchanged items.
func (i Item) SameContent(other Item) bool {
	if i.Price.Valid != other.Price.Valid {
		return false
	}
	if i.Price.Valid && !i.Price.Decimal.Equal(other.Price.Decimal) {
		return false
	}
	return i.Name == other.Name &&
		i.Description == other.Description &&
		i.Currency == other.Currency &&
		i.PhotoURL == other.PhotoURL &&
		i.URL == other.URL
}

// ReconcileResult counts what a replace-items pass did.
type ReconcileResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// WishlistDetail is a wishlist as one viewer sees it.
type WishlistDetail struct {
	Wishlist
	Items []Item `json:"items"`
	// SharedWith is only populated for the creator.
	SharedWith []string `json:"sharedWith,omitempty"`
}

// Comment is an append-only note on a wishlist.
type Comment struct {
	ID         string    `json:"id"         db:"id"`
	WishlistID string    `json:"wishlistId" db:"wishlist_id"`
	UserID     string    `json:"userId"     db:"user_id"`
	AuthorName string    `json:"authorName" db:"-"`
	Text       string    `json:"text"       db:"text"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
