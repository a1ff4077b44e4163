// Package repository declares the storage contracts the service layer
// depends on. The sqlite sub-package is the only production implementation.
//
// Multi-statement mutations (accepting an invitation, replacing shares,
// reconciling items, soft-deleting a wishlist, regenerating birthday events)
// are single repository calls so the implementation can run them inside one
// transaction.
package repository

import (
	"context"
	"time"

	"github.com/sakif/gifteo/internal/model"
)

type UserRepository interface {
	// CreateFromIdentity inserts user, profile and person for a first login,
	// or returns the existing user for a known subject.
	CreateFromIdentity(ctx context.Context, id model.Identity, country string) (*model.User, bool, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateCountry(ctx context.Context, userID, country string) error
	ListUsersByCountry(ctx context.Context, country string) ([]model.User, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	// GetActiveSession returns ErrNotFound for unknown or expired tokens.
	GetActiveSession(ctx context.Context, tokenHash string, now time.Time) (*model.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*model.Profile, error)
	GetProfileByPersonID(ctx context.Context, personID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, p *model.Profile) error
	SearchProfiles(ctx context.Context, query, excludeUserID string, limit int) ([]model.Profile, error)
	ListInterests(ctx context.Context, profileID string) ([]string, error)
	ReplaceInterests(ctx context.Context, profileID string, interests []string) error
}

type ConnectionRepository interface {
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
	// FindLink returns any edge between the two users in either direction.
	FindLink(ctx context.Context, userA, personA, userB, personB string) (*model.Connection, error)
	CreateInvitation(ctx context.Context, c *model.Connection) error
	// AcceptInvitation flips the edge and upserts the accepted mirror edge.
	AcceptInvitation(ctx context.Context, invitationID, acceptingUserID, inviterPersonID string) error
	DeletePending(ctx context.Context, invitationID string) error
	// RemoveLink deletes both directions and the auto events each side
	// keeps about the other.
	RemoveLink(ctx context.Context, userID, personID, otherUserID, otherPersonID string) error
	ListContacts(ctx context.Context, userID string) ([]model.Contact, error)
	ListIncoming(ctx context.Context, personID string) ([]model.Contact, error)
	ListOutgoing(ctx context.Context, userID string) ([]model.Contact, error)
	IsConnected(ctx context.Context, userID, otherUserID string) (bool, error)
	// ListConnectedUserIDs returns users holding an accepted edge to personID.
	ListConnectedUserIDs(ctx context.Context, personID string) ([]string, error)
}

// AccessFacts are the relational facts the visibility decision needs.
type AccessFacts struct {
	Exists        bool
	Deleted       bool
	IsOwner       bool
	Connected     bool
	SharedWithAll bool
	ExplicitShare bool
	HasClaim      bool
}

type WishlistRepository interface {
	CreateWishlist(ctx context.Context, w *model.Wishlist, shareWith []string) error
	GetWishlist(ctx context.Context, id string) (*model.Wishlist, error)
	RenameWishlist(ctx context.Context, id, name string) error
	// SoftDeleteWishlist marks the wishlist and all its items deleted.
	SoftDeleteWishlist(ctx context.Context, id string) error
	AccessFacts(ctx context.Context, wishlistID, userID string) (AccessFacts, error)
	ListByCreator(ctx context.Context, userID string) ([]model.Wishlist, error)
	ListVisibleForProfile(ctx context.Context, viewerID, profileID string) ([]model.Wishlist, error)
	ListSharedWith(ctx context.Context, viewerID string) ([]model.Wishlist, error)
	// ReplaceShares deletes every explicit share and inserts the new set.
	ReplaceShares(ctx context.Context, wishlistID string, sharedWithAll bool, userIDs []string) error
	ListShares(ctx context.Context, wishlistID string) ([]string, error)
	RecordView(ctx context.Context, wishlistID, userID string, at time.Time) (previous *time.Time, err error)
}

type ItemRepository interface {
	// ListItems returns live items plus deleted-but-claimed ones.
	ListItems(ctx context.Context, wishlistID string) ([]model.Item, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ReconcileItems(ctx context.Context, wishlistID string, desired []model.Item, now time.Time) (model.ReconcileResult, error)
	// ClaimItem sets the claimant only if the item is live and unclaimed.
	ClaimItem(ctx context.Context, itemID, userID string) (bool, error)
	// ReleaseItem clears the claimant only if it equals userID.
	ReleaseItem(ctx context.Context, itemID, userID string) (bool, error)
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	ListComments(ctx context.Context, wishlistID string) ([]model.Comment, error)
}

// DueNotification is one reminder the personal job should send today.
type DueNotification struct {
	Event       model.CalendarEvent
	DaysBefore  int
	UserEmail   string
	ProfileName string
}

type CalendarRepository interface {
	CreateEvent(ctx context.Context, e *model.CalendarEvent) error
	GetEvent(ctx context.Context, id string) (*model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, e *model.CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, userID string) ([]model.CalendarEvent, error)

	// ReplaceBirthdayEvents removes every automatic birthday event about the
	// profile and creates one per watcher, in one transaction.
	ReplaceBirthdayEvents(ctx context.Context, profileID string, events []model.CalendarEvent) error
	// EnsureBirthdayEvent creates the watcher's event unless one exists.
	EnsureBirthdayEvent(ctx context.Context, e *model.CalendarEvent) error

	ListDueNotifications(ctx context.Context, today model.Date) ([]DueNotification, error)
	MarkNotified(ctx context.Context, eventID string, at time.Time) error
	RollForwardBirthdays(ctx context.Context, today model.Date) (int, error)

	UpsertGlobalEvents(ctx context.Context, events []model.GlobalEvent) error
	ListGlobalEvents(ctx context.Context, country string) ([]model.GlobalEvent, error)

	// ClaimDelivery records that key was delivered to userID on day.
	// It returns false when the delivery was already recorded.
	ClaimDelivery(ctx context.Context, key, userID string, day model.Date) (bool, error)
	ReleaseDelivery(ctx context.Context, key, userID string, day model.Date) error
}
