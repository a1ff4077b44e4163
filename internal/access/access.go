// Package access decides whether a user may see a wishlist.
//
// The decision is a pure function over relational facts, so every rule can
// be tested without a database. The store gathers the facts in one query
// (repository.WishlistRepository.AccessFacts) and list queries apply the
// same rules in SQL.
package access

import (
	"context"
	"fmt"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/repository"
)

// Outcome is the verdict of a single decision.
type Outcome int

const (
	Allow Outcome = iota
	Deny
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision carries the outcome and, for denials, a reason the client may see.
type Decision struct {
	Outcome Outcome
	Reason  string
}

const (
	ReasonNotConnected = "not connected to owner"
	ReasonNotShared    = "not shared with this user"
)

// Decide applies the rules in order; the first that matches wins.
//
//  1. the wishlist must exist
//  2. a deleted wishlist exists only for users holding a claim on it
//  3. the creator always has access
//  4. everybody else must be connected to the creator
//  5. a list shared with all connections is then visible
//  6. otherwise the user needs an explicit share
func Decide(f repository.AccessFacts) Decision {
	switch {
	case !f.Exists:
		return Decision{Outcome: NotFound}
	case f.Deleted && !f.HasClaim:
		return Decision{Outcome: NotFound}
	case f.IsOwner:
		return Decision{Outcome: Allow}
	case !f.Connected:
		return Decision{Outcome: Deny, Reason: ReasonNotConnected}
	case f.SharedWithAll:
		return Decision{Outcome: Allow}
	case f.ExplicitShare:
		return Decision{Outcome: Allow}
	default:
		return Decision{Outcome: Deny, Reason: ReasonNotShared}
	}
}

// Err converts a decision into the error the service layer returns.
// Allow yields nil.
func (d Decision) Err(wishlistID string) error {
	switch d.Outcome {
	case Allow:
		return nil
	case NotFound:
		return apperror.NotFound("wishlist", wishlistID)
	default:
		return apperror.Forbidden(d.Reason)
	}
}

// FactSource is the part of the wishlist store the checker needs.
type FactSource interface {
	AccessFacts(ctx context.Context, wishlistID, userID string) (repository.AccessFacts, error)
}

// Checker evaluates the decision against live data.
type Checker struct {
	facts FactSource
}

func NewChecker(facts FactSource) *Checker {
	return &Checker{facts: facts}
}

// Check returns the decision for userID on wishlistID.
func (c *Checker) Check(ctx context.Context, userID, wishlistID string) (Decision, error) {
	f, err := c.facts.AccessFacts(ctx, wishlistID, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("access: loading facts: %w", err)
	}
	return Decide(f), nil
}

// Require is Check folded into a single error: nil means allowed.
func (c *Checker) Require(ctx context.Context, userID, wishlistID string) error {
	d, err := c.Check(ctx, userID, wishlistID)
	if err != nil {
		return err
	}
	return d.Err(wishlistID)
}
