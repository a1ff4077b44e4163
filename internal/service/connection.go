package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
)

// ConnectionService manages the social graph: invitations, accepted links
// and their removal.
//
// A link is stored as two directed edges (see model.Connection). Only the
// repository touches both at once, inside a transaction.
type ConnectionService struct {
	connections repository.ConnectionRepository
	profiles    repository.ProfileRepository
	events      repository.CalendarRepository
	now         Clock
	logger      *slog.Logger
}

func NewConnectionService(
	connections repository.ConnectionRepository,
	profiles repository.ProfileRepository,
	events repository.CalendarRepository,
	logger *slog.Logger,
) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		profiles:    profiles,
		events:      events,
		now:         time.Now,
		logger:      logger,
	}
}

// Invite creates a pending edge from the caller to targetPersonID.
//
// Any existing edge between the two users, in either direction and in
// any state, makes this a conflict with code already_linked.
func (s *ConnectionService) Invite(ctx context.Context, userID, targetPersonID string) (*model.Connection, error) {
	me, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}
	if targetPersonID == me.PersonID {
		return nil, apperror.ValidationFailed("personId", "you cannot invite yourself")
	}

	target, err := s.profiles.GetProfileByPersonID(ctx, targetPersonID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	_, err = s.connections.FindLink(ctx, userID, me.PersonID, target.UserID, target.PersonID)
	switch {
	case err == nil:
		return nil, apperror.Conflict(apperror.CodeAlreadyLinked, "already linked to this person")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	c := &model.Connection{UserID: userID, PersonID: target.PersonID}
	if err := s.connections.CreateInvitation(ctx, c); err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	s.logger.Info("invitation sent",
		slog.String("id", c.ID),
		slog.String("from", userID),
		slog.String("to", target.UserID),
	)
	return c, nil
}

// Accept turns a pending invitation addressed to the caller into a link.
//
// After the link commits, each side gets an automatic birthday event about
// the other (when a birthdate is set). Those are best-effort: a failure is
// logged and the next birthdate edit regenerates them.
func (s *ConnectionService) Accept(ctx context.Context, userID, invitationID string) (*model.Contact, error) {
	inv, me, err := s.invitationFor(ctx, userID, invitationID)
	if err != nil {
		return nil, err
	}

	inviter, err := s.profiles.GetProfileByUserID(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	if err := s.connections.AcceptInvitation(ctx, inv.ID, userID, inviter.PersonID); err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	s.logger.Info("invitation accepted", slog.String("id", inv.ID), slog.String("userID", userID))

	today := model.DateOf(s.now())
	bestEffort(ctx, s.logger, "birthday events on accept", func(ctx context.Context) error {
		return errors.Join(
			s.ensureBirthday(ctx, userID, inviter, today),
			s.ensureBirthday(ctx, inv.UserID, me, today),
		)
	})

	return &model.Contact{ConnectionID: inv.ID, Status: model.StatusAccepted, Profile: *inviter}, nil
}

func (s *ConnectionService) ensureBirthday(ctx context.Context, watcherID string, p *model.Profile, today model.Date) error {
	if p.Birthdate == nil {
		return nil
	}
	e := birthdayEvent(watcherID, p, today)
	return s.events.EnsureBirthdayEvent(ctx, &e)
}

// Reject deletes a pending invitation. Only the invitee may reject.
func (s *ConnectionService) Reject(ctx context.Context, userID, invitationID string) error {
	inv, _, err := s.invitationFor(ctx, userID, invitationID)
	if err != nil {
		return err
	}
	if err := s.connections.DeletePending(ctx, inv.ID); err != nil {
		return fmt.Errorf("service/connection: %w", err)
	}
	s.logger.Info("invitation rejected", slog.String("id", inv.ID), slog.String("userID", userID))
	return nil
}

// invitationFor loads an invitation the caller received. Invitations
// addressed to someone else are reported as not found.
func (s *ConnectionService) invitationFor(ctx context.Context, userID, invitationID string) (*model.Connection, *model.Profile, error) {
	inv, err := s.connections.GetConnection(ctx, invitationID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/connection: %w", err)
	}
	me, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("service/connection: %w", err)
	}
	if inv.PersonID != me.PersonID {
		return nil, nil, apperror.NotFound("invitation", invitationID)
	}
	if inv.Status != model.StatusPending {
		return nil, nil, apperror.Conflict(apperror.CodeInvitationHandled, "invitation is no longer pending")
	}
	return inv, me, nil
}

// Remove deletes the link between the caller and otherPersonID, both
// directions, along with the automatic events each side kept about the
// other.
func (s *ConnectionService) Remove(ctx context.Context, userID, otherPersonID string) error {
	me, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/connection: %w", err)
	}
	other, err := s.profiles.GetProfileByPersonID(ctx, otherPersonID)
	if err != nil {
		return fmt.Errorf("service/connection: %w", err)
	}

	if err := s.connections.RemoveLink(ctx, userID, me.PersonID, other.UserID, other.PersonID); err != nil {
		return fmt.Errorf("service/connection: %w", err)
	}

	s.logger.Info("connection removed", slog.String("userID", userID), slog.String("otherUserID", other.UserID))
	return nil
}

func (s *ConnectionService) ListContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	contacts, err := s.connections.ListContacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}
	return contacts, nil
}

// Invitations groups the caller's pending invitations.
type Invitations struct {
	Incoming []model.Contact `json:"incoming"`
	Outgoing []model.Contact `json:"outgoing"`
}

// ListInvitations returns pending invitations in both directions. The
// other side is not connected yet, so birthdates are withheld.
func (s *ConnectionService) ListInvitations(ctx context.Context, userID string) (*Invitations, error) {
	me, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	incoming, err := s.connections.ListIncoming(ctx, me.PersonID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}
	outgoing, err := s.connections.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/connection: %w", err)
	}

	for _, list := range [][]model.Contact{incoming, outgoing} {
		for i := range list {
			list[i].Profile.Birthdate = nil
		}
	}
	return &Invitations{Incoming: incoming, Outgoing: outgoing}, nil
}
