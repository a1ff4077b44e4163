package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/gifteo/internal/apperror"
	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/repository"
	"github.com/sakif/gifteo/internal/sanitize"
)

const (
	maxDisplayName  = 80
	maxBio          = 500
	maxInterests    = 20
	maxInterestLen  = 40
	minSearchLength = 2
	searchLimit     = 20
)

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// ProfileService reads and edits profiles and interests, and keeps the
// automatic birthday events of connected users in step with birthdates.
type ProfileService struct {
	profiles    repository.ProfileRepository
	users       repository.UserRepository
	connections repository.ConnectionRepository
	events      repository.CalendarRepository
	now         Clock
	logger      *slog.Logger
}

func NewProfileService(
	profiles repository.ProfileRepository,
	users repository.UserRepository,
	connections repository.ConnectionRepository,
	events repository.CalendarRepository,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		profiles:    profiles,
		users:       users,
		connections: connections,
		events:      events,
		now:         time.Now,
		logger:      logger,
	}
}

// ProfileView is a profile as one viewer may see it.
type ProfileView struct {
	model.Profile
	Interests []string `json:"interests"`
	// Connected is true when the viewer holds an accepted link to the profile.
	Connected bool `json:"connected"`
	IsSelf    bool `json:"isSelf"`
}

// GetProfile returns a profile. The birthdate is only shown to the owner
// and to connected users.
func (s *ProfileService) GetProfile(ctx context.Context, viewerID, profileID string) (*ProfileView, error) {
	p, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return s.view(ctx, viewerID, p)
}

// GetOwnProfile is GetProfile for the caller's own profile.
func (s *ProfileService) GetOwnProfile(ctx context.Context, userID string) (*ProfileView, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return s.view(ctx, userID, p)
}

func (s *ProfileService) view(ctx context.Context, viewerID string, p *model.Profile) (*ProfileView, error) {
	v := &ProfileView{Profile: *p, IsSelf: p.UserID == viewerID}

	if !v.IsSelf {
		connected, err := s.connections.IsConnected(ctx, viewerID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("service/profile: %w", err)
		}
		v.Connected = connected
		if !connected {
			v.Birthdate = nil
		}
	}

	interests, err := s.profiles.ListInterests(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	v.Interests = interests
	return v, nil
}

// ProfileUpdate carries the editable profile fields. A nil Birthdate
// clears it; an empty CountryCode leaves the user's country unchanged.
type ProfileUpdate struct {
	DisplayName string
	AvatarURL   string
	Bio         string
	Birthdate   *model.Date
	CountryCode string
}

// UpdateProfile edits the caller's profile.
//
// A changed birthdate regenerates the automatic birthday event on every
// connected user's calendar. That regeneration is one repository call
// (one transaction), so no watcher is ever left with a stale and a fresh
// event at the same time. It runs after the profile is saved and a failure
// is only logged; the next profile save regenerates again.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*ProfileView, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}

	name := sanitize.Text(in.DisplayName)
	if err := requireLength("displayName", name, 1, maxDisplayName); err != nil {
		return nil, err
	}
	bio := sanitize.Text(in.Bio)
	if err := requireLength("bio", bio, 0, maxBio); err != nil {
		return nil, err
	}
	avatar := ""
	if strings.TrimSpace(in.AvatarURL) != "" {
		if avatar = sanitize.URL(in.AvatarURL); avatar == "" {
			return nil, apperror.ValidationFailed("avatarUrl", "avatarUrl must be an http(s) URL")
		}
	}

	today := model.DateOf(s.now())
	if in.Birthdate != nil && today.Before(*in.Birthdate) {
		return nil, apperror.ValidationFailed("birthdate", "birthdate cannot be in the future")
	}

	country := strings.ToUpper(strings.TrimSpace(in.CountryCode))
	if country != "" && !countryCodePattern.MatchString(country) {
		return nil, apperror.ValidationFailed("countryCode", "countryCode must be an ISO 3166-1 alpha-2 code")
	}

	birthdateChanged := !sameDate(p.Birthdate, in.Birthdate)
	nameChanged := p.DisplayName != name

	p.DisplayName = name
	p.AvatarURL = avatar
	p.Bio = bio
	p.Birthdate = in.Birthdate
	if err := s.profiles.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}

	if country != "" {
		if err := s.users.UpdateCountry(ctx, userID, country); err != nil {
			return nil, fmt.Errorf("service/profile: %w", err)
		}
	}

	if birthdateChanged || (nameChanged && p.Birthdate != nil) {
		bestEffort(ctx, s.logger, "birthday events on profile update", func(ctx context.Context) error {
			return s.regenerateBirthdays(ctx, p, today)
		})
	}

	s.logger.Info("profile updated", slog.String("profileID", p.ID), slog.Bool("birthdateChanged", birthdateChanged))
	return s.view(ctx, userID, p)
}

// regenerateBirthdays rewrites every watcher's automatic event about p.
// A cleared birthdate leaves no events behind.
func (s *ProfileService) regenerateBirthdays(ctx context.Context, p *model.Profile, today model.Date) error {
	var events []model.CalendarEvent
	if p.Birthdate != nil {
		watchers, err := s.connections.ListConnectedUserIDs(ctx, p.PersonID)
		if err != nil {
			return fmt.Errorf("service/profile: %w", err)
		}
		events = make([]model.CalendarEvent, 0, len(watchers))
		for _, w := range watchers {
			events = append(events, birthdayEvent(w, p, today))
		}
	}

	if err := s.events.ReplaceBirthdayEvents(ctx, p.ID, events); err != nil {
		return fmt.Errorf("service/profile: regenerating birthday events: %w", err)
	}
	return nil
}

func sameDate(a, b *model.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *ProfileService) ListInterests(ctx context.Context, userID string) ([]string, error) {
	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	interests, err := s.profiles.ListInterests(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return interests, nil
}

// ReplaceInterests swaps the caller's interest tags for a new set.
// Tags are sanitized, lower-cased and de-duplicated.
func (s *ProfileService) ReplaceInterests(ctx context.Context, userID string, interests []string) ([]string, error) {
	clean := sanitize.Texts(interests)
	seen := make(map[string]bool, len(clean))
	tags := make([]string, 0, len(clean))
	for _, tag := range clean {
		tag = strings.ToLower(tag)
		if utf8.RuneCountInString(tag) > maxInterestLen {
			return nil, apperror.ValidationFailed("interests",
				fmt.Sprintf("interests must be at most %d characters", maxInterestLen))
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	if len(tags) > maxInterests {
		return nil, apperror.ValidationFailed("interests", fmt.Sprintf("at most %d interests", maxInterests))
	}

	p, err := s.profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	if err := s.profiles.ReplaceInterests(ctx, p.ID, tags); err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return s.profiles.ListInterests(ctx, p.ID)
}

// SearchPersons finds profiles to invite by display name or email.
// Birthdates are never part of search results.
func (s *ProfileService) SearchPersons(ctx context.Context, userID, query string) ([]model.Profile, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minSearchLength {
		return nil, apperror.ValidationFailed("q", fmt.Sprintf("query must be at least %d characters", minSearchLength))
	}

	profiles, err := s.profiles.SearchProfiles(ctx, query, userID, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	for i := range profiles {
		profiles[i].Birthdate = nil
	}
	return profiles, nil
}
