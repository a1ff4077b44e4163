package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gifteo/internal/model"
	"github.com/sakif/gifteo/internal/service"
)

// ProfileHandler serves profiles, interests and person search.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HandleGet returns any profile; the birthdate only for self or connections.
//
// HTTP: GET /api/profile/{id}
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetProfile(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"profile": p})
}

type profileRequest struct {
	DisplayName string      `json:"displayName" validate:"required"`
	AvatarURL   string      `json:"avatarUrl"   validate:"max=2048"`
	Bio         string      `json:"bio"`
	Birthdate   *model.Date `json:"birthdate"`
	CountryCode string      `json:"countryCode" validate:"omitempty,len=2,alpha"`
}

// HandleUpdate replaces the caller's editable profile fields.
//
// HTTP: PUT /api/profile
// REQUEST BODY: {"displayName": "...", "bio": "...", "birthdate": "1990-05-01", "countryCode": "CZ"}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.profiles.UpdateProfile(r.Context(), currentUser(r), service.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
		Birthdate:   req.Birthdate,
		CountryCode: req.CountryCode,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"profile": p})
}

// HandleListInterests returns the caller's interest tags.
//
// HTTP: GET /api/profile/interests
func (h *ProfileHandler) HandleListInterests(w http.ResponseWriter, r *http.Request) {
	tags, err := h.profiles.ListInterests(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"interests": tags})
}

type interestsRequest struct {
	Interests []string `json:"interests"`
}

// HandleReplaceInterests replaces the caller's interest tags wholesale.
//
// HTTP: PUT /api/profile/interests
// REQUEST BODY: {"interests": ["hiking", "coffee"]}
func (h *ProfileHandler) HandleReplaceInterests(w http.ResponseWriter, r *http.Request) {
	var req interestsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tags, err := h.profiles.ReplaceInterests(r.Context(), currentUser(r), req.Interests)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"interests": tags})
}

// HandleSearch finds people to invite.
//
// HTTP: GET /api/persons?q=ana
func (h *ProfileHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.profiles.SearchPersons(r.Context(), currentUser(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"persons": results})
}
