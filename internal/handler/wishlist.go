package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sakif/gifteo/internal/service"
)

// WishlistHandler serves wishlists, their items and item claims.
//
// Every method passes the caller's id down; the service decides what they
// may see. Missing lists answer 404, hidden ones 403.
type WishlistHandler struct {
	wishlists *service.WishlistService
	logger    *slog.Logger
}

func NewWishlistHandler(wishlists *service.WishlistService, logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{wishlists: wishlists, logger: logger}
}

// HTTP: GET /api/wishlists
func (h *WishlistHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	lists, err := h.wishlists.ListMine(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"wishlists": lists})
}

// HTTP: GET /api/wishlists/shared
func (h *WishlistHandler) HandleListShared(w http.ResponseWriter, r *http.Request) {
	lists, err := h.wishlists.ListSharedWithMe(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"wishlists": lists})
}

// HTTP: GET /api/profile/{id}/wishlists
func (h *WishlistHandler) HandleListForProfile(w http.ResponseWriter, r *http.Request) {
	lists, err := h.wishlists.ListForProfile(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"wishlists": lists})
}

type createWishlistRequest struct {
	Name          string   `json:"name"                     validate:"required"`
	ProfileID     *string  `json:"profileId"`
	IsCustom      bool     `json:"isCustom"`
	SharedWithAll bool     `json:"sharedWithAllConnections"`
	ShareWith     []string `json:"shareWith"                validate:"max=500,dive,required"`
}

// HandleCreate creates a wishlist for the caller, for a connected profile,
// or a custom list (isCustom) for nobody in particular.
//
// HTTP: POST /api/wishlists
// REQUEST BODY: {"name": "Birthday", "profileId": null, "sharedWithAllConnections": true}
func (h *WishlistHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createWishlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	wl, err := h.wishlists.Create(r.Context(), currentUser(r), service.CreateWishlistInput{
		Name:          req.Name,
		ProfileID:     req.ProfileID,
		IsCustom:      req.IsCustom,
		SharedWithAll: req.SharedWithAll,
		ShareWith:     req.ShareWith,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"wishlist": wl})
}

// HandleGet returns a wishlist with its items as the caller may see them.
// The recipient never learns which items are claimed.
//
// HTTP: GET /api/wishlists/{id}
func (h *WishlistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.wishlists.Get(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"wishlist": detail})
}

type renameRequest struct {
	Name string `json:"name" validate:"required"`
}

// HTTP: PATCH /api/wishlists/{id}
func (h *WishlistHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	wl, err := h.wishlists.Rename(r.Context(), currentUser(r), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"wishlist": wl})
}

// HandleDelete soft-deletes a wishlist. Claimants keep seeing the items
// they claimed.
//
// HTTP: DELETE /api/wishlists/{id}
func (h *WishlistHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.wishlists.Delete(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

type visibilityRequest struct {
	SharedWithAll bool     `json:"sharedWithAllConnections"`
	ShareWith     []string `json:"shareWith" validate:"max=500,dive,required"`
}

// HTTP: PUT /api/wishlists/{id}/visibility
func (h *WishlistHandler) HandleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.wishlists.SetVisibility(r.Context(), currentUser(r), r.PathValue("id"), req.SharedWithAll, req.ShareWith); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

type itemRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name" validate:"required"`
	Description string              `json:"description"`
	Price       decimal.NullDecimal `json:"price"`
	Currency    string              `json:"currency"`
	PhotoURL    string              `json:"photoUrl"`
	URL         string              `json:"url"`
}

type itemsRequest struct {
	Items []itemRequest `json:"items" validate:"dive"`
}

// HandleReplaceItems replaces the wishlist's items with the posted list.
// Items carrying an id are updated in place (keeping their claim), items
// without one are created, and missing ones are deleted.
//
// HTTP: PUT /api/wishlists/{id}/items
// REQUEST BODY: {"items": [{"id": "...", "name": "...", "price": "12.50", "currency": "EUR"}]}
func (h *WishlistHandler) HandleReplaceItems(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	in := make([]service.ItemInput, len(req.Items))
	for i, it := range req.Items {
		in[i] = service.ItemInput{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price,
			Currency:    it.Currency,
			PhotoURL:    it.PhotoURL,
			URL:         it.URL,
		}
	}

	res, err := h.wishlists.ReplaceItems(r.Context(), currentUser(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"result": res})
}

// HandleClaim marks an item as being bought by the caller. Losing a race
// answers {"success": false, "message": "item_already_claimed"}.
//
// HTTP: POST /api/items/{id}/claim
func (h *WishlistHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	res, err := h.wishlists.Claim(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"claim": res})
}

// HTTP: DELETE /api/items/{id}/claim
func (h *WishlistHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	if err := h.wishlists.Release(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
