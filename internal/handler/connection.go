package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gifteo/internal/service"
)

// ConnectionHandler serves the social graph: contacts and invitations.
type ConnectionHandler struct {
	connections *service.ConnectionService
	logger      *slog.Logger
}

func NewConnectionHandler(connections *service.ConnectionService, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, logger: logger}
}

// HTTP: GET /api/connections
func (h *ConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.connections.ListContacts(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"connections": contacts})
}

// HTTP: DELETE /api/connections/{personId}
func (h *ConnectionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.connections.Remove(r.Context(), currentUser(r), r.PathValue("personId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// HTTP: GET /api/invitations
func (h *ConnectionHandler) HandleListInvitations(w http.ResponseWriter, r *http.Request) {
	inv, err := h.connections.ListInvitations(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"incoming": inv.Incoming, "outgoing": inv.Outgoing})
}

type inviteRequest struct {
	PersonID string `json:"personId" validate:"required"`
}

// HandleInvite sends a connection invitation. Inviting someone already
// linked (in either direction) answers {"success": false, "message": "already_linked"}.
//
// HTTP: POST /api/invitations
// REQUEST BODY: {"personId": "..."}
func (h *ConnectionHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	inv, err := h.connections.Invite(r.Context(), currentUser(r), req.PersonID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"invitation": inv})
}

// HTTP: POST /api/invitations/{id}/accept
func (h *ConnectionHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	contact, err := h.connections.Accept(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"connection": contact})
}

// HTTP: POST /api/invitations/{id}/reject
func (h *ConnectionHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	if err := h.connections.Reject(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
